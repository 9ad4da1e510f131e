// Package speech wraps the external text-to-speech and audio playback
// collaborators. Nothing here is calibration- or jaw-critical; the
// envelope extractor and policy engine only ever see decoded PCM.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gwillem/armtalk/pkg/audio"
)

const (
	openAITTSURL = "https://api.openai.com/v1/audio/speech"
	ttsModel     = "gpt-4o-mini-tts"
	ttsVoice     = "alloy"

	// DefaultRate is the speech rate in words per minute; the TTS API
	// takes a relative speed, scaled against this baseline.
	DefaultRate = 150
)

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 3 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// Synthesizer turns text into mono PCM-16 speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []int16, sampleRate int, err error)
}

// OpenAITTS synthesizes speech through the OpenAI audio API. Requires
// OPENAI_API_KEY.
type OpenAITTS struct {
	Voice string
	Rate  int // words per minute, DefaultRate when zero
}

func (t *OpenAITTS) Synthesize(ctx context.Context, text string) ([]int16, int, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, 0, fmt.Errorf("OPENAI_API_KEY not set")
	}

	voice := t.Voice
	if voice == "" {
		voice = ttsVoice
	}
	rate := t.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	speed := float64(rate) / DefaultRate
	if speed < 0.25 {
		speed = 0.25
	}
	if speed > 4.0 {
		speed = 4.0
	}

	body, _ := json.Marshal(map[string]any{
		"model":           ttsModel,
		"voice":           voice,
		"input":           text,
		"speed":           speed,
		"response_format": "mp3",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAITTSURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("tts %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	return audio.DecodeMP3(bytes.NewReader(data))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
