package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// pcmBlock returns n samples of constant magnitude.
func pcmBlock(n int, magnitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = magnitude
	}
	return out
}

func TestExtract_EnvelopeShape(t *testing.T) {
	const rate = 1000
	cfg := Config{ChunkDuration: 100 * time.Millisecond} // 100 samples/chunk

	// 100 loud, 100 half-loud, 100 silent.
	pcm := append(pcmBlock(100, 16000), pcmBlock(100, 8000)...)
	pcm = append(pcm, pcmBlock(100, 0)...)

	env, err := Extract(pcm, rate, cfg)
	if err != nil {
		t.Fatal(err)
	}

	samples := env.Samples()
	if len(samples) != 3 {
		t.Fatalf("got %d envelope samples, want 3", len(samples))
	}
	if env.Duration() != 300*time.Millisecond {
		t.Errorf("duration = %v, want 300ms", env.Duration())
	}

	// Peak-normalized: loudest chunk is 1.0, half-loud is 0.5, silence 0.
	if samples[0].Loudness != 1.0 {
		t.Errorf("loud chunk = %f, want 1.0", samples[0].Loudness)
	}
	if diff := samples[1].Loudness - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("half-loud chunk = %f, want 0.5", samples[1].Loudness)
	}
	if samples[2].Loudness != 0 {
		t.Errorf("silent chunk = %f, want 0", samples[2].Loudness)
	}

	// Timestamps at the control rate.
	for i, s := range samples {
		want := time.Duration(i) * 100 * time.Millisecond
		if s.T != want {
			t.Errorf("sample %d at %v, want %v", i, s.T, want)
		}
	}
}

func TestExtract_LoudnessBounds(t *testing.T) {
	pcm := append(pcmBlock(50, -32768), pcmBlock(500, 123)...)
	env, err := Extract(pcm, 8000, Config{})
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range env.Samples() {
		if s.Loudness < 0 || s.Loudness > 1 {
			t.Errorf("sample %d loudness %f outside [0,1]", i, s.Loudness)
		}
	}
}

func TestExtract_RejectsBadSampleRate(t *testing.T) {
	for _, rate := range []int{0, -8000} {
		if _, err := Extract(pcmBlock(100, 1000), rate, Config{}); err == nil {
			t.Errorf("sample rate %d accepted", rate)
		}
	}
}

func TestExtract_AllSilence(t *testing.T) {
	env, err := Extract(pcmBlock(1000, 0), 8000, Config{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range env.Samples() {
		if s.Loudness != 0 {
			t.Errorf("silence produced loudness %f", s.Loudness)
		}
	}
}

func TestStream_ForwardOnly(t *testing.T) {
	env, err := Extract(pcmBlock(300, 5000), 1000, Config{ChunkDuration: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	stream := env.Stream()
	var seen []Sample
	for {
		s, ok := stream.Next()
		if !ok {
			break
		}
		seen = append(seen, s)
	}
	if len(seen) != 3 {
		t.Fatalf("consumed %d samples, want 3", len(seen))
	}
	if _, ok := stream.Next(); ok {
		t.Error("stream yielded a sample after end")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].T <= seen[i-1].T {
			t.Errorf("timestamps not increasing: %v then %v", seen[i-1].T, seen[i].T)
		}
	}
}

// chunkedSource yields fixed frames, then EOF, with an optional stall.
type chunkedSource struct {
	frames [][]int16
	stall  time.Duration
}

func (s *chunkedSource) ReadFrame() ([]int16, error) {
	if len(s.frames) == 0 {
		if s.stall > 0 {
			time.Sleep(s.stall)
		}
		return nil, io.EOF
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

func TestExtractFrom_MatchesExtract(t *testing.T) {
	pcm := append(pcmBlock(150, 12000), pcmBlock(150, 300)...)
	cfg := Config{ChunkDuration: 100 * time.Millisecond}

	direct, err := Extract(pcm, 1000, cfg)
	if err != nil {
		t.Fatal(err)
	}

	src := &chunkedSource{frames: [][]int16{pcm[:70], pcm[70:200], pcm[200:]}}
	streamed, err := ExtractFrom(context.Background(), src, 1000, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if len(direct.Samples()) != len(streamed.Samples()) {
		t.Fatalf("sample counts differ: %d vs %d", len(direct.Samples()), len(streamed.Samples()))
	}
	for i := range direct.Samples() {
		if direct.Samples()[i] != streamed.Samples()[i] {
			t.Errorf("sample %d differs: %+v vs %+v", i, direct.Samples()[i], streamed.Samples()[i])
		}
	}
}

func TestExtractFrom_StallTimeout(t *testing.T) {
	src := &chunkedSource{
		frames: [][]int16{pcmBlock(100, 1000)},
		stall:  200 * time.Millisecond,
	}
	cfg := Config{StallTimeout: 20 * time.Millisecond}

	_, err := ExtractFrom(context.Background(), src, 1000, cfg)
	if !errors.Is(err, ErrStalled) {
		t.Errorf("got %v, want ErrStalled", err)
	}
}

func TestExtractFrom_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &chunkedSource{stall: time.Second}
	_, err := ExtractFrom(ctx, src, 1000, Config{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
