package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/gwillem/armtalk/pkg/audio"
)

// Player plays PCM audio out loud. It runs on its own timeline next to
// the jaw writes; a talking session works fine with NoPlayer when no
// audio output is available.
type Player interface {
	Play(ctx context.Context, pcm []int16, sampleRate int) error
}

// NoPlayer discards the audio.
type NoPlayer struct{}

func (NoPlayer) Play(context.Context, []int16, int) error { return nil }

// ExecPlayer shells out to the first available system audio player.
type ExecPlayer struct{}

var playerCommands = []string{"afplay", "aplay", "paplay", "ffplay"}

// FindPlayer returns an ExecPlayer when a system player exists, else
// NoPlayer.
func FindPlayer() Player {
	for _, cmd := range playerCommands {
		if _, err := exec.LookPath(cmd); err == nil {
			return ExecPlayer{}
		}
	}
	return NoPlayer{}
}

func (ExecPlayer) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	data, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "armtalk-*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	for _, name := range playerCommands {
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		args := []string{f.Name()}
		if name == "ffplay" {
			args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", f.Name()}
		}
		return exec.CommandContext(ctx, name, args...).Run()
	}
	return fmt.Errorf("no audio player found (tried %v)", playerCommands)
}
