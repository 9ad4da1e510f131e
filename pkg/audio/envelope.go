package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// ErrStalled indicates the audio source stopped producing frames before
// end-of-stream. The extractor surfaces this instead of hanging.
var ErrStalled = errors.New("audio source stalled")

// Sample is one point of the amplitude envelope: normalized loudness in
// [0, 1] at an offset from the start of the audio.
type Sample struct {
	T        time.Duration
	Loudness float64
}

// Config tunes envelope extraction.
type Config struct {
	// ChunkDuration is the control period: one envelope sample is
	// emitted per chunk regardless of the source sample rate.
	ChunkDuration time.Duration
	// StallTimeout bounds how long ExtractFrom waits for the next frame.
	StallTimeout time.Duration
}

// Defaults match the 30 ms analysis window used for jaw sync (~33 Hz).
const (
	DefaultChunkDuration = 30 * time.Millisecond
	DefaultStallTimeout  = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = DefaultChunkDuration
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	return c
}

// Envelope is a finite, time-indexed loudness signal. It is produced
// once and consumed forward-only through Stream.
type Envelope struct {
	samples  []Sample
	duration time.Duration
}

// Samples returns the envelope points in time order.
func (e *Envelope) Samples() []Sample { return e.samples }

// Duration returns the length of the source audio.
func (e *Envelope) Duration() time.Duration { return e.duration }

// Stream returns a forward-only iterator over the envelope.
func (e *Envelope) Stream() *Stream { return &Stream{samples: e.samples} }

// Stream yields envelope samples in order, exactly once each.
type Stream struct {
	samples []Sample
	next    int
}

// Next returns the next sample, or ok=false at end of stream.
func (s *Stream) Next() (Sample, bool) {
	if s.next >= len(s.samples) {
		return Sample{}, false
	}
	sample := s.samples[s.next]
	s.next++
	return sample, true
}

// Extract computes the RMS amplitude envelope of mono PCM-16 audio,
// peak-normalized to [0, 1]. The in-memory buffer runs through the same
// streaming engine that frame-based sources use.
func Extract(pcm []int16, sampleRate int, cfg Config) (*Envelope, error) {
	return ExtractFrom(context.Background(), &sliceSource{pcm: pcm}, sampleRate, cfg)
}

// sliceSource adapts an in-memory PCM buffer to FrameSource: one frame,
// then end of stream.
type sliceSource struct {
	pcm  []int16
	done bool
}

func (s *sliceSource) ReadFrame() ([]int16, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.pcm, nil
}

// assemble chunks accumulated PCM into per-period RMS samples and
// peak-normalizes them.
func assemble(pcm []int16, sampleRate int, cfg Config) *Envelope {
	chunkSamples := int(float64(sampleRate) * cfg.ChunkDuration.Seconds())
	if chunkSamples < 1 {
		chunkSamples = 1
	}

	var samples []Sample
	for i := 0; i < len(pcm); i += chunkSamples {
		end := i + chunkSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		samples = append(samples, Sample{
			T:        time.Duration(i) * time.Second / time.Duration(sampleRate),
			Loudness: rms(pcm[i:end]),
		})
	}
	normalize(samples)

	return &Envelope{
		samples:  samples,
		duration: time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate),
	}
}

// FrameSource produces PCM frames of arbitrary size, returning io.EOF
// at end of stream.
type FrameSource interface {
	ReadFrame() ([]int16, error)
}

// ExtractFrom consumes a FrameSource to completion and extracts its
// envelope. If the source produces nothing for cfg.StallTimeout the
// call fails with ErrStalled rather than blocking the consumer forever.
func ExtractFrom(ctx context.Context, src FrameSource, sampleRate int, cfg Config) (*Envelope, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		frame []int16
		err   error
	}
	frames := make(chan result)
	go func() {
		for {
			frame, err := src.ReadFrame()
			select {
			case frames <- result{frame, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var pcm []int16
	timeout := time.NewTimer(cfg.StallTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("no frame for %v: %w", cfg.StallTimeout, ErrStalled)
		case r := <-frames:
			if r.err == io.EOF {
				return assemble(append(pcm, r.frame...), sampleRate, cfg), nil
			}
			if r.err != nil {
				return nil, fmt.Errorf("read audio frame: %w", r.err)
			}
			pcm = append(pcm, r.frame...)
			if !timeout.Stop() {
				<-timeout.C
			}
			timeout.Reset(cfg.StallTimeout)
		}
	}
}

func rms(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(chunk)))
}

func normalize(samples []Sample) {
	var peak float64
	for _, s := range samples {
		if s.Loudness > peak {
			peak = s.Loudness
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i].Loudness /= peak
	}
}
