package jaw

import (
	"testing"
	"time"

	"github.com/gwillem/armtalk/pkg/audio"
)

func samplesAt(interval time.Duration, loudness ...float64) []audio.Sample {
	out := make([]audio.Sample, len(loudness))
	for i, l := range loudness {
		out[i] = audio.Sample{T: time.Duration(i) * interval, Loudness: l}
	}
	return out
}

func TestPulsePolicy_RisingEdgeHoldAndDebounce(t *testing.T) {
	const interval = 50 * time.Millisecond
	cfg := Config{
		Closed:    1945,
		Open:      2600,
		Threshold: 0.05,
		Hold:      125 * time.Millisecond, // spans two samples
		Cooldown:  50 * time.Millisecond,
	}
	p := NewPulsePolicy(cfg)

	wantOpen := []bool{false, false, true, true, true, false, false}
	for i, s := range samplesAt(interval, 0, 0, 0.9, 0.9, 0, 0, 0) {
		cmd := p.Advance(s)
		if cmd.Open != wantOpen[i] {
			t.Errorf("sample %d: open=%v, want %v", i, cmd.Open, wantOpen[i])
		}
		wantPos := cfg.Closed
		if wantOpen[i] {
			wantPos = cfg.Open
		}
		if cmd.Position != wantPos {
			t.Errorf("sample %d: position=%d, want %d", i, cmd.Position, wantPos)
		}
	}
}

func TestPulsePolicy_FirstSampleCanTrigger(t *testing.T) {
	p := NewPulsePolicy(DefaultConfig())
	cmd := p.Advance(audio.Sample{T: 0, Loudness: 0.9})
	if !cmd.Open {
		t.Error("loud first sample did not open the jaw")
	}
}

func TestPulsePolicy_CooldownBlocksRapidRetrigger(t *testing.T) {
	cfg := Config{
		Closed:    0,
		Open:      100,
		Threshold: 0.5,
		Hold:      10 * time.Millisecond,
		Cooldown:  100 * time.Millisecond,
	}
	p := NewPulsePolicy(cfg)

	// Pulse, drop below, rise again within the cooldown window.
	seq := []audio.Sample{
		{T: 0, Loudness: 0.9},
		{T: 20 * time.Millisecond, Loudness: 0.1},  // hold expired, closes
		{T: 40 * time.Millisecond, Loudness: 0.9},  // rising edge but inside cooldown
		{T: 120 * time.Millisecond, Loudness: 0.1}, // reset edge detector
		{T: 140 * time.Millisecond, Loudness: 0.9}, // past cooldown, opens
	}
	wantOpen := []bool{true, false, false, false, true}
	for i, s := range seq {
		if cmd := p.Advance(s); cmd.Open != wantOpen[i] {
			t.Errorf("sample %d: open=%v, want %v", i, cmd.Open, wantOpen[i])
		}
	}
}

func TestPulsePolicy_HoldIgnoresContinuedLoudness(t *testing.T) {
	cfg := Config{Closed: 0, Open: 100, Threshold: 0.5, Hold: 30 * time.Millisecond, Cooldown: 0}
	p := NewPulsePolicy(cfg)

	p.Advance(audio.Sample{T: 0, Loudness: 0.9})
	// Still loud when the hold expires: the close is unconditional and
	// the sustained loudness is not a new rising edge.
	cmd := p.Advance(audio.Sample{T: 40 * time.Millisecond, Loudness: 0.9})
	if cmd.Open {
		t.Error("jaw still open after hold expiry despite sustained loudness")
	}
}

func TestAmplitudePolicy_MidLoudness(t *testing.T) {
	p := NewAmplitudePolicy(Config{Closed: 1945, Open: 2600, Gain: 1.0, Boost: 1.0})

	cmd := p.Advance(audio.Sample{T: 0, Loudness: 0.5})
	// 1945 + 0.5*(2600-1945) = 2272.5, truncated toward zero.
	if cmd.Position != 2272 {
		t.Errorf("position = %d, want 2272", cmd.Position)
	}
}

func TestAmplitudePolicy_ClampInvariant(t *testing.T) {
	configs := []Config{
		{Closed: 1945, Open: 2600, Gain: 1.0, Boost: 1.0},
		{Closed: 2600, Open: 1945, Gain: 1.0, Boost: 1.0}, // swapped order
		{Closed: 1945, Open: 2600, Gain: 5.0, Boost: 0.7},
	}
	// Defensive inputs, deliberately outside [0,1].
	loudness := []float64{-1.5, -0.01, 0, 0.25, 1, 1.5, 100}

	for _, cfg := range configs {
		lo, hi := cfg.Closed, cfg.Open
		if lo > hi {
			lo, hi = hi, lo
		}
		p := NewAmplitudePolicy(cfg)
		for _, l := range loudness {
			cmd := p.Advance(audio.Sample{Loudness: l})
			if cmd.Position < lo || cmd.Position > hi {
				t.Errorf("cfg %+v loudness %f: position %d outside [%d, %d]",
					cfg, l, cmd.Position, lo, hi)
			}
		}
	}
}

func TestAmplitudePolicy_Stateless(t *testing.T) {
	p := NewAmplitudePolicy(Config{Closed: 1000, Open: 2000, Gain: 1.0, Boost: 1.0})

	first := p.Advance(audio.Sample{Loudness: 0.3})
	p.Advance(audio.Sample{Loudness: 1.0})
	again := p.Advance(audio.Sample{Loudness: 0.3})
	if first.Position != again.Position {
		t.Errorf("same loudness produced %d then %d", first.Position, again.Position)
	}
}

func TestNewPolicy_ModeSwitch(t *testing.T) {
	if _, err := NewPolicy(ModePulse, DefaultConfig()); err != nil {
		t.Error(err)
	}
	if _, err := NewPolicy(ModeAmplitude, DefaultConfig()); err != nil {
		t.Error(err)
	}
	if _, err := NewPolicy("wobble", DefaultConfig()); err == nil {
		t.Error("unknown mode accepted")
	}
}
