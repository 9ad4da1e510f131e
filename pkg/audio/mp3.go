package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream to mono PCM-16 samples and its sample
// rate. go-mp3 always yields 16-bit stereo, which is downmixed here.
func DecodeMP3(r io.Reader) ([]int16, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, 0, fmt.Errorf("unexpected mp3 decoded length %d", len(raw))
	}

	stereo := make([]int16, len(raw)/2)
	for i := range stereo {
		stereo[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return downmixStereo(stereo), dec.SampleRate(), nil
}
