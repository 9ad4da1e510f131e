package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWAV_EncodeDecode(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatal(err)
	}

	back, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if len(back) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(back), len(samples))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back[i], samples[i])
		}
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	data, err := EncodeWAV([]int16{1, 2, 3, 4}, 8000)
	if err != nil {
		t.Fatal(err)
	}

	// Splice a LIST metadata chunk between fmt and data, as many
	// encoders emit.
	list := make([]byte, 8+6)
	copy(list, "LIST")
	binary.LittleEndian.PutUint32(list[4:8], 6)
	spliced := append([]byte{}, data[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, data[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:8], uint32(len(spliced)-8))

	back, rate, err := DecodeWAV(spliced)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 8000 || len(back) != 4 {
		t.Errorf("rate=%d samples=%d, want 8000 and 4", rate, len(back))
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	// Hand-build a stereo WAV: pairs (100, 300) and (-100, -300).
	mono, err := EncodeWAV([]int16{100, 300, -100, -300}, 8000)
	if err != nil {
		t.Fatal(err)
	}
	// Patch channel count and block align to stereo.
	binary.LittleEndian.PutUint16(mono[22:24], 2)
	binary.LittleEndian.PutUint16(mono[32:34], 4)

	back, _, err := DecodeWAV(mono)
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{200, -200}
	if len(back) != 2 || back[0] != want[0] || back[1] != want[1] {
		t.Errorf("downmix = %v, want %v", back, want)
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Error("garbage input accepted")
	}

	data, _ := EncodeWAV([]int16{1, 2}, 8000)
	mangled := bytes.Clone(data)
	binary.LittleEndian.PutUint16(mangled[20:22], 3) // IEEE float format
	if _, _, err := DecodeWAV(mangled); err == nil {
		t.Error("non-PCM format accepted")
	}
}
