package vad

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a minimal canonical 16-bit mono PCM WAV container
// around raw samples, mirroring the header layout aws.go's wavToPCM16
// expects on the way back out.
func buildWAV(samples []int16, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}
	return buf
}

func silence(n int) []int16 {
	return make([]int16, n)
}

func tone(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(float64(i)*0.3))
	}
	return out
}

func TestGateRejectsShortBlob(t *testing.T) {
	ok, err := Gate(make([]byte, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a too-short blob to be rejected")
	}
}

func TestGateRejectsSilence(t *testing.T) {
	wav := buildWAV(silence(16000), 16000)
	ok, err := Gate(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected silence to be gated out")
	}
}

func TestGateAdmitsLoudTone(t *testing.T) {
	wav := buildWAV(tone(16000, 20000), 16000)
	ok, err := Gate(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a loud tone to pass the voice-activity gate")
	}
}

func TestGateRejectsMalformedWAV(t *testing.T) {
	garbage := make([]byte, 20000)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	if _, err := Gate(garbage); err == nil {
		t.Fatal("expected an error decoding a non-WAV blob")
	}
}
