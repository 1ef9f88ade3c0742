// Package vad implements the two-stage voice-activity gate: a coarse
// RMS-energy threshold followed by a per-20ms-frame classifier, in the
// style of the sibling example's calibrating energy-based audio.VAD,
// fixed at a non-adaptive "aggressiveness 2" threshold tier since no
// third-party frame-level VAD binding exists anywhere in the example
// pack (see DESIGN.md).
package vad

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/go-audio/wav"
)

const (
	// minWavBytes rejects blobs shorter than ~0.5s @ 16kHz mono 16-bit
	// before any decoding work, per the admission rule in C7 step 1.
	minWavBytes = 16000

	// energyThreshold is the RMS-over-16-bit-PCM floor, ~500 on a
	// 0-32768 scale.
	energyThreshold = 500.0

	frameDurationMS  = 20
	speechRatioFloor = 0.1

	// aggressiveness-2 frame threshold: a frame's own RMS energy must
	// clear this (lower, more permissive than the coarse gate) floor
	// to count as a speech frame.
	frameEnergyThreshold = 300.0
)

var (
	frameClassifierWarnOnce sync.Once
)

// Gate runs the two-stage test on a complete WAV blob and reports
// whether it should be admitted to the pipeline.
func Gate(wavBytes []byte) (bool, error) {
	if len(wavBytes) < minWavBytes {
		return false, nil
	}

	samples, _, err := decodePCM16(wavBytes)
	if err != nil {
		return false, fmt.Errorf("decode wav: %w", err)
	}
	if len(samples) == 0 {
		return false, nil
	}

	if rms(samples) < energyThreshold {
		return false, nil
	}

	ratio, ok := frameSpeechRatio(samples)
	if !ok {
		frameClassifierWarnOnce.Do(func() {
			log.Printf("vad: frame classifier unavailable, degrading to energy-only")
		})
		return true, nil
	}

	return ratio >= speechRatioFloor, nil
}

// decodePCM16 decodes a WAV container via go-audio/wav/riff rather than
// hand-walking the header, so malformed or non-16-bit input is rejected
// by the decoder instead of silently misread.
func decodePCM16(wavBytes []byte) ([]int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(wavBytes))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if !dec.WasPCMAccessed() && buf == nil {
		return nil, 0, fmt.Errorf("no PCM data decoded")
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d, want 16", dec.BitDepth)
	}
	return buf.Data, buf.Format.SampleRate, nil
}

func rms(samples []int) float64 {
	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// frameSpeechRatio classifies each 20ms frame (assuming 16kHz mono, the
// contract's sample rate) as speech or silence by its own RMS energy,
// and reports the fraction of speech frames. ok is false only when the
// sample count is too small to form a single frame.
func frameSpeechRatio(samples []int) (float64, bool) {
	const sampleRate = 16000
	frameSize := sampleRate * frameDurationMS / 1000
	if frameSize <= 0 || len(samples) < frameSize {
		return 0, false
	}

	totalFrames := 0
	speechFrames := 0
	for start := 0; start+frameSize <= len(samples); start += frameSize {
		frame := samples[start : start+frameSize]
		totalFrames++
		if rms(frame) >= frameEnergyThreshold {
			speechFrames++
		}
	}
	if totalFrames == 0 {
		return 0, false
	}
	return float64(speechFrames) / float64(totalFrames), true
}
