// ABOUTME: Tests for the linear resampler
// ABOUTME: Covers rate conversion, chunk continuity and downmixing
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResampleSameRate(t *testing.T) {
	r := New(8000, 8000, 1)
	input := []int16{1, 2, 3, 4, 5}
	output := make([]int16, 10)

	n := r.Resample(input, output)
	assert.Equal(t, 4, n, "last frame is held back for interpolation")
	assert.Equal(t, []int16{1, 2, 3, 4}, output[:n])

	n = r.Resample([]int16{6, 7}, output)
	assert.Equal(t, []int16{5, 6}, output[:n])
}

func TestResampleDownsample(t *testing.T) {
	r := New(48000, 8000, 1)
	input := make([]int16, 4800)
	for i := range input {
		input[i] = int16(i)
	}
	output := make([]int16, 1000)

	n := r.Resample(input, output)
	assert.InDelta(t, 800, n, 1)
	for i := 1; i < n; i++ {
		assert.Equal(t, int16(6), output[i]-output[i-1])
	}
}

func TestResampleUpsampleInterpolates(t *testing.T) {
	r := New(4000, 8000, 1)
	output := make([]int16, 8)

	n := r.Resample([]int16{0, 100, 200}, output)
	assert.Equal(t, []int16{0, 50, 100, 150}, output[:n])
}

func TestSamplesNeeded(t *testing.T) {
	r := New(44100, 8000, 2)
	assert.InDelta(t, 160, r.OutputSamplesNeeded(882), 2)
	assert.InDelta(t, 882, r.InputSamplesNeeded(160), 2)
	assert.Zero(t, r.InputSamplesNeeded(160)%2, "whole frames only")
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []int16{15, -5}, Downmix([]int16{10, 20, -10, 0}, 2))
	assert.Equal(t, []int16{1, 2}, Downmix([]int16{1, 2}, 1))
}

func TestReset(t *testing.T) {
	r := New(8000, 8000, 1)
	out := make([]int16, 4)
	r.Resample([]int16{9, 9}, out)
	r.Reset()

	n := r.Resample([]int16{1, 2}, out)
	assert.Equal(t, []int16{1}, out[:n])
}
