// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Brings decoded file audio to the pipeline rate and channel count
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []int16 // final frame of the previous chunk, one sample per channel
	havePrev   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int16, channels),
	}
}

// Resample converts input samples to output sample rate using linear interpolation.
// input and output are interleaved; the number of output samples written is returned.
// The last input frame is carried over so consecutive chunks join without a gap.
func (r *Resampler) Resample(input []int16, output []int16) int {
	if len(input) == 0 {
		return 0
	}

	frame := func(idx int, ch int) int16 {
		if r.havePrev {
			if idx == 0 {
				return r.lastFrame[ch]
			}
			idx--
		}
		return input[idx*r.channels+ch]
	}

	inputFrames := len(input) / r.channels
	if r.havePrev {
		inputFrames++
	}
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		inputIdx := int(r.position)

		// need a right neighbour to interpolate
		if inputIdx >= inputFrames-1 {
			break
		}

		frac := r.position - float64(inputIdx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(frame(inputIdx, ch))
			s2 := float64(frame(inputIdx+1, ch))
			output[outIdx*r.channels+ch] = int16(s1*(1.0-frac) + s2*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// carry position relative to the last frame, which becomes frame 0 of the next chunk
	r.position -= float64(inputFrames - 1)
	if r.position < 0 {
		r.position = 0
	}
	for ch := 0; ch < r.channels; ch++ {
		r.lastFrame[ch] = frame(inputFrames-1, ch)
	}
	r.havePrev = true

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.havePrev = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}

// Downmix averages interleaved frames into mono
func Downmix(input []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(input))
		copy(out, input)
		return out
	}
	out := make([]int16, len(input)/channels)
	for i := range out {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += int(input[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
