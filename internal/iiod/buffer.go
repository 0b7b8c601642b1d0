package iiod

import (
	"encoding/binary"
	"fmt"
)

// ParseInt16Samples parses raw binary data as little-endian int16 samples.
// This is a helper function for devices like AD9361 that use 16-bit samples.
//
// Returns a slice of int16 values in the order they appear in the data.
func ParseInt16Samples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("data length must be even for int16 samples")
	}

	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}

	return samples, nil
}

// FormatInt16Samples formats int16 samples as little-endian binary data.
// This is a helper function for devices like AD9361 that use 16-bit samples.
func FormatInt16Samples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:i*2+2], uint16(sample))
	}
	return data
}

// DeinterleaveIQ deinterleaves I/Q samples for a specific channel from interleaved data.
// Assumes data format: [I0_ch0, Q0_ch0, I0_ch1, Q0_ch1, ...]
//
// Parameters:
//   - samples: Interleaved I/Q samples as int16
//   - numChannels: Total number of channels in the interleaved data
//   - channelIndex: Zero-based index of the channel to extract
//
// Returns separate I and Q slices for the specified channel.
func DeinterleaveIQ(samples []int16, numChannels, channelIndex int) ([]int16, []int16, error) {
	if numChannels <= 0 {
		return nil, nil, fmt.Errorf("numChannels must be positive")
	}
	if channelIndex < 0 || channelIndex >= numChannels {
		return nil, nil, fmt.Errorf("channelIndex out of range")
	}

	samplesPerChannel := len(samples) / (numChannels * 2) // 2 for I and Q
	if len(samples)%(numChannels*2) != 0 {
		return nil, nil, fmt.Errorf("sample count not divisible by number of channels")
	}

	iSamples := make([]int16, samplesPerChannel)
	qSamples := make([]int16, samplesPerChannel)

	for i := 0; i < samplesPerChannel; i++ {
		baseIdx := i * numChannels * 2
		chOffset := channelIndex * 2
		iSamples[i] = samples[baseIdx+chOffset]
		qSamples[i] = samples[baseIdx+chOffset+1]
	}

	return iSamples, qSamples, nil
}

// InterleaveIQ interleaves I/Q samples for multiple channels.
// Produces format: [I0_ch0, Q0_ch0, I0_ch1, Q0_ch1, ...]
//
// Parameters:
//   - channels: Slice of channel data, where each element is a pair of [I, Q] slices
//
// Returns interleaved samples ready for transmission.
func InterleaveIQ(channels [][][]int16) ([]int16, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels provided")
	}

	// Verify all channels have same length
	samplesPerChannel := len(channels[0][0]) // I samples of first channel
	for i, ch := range channels {
		if len(ch) != 2 {
			return nil, fmt.Errorf("channel %d must have exactly 2 slices (I and Q)", i)
		}
		if len(ch[0]) != samplesPerChannel || len(ch[1]) != samplesPerChannel {
			return nil, fmt.Errorf("channel %d has mismatched I/Q lengths", i)
		}
	}

	numChannels := len(channels)
	result := make([]int16, samplesPerChannel*numChannels*2)

	for sampleIdx := 0; sampleIdx < samplesPerChannel; sampleIdx++ {
		for chIdx := 0; chIdx < numChannels; chIdx++ {
			baseIdx := sampleIdx*numChannels*2 + chIdx*2
			result[baseIdx] = channels[chIdx][0][sampleIdx]   // I
			result[baseIdx+1] = channels[chIdx][1][sampleIdx] // Q
		}
	}

	return result, nil
}
