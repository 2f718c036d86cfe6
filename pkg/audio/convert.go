package audio

// ResampleMono16 resamples mono 16-bit samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate the input is returned
// unchanged. Provider adapters use this to bridge backend sample rates to
// the fixed pipeline rate.
func ResampleMono16(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// SamplesFromPCM converts little-endian 16-bit PCM bytes to samples. A
// trailing odd byte is ignored.
func SamplesFromPCM(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return samples
}

// PCMFromSamples converts samples to little-endian 16-bit PCM bytes.
func PCMFromSamples(samples []int16) []byte {
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = append(pcm, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return pcm
}
