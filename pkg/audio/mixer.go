package audio

// Chunk-level saturating arithmetic used by the conference engine. Every
// function operates element-wise on the shorter of its arguments.

// Saturate clamps v to the valid int16 range.
func Saturate(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// AddSat adds src into dst with saturation.
func AddSat(dst, src []int16) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Saturate(int32(dst[i]) + int32(src[i]))
	}
}

// SubSat subtracts src from dst with saturation.
func SubSat(dst, src []int16) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Saturate(int32(dst[i]) - int32(src[i]))
	}
}

// Contribute adds src into sum with saturation and stores in last exactly
// what sum changed by, so the caller can later remove precisely its own
// contribution.
func Contribute(sum, src, last []int16) {
	n := min(len(sum), len(src), len(last))
	for i := 0; i < n; i++ {
		k := Saturate(int32(sum[i]) + int32(src[i]))
		last[i] = Saturate(int32(k) - int32(sum[i]))
		sum[i] = k
	}
}

// Zero clears a chunk.
func Zero(s []int16) {
	for i := range s {
		s[i] = 0
	}
}
