package audio

import "encoding/binary"

// PutLinear writes samples into dst as little-endian int16 and returns the
// number of bytes written. dst must hold 2*len(samples) bytes.
func PutLinear(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*LinearSampleBytes:], uint16(s))
	}
	return len(samples) * LinearSampleBytes
}

// GetLinear reads little-endian int16 samples from src into dst and returns
// the number of samples read. A trailing odd byte is ignored.
func GetLinear(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/LinearSampleBytes)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*LinearSampleBytes:]))
	}
	return n
}
