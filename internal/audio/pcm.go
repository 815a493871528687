package audio

import (
	"encoding/binary"
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FramesToInt16 interleaves float frames into dst as clipped int16 samples.
// dst must hold at least 2*len(frames) samples; it returns the count written.
func FramesToInt16(dst []int16, frames [][2]float64) int {
	for i, f := range frames {
		dst[2*i] = toInt16(f[0])
		dst[2*i+1] = toInt16(f[1])
	}
	return 2 * len(frames)
}

func toInt16(v float64) int16 {
	s := v * 32767
	if s > 32767 {
		return 32767
	} else if s < -32768 {
		return -32768
	}
	return int16(s)
}
