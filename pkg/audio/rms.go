// Package audio provides small helpers for working with raw PCM audio.
package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square amplitude of a little-endian 16-bit PCM
// buffer. A trailing odd byte is ignored. Returns 0 for buffers with no
// complete sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*2; i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
