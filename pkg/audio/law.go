package audio

import (
	"fmt"
	"strings"
)

// LawID identifies a companding law on the configuration surface.
type LawID int

const (
	// LawDefault selects the owning span's default law.
	LawDefault LawID = iota
	LawMulaw
	LawAlaw
)

// String returns the configuration name of the law.
func (id LawID) String() string {
	switch id {
	case LawDefault:
		return "default"
	case LawMulaw:
		return "mulaw"
	case LawAlaw:
		return "alaw"
	default:
		return fmt.Sprintf("law(%d)", int(id))
	}
}

// ParseLaw maps a configuration name to a LawID.
func ParseLaw(s string) (LawID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return LawDefault, nil
	case "mulaw", "ulaw", "u-law", "mu-law":
		return LawMulaw, nil
	case "alaw", "a-law":
		return LawAlaw, nil
	}
	return LawDefault, fmt.Errorf("%w: %q", ErrUnknownLaw, s)
}

// Law holds the 8-bit <-> 16-bit lookup tables of one G.711 variant.
// Instances are immutable and shared by every channel using them.
type Law struct {
	id     LawID
	decode [256]int16
	// encode is indexed by the top 14 bits of the linear sample.
	encode [1 << 14]byte
}

// Shared law instances.
var (
	MuLaw = newLaw(LawMulaw, mulawToLinear, linearToMulaw)
	ALaw  = newLaw(LawAlaw, alawToLinear, linearToAlaw)
)

// LawByID returns the shared table for id. LawDefault has no table of its
// own and is rejected.
func LawByID(id LawID) (*Law, error) {
	switch id {
	case LawMulaw:
		return MuLaw, nil
	case LawAlaw:
		return ALaw, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLaw, id)
}

func newLaw(id LawID, dec func(byte) int16, enc func(int) byte) *Law {
	l := &Law{id: id}
	for i := range l.decode {
		l.decode[i] = dec(byte(i))
	}
	for i := range l.encode {
		l.encode[i] = enc(int(int16(uint16(i) << 2)))
	}
	return l
}

// ID returns the law identifier.
func (l *Law) ID() LawID { return l.id }

// Decode expands one companded byte.
func (l *Law) Decode(b byte) int16 { return l.decode[b] }

// Encode compresses one linear sample.
func (l *Law) Encode(s int16) byte { return l.encode[uint16(s)>>2] }

// Silence is the companded byte for a zero sample.
func (l *Law) Silence() byte { return l.Encode(0) }

// DecodeChunk expands src into dst.
func (l *Law) DecodeChunk(dst []int16, src []byte) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = l.decode[src[i]]
	}
}

// EncodeChunk compresses src into dst.
func (l *Law) EncodeChunk(dst []byte, src []int16) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = l.encode[uint16(src[i])>>2]
	}
}

// FillSilence writes the silence byte over dst.
func (l *Law) FillSilence(dst []byte) {
	s := l.Silence()
	for i := range dst {
		dst[i] = s
	}
}

// mu-law (G.711) constants
const (
	muLawBias = 0x84
	muLawClip = 32635
)

func mulawToLinear(b byte) int16 {
	u := ^b
	t := (int(u&0x0F) << 3) + muLawBias
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(muLawBias - t)
	}
	return int16(t - muLawBias)
}

func linearToMulaw(s int) byte {
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exp := 7
	for mask := 0x4000; s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (s >> (exp + 3)) & 0x0F

	return ^byte(sign | exp<<4 | mant)
}

// A-law segment end points for 13-bit magnitudes.
var aLawSegEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0F) << 4
	seg := int(a&0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

func linearToAlaw(s int) byte {
	s >>= 3

	mask := 0xD5
	if s < 0 {
		mask = 0x55
		s = -s - 1
	}

	seg := 8
	for i, end := range aLawSegEnd {
		if s <= end {
			seg = i
			break
		}
	}
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}

	aval := seg << 4
	if seg < 2 {
		aval |= (s >> 1) & 0x0F
	} else {
		aval |= (s >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}
