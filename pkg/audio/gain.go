package audio

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// GainTable maps a companded byte to the companded byte after gain.
type GainTable [256]byte

var identityGain = func() *GainTable {
	var g GainTable
	for i := range g {
		g[i] = byte(i)
	}
	return &g
}()

// IdentityGain returns the shared unity-gain table. Callers must not modify it.
func IdentityGain() *GainTable { return identityGain }

// IsIdentity reports whether g leaves every byte unchanged.
func (g *GainTable) IsIdentity() bool {
	return g == nil || g == identityGain || *g == *identityGain
}

// Apply rewrites buf through the table.
func (g *GainTable) Apply(buf []byte) {
	if g == nil || g == identityGain {
		return
	}
	for i, b := range buf {
		buf[i] = g[b]
	}
}

// GainTableFromBytes copies a 256-byte table as supplied on the configuration
// surface.
func GainTableFromBytes(b []byte) (*GainTable, error) {
	if len(b) != len(GainTable{}) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGainTable, len(b))
	}
	var g GainTable
	copy(g[:], b)
	return &g, nil
}

// NewGainTable computes the table that applies db decibels of gain under law.
func NewGainTable(law *Law, db float64) *GainTable {
	if db == 0 {
		return identityGain
	}
	factor := math.Pow(10, db/20)

	var g GainTable
	for i := range g {
		v := math.Round(float64(law.Decode(byte(i))) * factor)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		g[i] = law.Encode(int16(v))
	}
	return &g
}

type gainKey struct {
	law   LawID
	centi int // hundredths of a dB
}

// GainCache holds recently computed gain tables keyed by law and gain.
type GainCache struct {
	*lru.Cache[gainKey, *GainTable]
}

// NewGainCache creates a GainCache with the given size.
// The size parameter determines the maximum number of tables the cache can hold.
func NewGainCache(size int) (*GainCache, error) {
	lruCache, err := lru.New[gainKey, *GainTable](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create gain cache: %w", err)
	}

	return &GainCache{Cache: lruCache}, nil
}

// Table returns the table for db under law, computing it on a miss.
func (gc *GainCache) Table(law *Law, db float64) *GainTable {
	key := gainKey{law: law.ID(), centi: int(math.Round(db * 100))}
	if key.centi == 0 {
		return identityGain
	}
	if g, ok := gc.Get(key); ok {
		return g
	}
	g := NewGainTable(law, float64(key.centi)/100)
	gc.Add(key, g)

	return g
}
