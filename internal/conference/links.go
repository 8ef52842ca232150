package conference

import (
	"fmt"
	"slices"

	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// DefaultMaxLinks bounds the number of links.
const DefaultMaxLinks = 32

// Link feeds the current sum of conference Src into conference Dst.
type Link struct {
	Src int `yaml:"src"`
	Dst int `yaml:"dst"`
}

// Links is the ordered set of active conference links.
type Links struct {
	max   int
	links []Link
}

// NewLinks creates an empty set holding at most max links.
func NewLinks(max int) *Links {
	return &Links{max: max}
}

// Add links src into dst. Adding an existing link is a no-op.
func (l *Links) Add(src, dst int) error {
	if src < 1 || dst < 1 || src == dst {
		return fmt.Errorf("%w: %d -> %d", ErrInvalidLink, src, dst)
	}
	link := Link{Src: src, Dst: dst}
	if slices.Contains(l.links, link) {
		return nil
	}
	if len(l.links) >= l.max {
		return fmt.Errorf("%w: link table full (%d)", ErrExhausted, l.max)
	}
	l.links = append(l.links, link)
	return nil
}

// Remove deletes the link src -> dst and reports whether it existed.
func (l *Links) Remove(src, dst int) bool {
	i := slices.Index(l.links, Link{Src: src, Dst: dst})
	if i < 0 {
		return false
	}
	l.links = slices.Delete(l.links, i, i+1)
	return true
}

// Clear removes every link.
func (l *Links) Clear() { l.links = l.links[:0] }

// List returns a copy of the links in application order.
func (l *Links) List() []Link { return slices.Clone(l.links) }

// Len returns the number of links.
func (l *Links) Len() int { return len(l.links) }

// Apply adds the current sum of each linked source into the current sum of
// its destination. Links whose ends have no alias are skipped.
func (l *Links) Apply(t *Table, acc *Accumulators) {
	for _, link := range l.links {
		sa, ok := t.Lookup(link.Src)
		if !ok {
			continue
		}
		da, ok := t.Lookup(link.Dst)
		if !ok {
			continue
		}
		audio.AddSat(acc.Current(da), acc.Current(sa))
	}
}
