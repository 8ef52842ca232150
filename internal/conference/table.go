// Package conference holds the conference bus state shared by all channels:
// the number-to-alias table, the rotating sum generations and the
// conference-to-conference links.
package conference

import "fmt"

// Defaults for the table bounds.
const (
	DefaultMaxConferences = 1024
	DefaultMaxAliases     = 256
)

// Table maps externally chosen conference numbers onto the compact alias
// space that indexes the accumulators. Alias 0 means "none".
type Table struct {
	aliasOf []int // conference number -> alias
	confOf  []int // alias -> conference number
	high    int   // highest alias in use
}

// NewTable creates a table accepting conference numbers 1..maxConf and
// handing out aliases 1..maxAlias.
func NewTable(maxConf, maxAlias int) (*Table, error) {
	if maxConf < 1 || maxAlias < 1 {
		return nil, fmt.Errorf("conference table bounds must be positive (conferences=%d aliases=%d)", maxConf, maxAlias)
	}
	return &Table{
		aliasOf: make([]int, maxConf+1),
		confOf:  make([]int, maxAlias+1),
	}, nil
}

// MaxConference returns the highest valid conference number.
func (t *Table) MaxConference() int { return len(t.aliasOf) - 1 }

// MaxAlias returns the highest alias the table can hand out.
func (t *Table) MaxAlias() int { return len(t.confOf) - 1 }

// High returns the highest alias currently in use, 0 when none is.
func (t *Table) High() int { return t.high }

func (t *Table) valid(conf int) bool {
	return conf >= 1 && conf < len(t.aliasOf)
}

// Lookup returns the alias of conf, if it has one.
func (t *Table) Lookup(conf int) (int, bool) {
	if !t.valid(conf) || t.aliasOf[conf] == 0 {
		return 0, false
	}
	return t.aliasOf[conf], true
}

// Conference returns the conference number an alias stands for.
func (t *Table) Conference(alias int) (int, bool) {
	if alias < 1 || alias >= len(t.confOf) || t.confOf[alias] == 0 {
		return 0, false
	}
	return t.confOf[alias], true
}

// GetOrCreate returns the alias of conf, allocating the lowest free alias
// when conf has none. created tells the caller to clear the alias sums.
func (t *Table) GetOrCreate(conf int) (alias int, created bool, err error) {
	if !t.valid(conf) {
		return 0, false, fmt.Errorf("%w: %d", ErrInvalidConference, conf)
	}
	if a := t.aliasOf[conf]; a != 0 {
		return a, false, nil
	}
	for a := 1; a < len(t.confOf); a++ {
		if t.confOf[a] != 0 {
			continue
		}
		t.confOf[a] = conf
		t.aliasOf[conf] = a
		if a > t.high {
			t.high = a
		}
		return a, true, nil
	}
	return 0, false, fmt.Errorf("%w: conference %d", ErrExhausted, conf)
}

// ReleaseIfUnreferenced drops the alias of conf when inUse reports that no
// channel names it any more. It returns true if an alias was released.
func (t *Table) ReleaseIfUnreferenced(conf int, inUse func(conf int) bool) bool {
	a, ok := t.Lookup(conf)
	if !ok || inUse(conf) {
		return false
	}
	t.aliasOf[conf] = 0
	t.confOf[a] = 0
	for t.high > 0 && t.confOf[t.high] == 0 {
		t.high--
	}
	return true
}

// FirstUnaliased returns the highest conference number with no alias.
func (t *Table) FirstUnaliased() (int, bool) {
	for conf := len(t.aliasOf) - 1; conf > 0; conf-- {
		if t.aliasOf[conf] == 0 {
			return conf, true
		}
	}
	return 0, false
}

// Active returns the number of aliases in use.
func (t *Table) Active() int {
	n := 0
	for a := 1; a <= t.high; a++ {
		if t.confOf[a] != 0 {
			n++
		}
	}
	return n
}
