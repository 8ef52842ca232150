// Package echocan defines the echo canceller capability a channel consumes
// and the registry the mixer selects implementations from.
package echocan

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrUnknownCanceller = errors.New("unknown echo canceller")
	ErrInvalidTaps      = errors.New("invalid echo canceller tap count")
)

// MaxTaps bounds the filter length a canceller may be created with.
const MaxTaps = 1024

// Canceller removes the echo of ref from sig. Process runs in the tick and
// must not block or allocate.
type Canceller interface {
	// Process rewrites sig in place. ref is the chunk most recently sent
	// towards the line on the same channel.
	Process(sig, ref []int16)
	// Name identifies the implementation.
	Name() string
	// Close releases the canceller.
	Close()
}

// Factory creates a canceller with the given filter length.
type Factory func(taps int) (Canceller, error)

// Registry maps canceller names to factories.
type Registry struct {
	factories map[string]Factory

	mtx *sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		mtx:       &sync.Mutex{},
	}
}

// NewDefaultRegistry creates a registry holding the built-in cancellers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NLMSName, NewNLMS)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.factories[name] = f
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create builds a canceller by name.
func (r *Registry) Create(name string, taps int) (Canceller, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCanceller, name)
	}
	if taps <= 0 || taps > MaxTaps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTaps, taps)
	}
	ec, err := f(taps)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s echo canceller: %w", name, err)
	}
	return ec, nil
}
