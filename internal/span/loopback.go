package span

import (
	"sync"

	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// Loopback returns on every channel what was transmitted on it the tick
// before. Inject overrides the next received chunk of a channel.
type Loopback struct {
	name string
	law  *audio.Law

	mu       sync.Mutex
	last     [][]byte
	injected [][]byte
}

// NewLoopback creates a loopback span with n channels.
func NewLoopback(name string, n int, law *audio.Law) *Loopback {
	l := &Loopback{
		name:     name,
		law:      law,
		last:     make([][]byte, n),
		injected: make([][]byte, n),
	}
	for i := range l.last {
		l.last[i] = make([]byte, audio.ChunkSize)
		law.FillSilence(l.last[i])
	}
	return l
}

func (l *Loopback) Name() string  { return l.name }
func (l *Loopback) Channels() int { return len(l.last) }

// Inject queues one chunk to be received on channel i instead of the looped
// audio.
func (l *Loopback) Inject(i int, chunk []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := make([]byte, audio.ChunkSize)
	l.law.FillSilence(c)
	copy(c, chunk)
	l.injected[i] = c
}

func (l *Loopback) Receive(rx [][]byte) error {
	if err := checkChunks(rx, len(l.last)); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range rx {
		if l.injected[i] != nil {
			copy(rx[i], l.injected[i])
			l.injected[i] = nil
			continue
		}
		copy(rx[i], l.last[i])
	}
	return nil
}

func (l *Loopback) Transmit(tx [][]byte) error {
	if err := checkChunks(tx, len(l.last)); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range tx {
		copy(l.last[i], tx[i])
	}
	return nil
}

func (l *Loopback) Close() error { return nil }
