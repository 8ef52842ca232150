package mixer

import (
	"context"
	"fmt"
	"sync"

	"github.com/Raikerian/go-tdmmix/internal/chanbuf"
	"github.com/Raikerian/go-tdmmix/internal/echocan"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

// MaxIO is the largest byte count a single Read or Write considers.
const MaxIO = 65535

// Event is an asynchronous channel notification.
type Event int

const (
	EventNone Event = iota
	// EventReadOverrun: the tick found the read buffer full and dropped audio.
	EventReadOverrun
	// EventWriteUnderrun: the tick found the write buffer empty and sent silence.
	EventWriteUnderrun
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventReadOverrun:
		return "read_overrun"
	case EventWriteUnderrun:
		return "write_underrun"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Kind tells span channels from pseudo channels.
type Kind int

const (
	KindReal Kind = iota
	KindPseudo
)

func (k Kind) String() string {
	if k == KindPseudo {
		return "pseudo"
	}
	return "real"
}

// chanRef is a weak reference to a channel. It resolves only while the
// numbered slot still holds the same generation.
type chanRef struct {
	num int
	gen uint64
}

type gainDB struct{ rx, tx float64 }

type chunk [audio.ChunkSize]int16

type rawChunk [audio.ChunkSize]byte

// Channel is one telephony endpoint taking part in the tick.
//
// Locking: configuration fields are written with both the mixer lock and
// mu held, so the tick reads them under the mixer lock alone and the
// application side reads them under mu alone. Buffers, events and the open
// state are guarded by mu. Tick state (conference history, last chunks) is
// touched under the mixer lock only.
type Channel struct {
	m    *Mixer
	num  int
	gen  uint64
	kind Kind
	span *spanBinding

	mu sync.Mutex

	// configuration
	law        *audio.Law
	lawID      audio.LawID // as requested; LawDefault follows the span
	linear     bool
	rxGain     *audio.GainTable
	txGain     *audio.GainTable
	gainDB     *gainDB // set when the gains came from SetGainDB
	conf       ConfSpec
	alias      int     // resolved conference alias, 0 for none
	target     chanRef // monitored channel
	muted      bool
	ec         echocan.Canceller
	preEcho    *chunk // allocated while a pre-echo monitor watches this channel
	readBuf    *chanbuf.Buffer
	writeBuf   *chanbuf.Buffer
	nonBlock   bool
	open       bool
	events     []Event
	eventLimit int
	done       chan struct{} // closed when the current open session ends
	readable   chan struct{}
	writable   chan struct{}
	scratch    []byte
	scratchLin []int16

	// tick state
	confLast  chunk
	confLast1 chunk
	confLast2 chunk
	putLin    chunk
	getLin    chunk
	putRaw    rawChunk
	getRaw    rawChunk
}

// Number returns the channel number.
func (c *Channel) Number() int { return c.num }

// Kind returns whether the channel is a span or pseudo channel.
func (c *Channel) Kind() Kind { return c.kind }

func (c *Channel) ref() chanRef { return chanRef{num: c.num, gen: c.gen} }

// SetNonBlock switches Read and Write between waiting and returning
// ErrWouldBlock.
func (c *Channel) SetNonBlock(nb bool) {
	c.mu.Lock()
	c.nonBlock = nb
	c.mu.Unlock()
}

// NextEvent pops the oldest pending event.
func (c *Channel) NextEvent() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		return EventNone, false
	}
	e := c.events[0]
	c.events = c.events[1:]
	return e, true
}

// Read returns at most one block of received audio: companded bytes, or
// little-endian int16 samples in linear mode. A linear read shorter than one
// sample fails with ErrPartialSample.
func (c *Channel) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) > MaxIO {
		p = p[:MaxIO]
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.mu.Lock()
		if !c.open {
			c.mu.Unlock()
			return 0, ErrClosed
		}
		if c.linear && len(p) < audio.LinearSampleBytes {
			c.mu.Unlock()
			return 0, ErrPartialSample
		}
		n, ok := c.readLocked(p)
		nb, done := c.nonBlock, c.done
		c.mu.Unlock()

		if ok {
			return n, nil
		}
		if nb {
			return 0, ErrWouldBlock
		}
		select {
		case <-c.readable:
		case <-done:
			return 0, ErrClosed
		case <-c.m.done:
			return 0, ErrMixerStopped
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (c *Channel) readLocked(p []byte) (int, bool) {
	if !c.linear {
		n, err := c.readBuf.Pull(p)
		return n, err == nil
	}
	want := min(len(p)/audio.LinearSampleBytes, len(c.scratch))
	n, err := c.readBuf.Pull(c.scratch[:want])
	if err != nil {
		return 0, false
	}
	c.law.DecodeChunk(c.scratchLin[:n], c.scratch[:n])
	return audio.PutLinear(p, c.scratchLin[:n]), true
}

// Write queues at most one block for transmission and returns the number of
// bytes of p consumed. In linear mode a trailing odd byte is left unconsumed
// and a write shorter than one sample fails with ErrPartialSample.
func (c *Channel) Write(ctx context.Context, p []byte) (int, error) {
	if len(p) > MaxIO {
		p = p[:MaxIO]
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.mu.Lock()
		if !c.open {
			c.mu.Unlock()
			return 0, ErrClosed
		}
		if c.linear && len(p) < audio.LinearSampleBytes {
			c.mu.Unlock()
			return 0, ErrPartialSample
		}
		n, ok := c.writeLocked(p)
		nb, done := c.nonBlock, c.done
		c.mu.Unlock()

		if ok {
			return n, nil
		}
		if nb {
			return 0, ErrWouldBlock
		}
		select {
		case <-c.writable:
		case <-done:
			return 0, ErrClosed
		case <-c.m.done:
			return 0, ErrMixerStopped
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (c *Channel) writeLocked(p []byte) (int, bool) {
	if !c.writeBuf.Writable() {
		return 0, false
	}
	if !c.linear {
		n := min(len(p), c.writeBuf.BlockSize())
		_ = c.writeBuf.Push(p[:n])
		return n, true
	}
	samples := min(len(p)/audio.LinearSampleBytes, len(c.scratchLin))
	audio.GetLinear(c.scratchLin[:samples], p[:samples*audio.LinearSampleBytes])
	c.law.EncodeChunk(c.scratch[:samples], c.scratchLin[:samples])
	_ = c.writeBuf.Push(c.scratch[:samples])
	return samples * audio.LinearSampleBytes, true
}

// FlushRead makes audio still collecting in a partial read block readable,
// for a reader that is about to stop.
func (c *Channel) FlushRead() {
	c.mu.Lock()
	c.readBuf.Flush()
	ready := c.readBuf.Readable()
	c.mu.Unlock()

	if ready {
		signal(c.readable)
	}
}

// pushEvent queues e, dropping it when the queue is full. Caller holds mu.
func (c *Channel) pushEvent(e Event) {
	if len(c.events) >= c.eventLimit {
		return
	}
	c.events = append(c.events, e)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// resizeScratch sizes the conversion buffers to one block. Caller holds mu.
func (c *Channel) resizeScratch() {
	size := max(c.readBuf.BlockSize(), c.writeBuf.BlockSize())
	if cap(c.scratch) < size {
		c.scratch = make([]byte, size)
		c.scratchLin = make([]int16, size)
	}
	c.scratch = c.scratch[:size]
	c.scratchLin = c.scratchLin[:size]
}
