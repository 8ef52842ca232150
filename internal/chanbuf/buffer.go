// Package chanbuf implements the multi-block ring that sits between the tick
// path and application reads/writes of a channel.
//
// A Buffer has one producer and one consumer. Either side may work in whole
// blocks (Push, Pull) or stream bytes across block boundaries (Fill, Drain).
// The ring never overwrites a block that has not been consumed: a producer
// with no free block is told so and the caller decides whether to wait or to
// drop. Buffer does no locking of its own; the owning channel serialises
// access.
package chanbuf

import "fmt"

// Geometry limits.
const (
	MinBlockSize = 16
	MinBlocks    = 2
	MaxBlocks    = 32

	DefaultMaxBlockSize = 8192
	DefaultMaxSpace     = 32768
	DefaultBlockSize    = 1024
	DefaultBlocks       = 2
)

// Limits bounds the block geometry a Buffer accepts.
type Limits struct {
	MaxBlockSize int // hardware defined upper bound of a block
	MaxSpace     int // upper bound of blockSize*blocks
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{MaxBlockSize: DefaultMaxBlockSize, MaxSpace: DefaultMaxSpace}
}

// Validate checks a geometry against the limits without allocating.
func (l Limits) Validate(blockSize, blocks int) error {
	if blockSize < MinBlockSize || blockSize > l.MaxBlockSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidBlockSize, blockSize, MinBlockSize, l.MaxBlockSize)
	}
	if blocks < MinBlocks || blocks > MaxBlocks {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidBlockCount, blocks, MinBlocks, MaxBlocks)
	}
	if blockSize*blocks > l.MaxSpace {
		return fmt.Errorf("%w: %d*%d > %d", ErrBufferSpace, blockSize, blocks, l.MaxSpace)
	}
	return nil
}

// Storage is validated, allocated block memory not yet owned by a Buffer.
type Storage struct {
	blockSize int
	blocks    [][]byte
}

// Prepare validates a geometry and allocates its storage.
func (l Limits) Prepare(blockSize, blocks int) (*Storage, error) {
	if err := l.Validate(blockSize, blocks); err != nil {
		return nil, err
	}
	mem := make([]byte, blockSize*blocks)
	s := &Storage{blockSize: blockSize, blocks: make([][]byte, blocks)}
	for i := range s.blocks {
		s.blocks[i] = mem[i*blockSize : (i+1)*blockSize : (i+1)*blockSize]
	}
	return s, nil
}

// slot is a ring cursor. ok is false when the side has nothing to work on:
// no committed data for the consumer, no free block for the producer.
type slot struct {
	idx int
	ok  bool
}

// Buffer is one direction of a channel's application I/O.
type Buffer struct {
	limits Limits
	policy Policy

	blockSize int
	blocks    [][]byte
	n         []int // committed length per block
	pos       []int // partial fill (producer) or drain (consumer) cursor

	in  slot // block the producer writes next
	out slot // oldest committed block

	// gated holds the consumer back until the policy threshold is reached.
	gated bool

	// transition state for edge-triggered reporting
	overrun  bool
	underrun bool
}

// New allocates a Buffer.
func New(blockSize, blocks int, policy Policy, limits Limits) (*Buffer, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(policy))
	}
	s, err := limits.Prepare(blockSize, blocks)
	if err != nil {
		return nil, err
	}
	b := &Buffer{limits: limits, policy: policy}
	b.Install(s)
	return b, nil
}

// Limits returns the limits the buffer validates against.
func (b *Buffer) Limits() Limits { return b.limits }

// Reconfigure replaces the storage. On error the buffer is untouched.
func (b *Buffer) Reconfigure(blockSize, blocks int) error {
	s, err := b.limits.Prepare(blockSize, blocks)
	if err != nil {
		return err
	}
	b.Install(s)
	return nil
}

// Install takes ownership of s and resets the ring to empty.
func (b *Buffer) Install(s *Storage) {
	b.blockSize = s.blockSize
	b.blocks = s.blocks
	b.n = make([]int, len(s.blocks))
	b.pos = make([]int, len(s.blocks))
	b.Reset()
}

// Reset discards all data.
func (b *Buffer) Reset() {
	for i := range b.n {
		b.n[i] = 0
		b.pos[i] = 0
	}
	b.in = slot{idx: 0, ok: true}
	b.out = slot{}
	b.gated = b.policy != PolicyImmediate
	b.overrun = false
	b.underrun = false
}

// BlockSize returns the size of one block in bytes.
func (b *Buffer) BlockSize() int { return b.blockSize }

// Blocks returns the number of blocks in the ring.
func (b *Buffer) Blocks() int { return len(b.blocks) }

// Policy returns the gating policy.
func (b *Buffer) Policy() Policy { return b.policy }

// SetPolicy changes the gating policy. An empty ring becomes gated under the
// new policy right away.
func (b *Buffer) SetPolicy(p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPolicy, int(p))
	}
	b.policy = p
	b.gated = p != PolicyImmediate && !b.out.ok
	return nil
}

// Committed returns the number of blocks holding unconsumed data.
func (b *Buffer) Committed() int {
	switch {
	case !b.out.ok:
		return 0
	case !b.in.ok:
		return len(b.blocks)
	default:
		return (b.in.idx - b.out.idx + len(b.blocks)) % len(b.blocks)
	}
}

// Readable reports whether the consumer may take a block now.
func (b *Buffer) Readable() bool { return b.out.ok && !b.gated }

// Writable reports whether the producer has a free block.
func (b *Buffer) Writable() bool { return b.in.ok }

// Push commits p as one block, truncated to the block size.
func (b *Buffer) Push(p []byte) error {
	if !b.in.ok {
		return ErrFull
	}
	i := b.in.idx
	b.pos[i] = 0
	b.commit(copy(b.blocks[i], p))
	return nil
}

// Fill streams p into the ring, committing each block as it completes.
// Bytes that find no free block are dropped; overrun is true on the first
// drop after a period without drops.
func (b *Buffer) Fill(p []byte) (n int, overrun bool) {
	for len(p) > 0 && b.in.ok {
		i := b.in.idx
		c := copy(b.blocks[i][b.pos[i]:], p)
		b.pos[i] += c
		p = p[c:]
		n += c
		if b.pos[i] >= b.blockSize {
			b.commit(b.blockSize)
		}
	}
	if len(p) > 0 {
		overrun = !b.overrun
		b.overrun = true
	} else {
		b.overrun = false
	}
	return n, overrun
}

// Flush commits the producer's partially filled block and lifts gating so
// the consumer can take everything the ring holds. It reports whether a
// partial block was committed.
func (b *Buffer) Flush() bool {
	committed := false
	if b.in.ok && b.pos[b.in.idx] > 0 {
		b.commit(b.pos[b.in.idx])
		committed = true
	}
	if b.out.ok {
		b.gated = false
	}
	return committed
}

// Pull copies the oldest committed block into p and frees it. A block longer
// than p is truncated; the rest is discarded.
func (b *Buffer) Pull(p []byte) (int, error) {
	if !b.Readable() {
		return 0, ErrEmpty
	}
	i := b.out.idx
	c := copy(p, b.blocks[i][b.pos[i]:b.n[i]])
	b.release()
	return c, nil
}

// Drain streams committed bytes into p, freeing each block as it empties.
// underrun is true on the first call that found the ring empty after a
// period of being served.
func (b *Buffer) Drain(p []byte) (n int, underrun bool) {
	for len(p) > 0 && b.Readable() {
		i := b.out.idx
		c := copy(p, b.blocks[i][b.pos[i]:b.n[i]])
		b.pos[i] += c
		p = p[c:]
		n += c
		if b.pos[i] >= b.n[i] {
			b.release()
		}
	}
	if len(p) > 0 && !b.out.ok {
		underrun = !b.underrun
		b.underrun = true
	} else if len(p) == 0 {
		b.underrun = false
	}
	return n, underrun
}

// Peek returns the unconsumed part of the oldest committed block without
// consuming it, or nil. The slice aliases ring storage.
func (b *Buffer) Peek() []byte {
	if !b.Readable() {
		return nil
	}
	i := b.out.idx
	return b.blocks[i][b.pos[i]:b.n[i]]
}

// PullCommitted frees the block Peek returned.
func (b *Buffer) PullCommitted() {
	if b.Readable() {
		b.release()
	}
}

// commit publishes the producer's current block with n bytes and advances.
func (b *Buffer) commit(n int) {
	i := b.in.idx
	b.n[i] = n
	b.pos[i] = 0
	if !b.out.ok {
		b.out = slot{idx: i, ok: true}
	}

	next := (i + 1) % len(b.blocks)
	if next == b.out.idx {
		// Caught up with the consumer: no space until it frees a block.
		b.in = slot{}
		b.gated = false
		return
	}
	b.in = slot{idx: next, ok: true}

	if b.gated && b.policy == PolicyHalfFull && b.Committed() >= len(b.blocks)/2 {
		b.gated = false
	}
}

// release frees the consumer's current block and advances.
func (b *Buffer) release() {
	i := b.out.idx
	b.n[i] = 0
	b.pos[i] = 0

	next := (i + 1) % len(b.blocks)
	if b.in.ok && next == b.in.idx {
		b.out = slot{}
		if b.policy != PolicyImmediate {
			b.gated = true
		}
	} else {
		b.out = slot{idx: next, ok: true}
	}
	if !b.in.ok {
		// The producer was out of space; hand it the block just freed.
		b.in = slot{idx: i, ok: true}
	}
}

// Info is a snapshot of buffer occupancy and configuration.
type Info struct {
	BlockSize int
	Blocks    int
	Committed int
	Free      int
	Policy    Policy
	Gated     bool
}

// Info returns the current snapshot.
func (b *Buffer) Info() Info {
	c := b.Committed()
	return Info{
		BlockSize: b.blockSize,
		Blocks:    len(b.blocks),
		Committed: c,
		Free:      len(b.blocks) - c,
		Policy:    b.policy,
		Gated:     b.gated,
	}
}
