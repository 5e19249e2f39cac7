package chat

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mireilabs/velora/backend/internal/fault"
)

// Inbound is one raw client message waiting in the buffer. Exactly one of
// Text or Audio is set.
type Inbound struct {
	Text       string
	Audio      []byte
	MimeType   string
	Voice      bool // reply with audio
	ReceivedAt time.Time
}

// IsAudio reports whether the message needs transcription first.
func (m Inbound) IsAudio() bool { return len(m.Audio) > 0 }

// FlushFunc handles one coalesced batch for a conversation. It is invoked
// from the buffer's per-conversation loop, never concurrently for the same
// key.
type FlushFunc func(conversationKey string, batch []Inbound)

type bufferState int

const (
	stateIdle bufferState = iota
	stateBuffering
	stateFlushing
)

func (s bufferState) String() string {
	switch s {
	case stateBuffering:
		return "buffering"
	case stateFlushing:
		return "flushing"
	default:
		return "idle"
	}
}

type convBuffer struct {
	state          bufferState
	pending        []Inbound
	timer          *time.Timer
	gen            uint64 // bumped whenever the debounce cycle restarts
	lastActivity   time.Time
	disconnectedAt time.Time
}

// Buffer coalesces rapid-fire client messages per conversation. Messages
// arriving within the debounce window collapse into one batch; at most one
// flush runs per conversation, and messages arriving mid-flush queue up
// for an immediate follow-up batch.
//
// The buffer owns all per-conversation entries: they are created on first
// use and evicted by Sweep once idle past the TTL or disconnected past the
// grace period.
type Buffer struct {
	mu    sync.Mutex
	convs map[string]*convBuffer

	window  time.Duration
	idleTTL time.Duration
	grace   time.Duration
	flush   FlushFunc
}

func NewBuffer(window, idleTTL, grace time.Duration, flush FlushFunc) *Buffer {
	return &Buffer{
		convs:   make(map[string]*convBuffer),
		window:  window,
		idleTTL: idleTTL,
		grace:   grace,
		flush:   flush,
	}
}

// Enqueue adds a message to the conversation's buffer. Text that reads as
// a finished thought flushes without waiting out the debounce window.
func (b *Buffer) Enqueue(conversationKey string, msg Inbound) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.convs[conversationKey]
	if !ok {
		cb = &convBuffer{}
		b.convs[conversationKey] = cb
	}
	cb.pending = append(cb.pending, msg)
	cb.lastActivity = msg.ReceivedAt
	cb.disconnectedAt = time.Time{}

	switch cb.state {
	case stateFlushing:
		// A flush is running; the loop picks this batch up as soon as it
		// finishes.
		return
	case stateIdle:
		cb.state = stateBuffering
	case stateBuffering:
		cb.timer.Stop()
	}

	cb.gen++
	gen := cb.gen
	window := b.window
	if endsThought(msg) {
		window = 0
	}
	cb.timer = time.AfterFunc(window, func() { b.fire(conversationKey, gen) })
}

// fire is the debounce-timer callback: it claims the pending batch and
// starts the flush loop. gen identifies the cycle the timer belongs to; a
// timer superseded by a later enqueue or a disconnect is a no-op.
func (b *Buffer) fire(conversationKey string, gen uint64) {
	b.mu.Lock()
	cb, ok := b.convs[conversationKey]
	if !ok {
		b.mu.Unlock()
		return
	}
	if gen != cb.gen {
		b.mu.Unlock()
		return
	}
	if cb.state != stateBuffering {
		if cb.state == stateFlushing {
			// A current-cycle timer found a flush already running. That
			// cannot happen through Enqueue/Disconnect; flag it.
			log.Printf("[buffer] %v: conversation=%s state=%s", fault.ErrBufferRace, conversationKey, cb.state)
		}
		b.mu.Unlock()
		return
	}
	cb.state = stateFlushing
	b.mu.Unlock()

	go b.run(conversationKey, cb)
}

// run drains batches until none are pending. Only one run loop exists per
// conversation at a time; that is the single-flight guarantee.
func (b *Buffer) run(conversationKey string, cb *convBuffer) {
	for {
		b.mu.Lock()
		if len(cb.pending) == 0 {
			cb.state = stateIdle
			cb.lastActivity = time.Now()
			b.mu.Unlock()
			return
		}
		batch := cb.pending
		cb.pending = nil
		b.mu.Unlock()

		b.flush(conversationKey, batch)
	}
}

// Disconnect marks the conversation's client as gone and cancels any
// not-yet-started flush. A flush already claimed runs to completion; the
// entry itself survives the grace period for a quick reconnect.
func (b *Buffer) Disconnect(conversationKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.convs[conversationKey]
	if !ok {
		return
	}
	cb.disconnectedAt = time.Now()
	cb.pending = nil
	cb.gen++
	if cb.state == stateBuffering {
		cb.timer.Stop()
		cb.state = stateIdle
	}
}

// Sweep evicts idle and long-disconnected conversations and returns how
// many were removed. Entries mid-buffer or mid-flush are never evicted.
func (b *Buffer) Sweep() int {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for key, cb := range b.convs {
		if cb.state != stateIdle || len(cb.pending) > 0 {
			continue
		}
		expired := b.idleTTL > 0 && now.Sub(cb.lastActivity) > b.idleTTL
		abandoned := !cb.disconnectedAt.IsZero() && b.grace > 0 && now.Sub(cb.disconnectedAt) > b.grace
		if expired || abandoned {
			delete(b.convs, key)
			evicted++
		}
	}
	return evicted
}

// Len reports how many conversations currently hold buffer entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.convs)
}

// endsThought reports whether the message looks like a completed thought,
// in which case waiting out the debounce window just adds latency.
func endsThought(msg Inbound) bool {
	if msg.IsAudio() {
		return true
	}
	trimmed := strings.TrimSpace(msg.Text)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
