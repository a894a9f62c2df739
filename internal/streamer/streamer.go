// Package streamer consumes a stream of text deltas and publishes them
// progressively to the chat surface via rate-limited message edits,
// chunking at the surface's size limit (spec §4.J).
package streamer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
)

const (
	EditInterval     = 500 * time.Millisecond
	FirstFlushDelay  = 200 * time.Millisecond
	MaxMsgLen        = 2000
	NoResponseText   = "No response."
)

// Surface is the abstract chat surface the streamer publishes to —
// independent of Discord specifics per spec's non-goal on UI internals.
// The discord channel adapter implements this directly (it already chunks
// at 2000 chars for plain sends; the streamer additionally needs to keep
// editing one in-flight message).
type Surface interface {
	SendMessage(ctx context.Context, content string) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, content string) error
	SendTyping(ctx context.Context) error
}

// Streamer drives one run's progressive output.
type Streamer struct {
	surface Surface
	clock   clock.Clock

	mu        sync.Mutex
	buf       strings.Builder
	lastFlush string
	msgID     string
	msgStart  int // index into buf's logical stream where the current message began
	stale     bool
	stop      chan struct{}
	done      chan struct{}
}

func New(surface Surface, c clock.Clock) *Streamer {
	return &Streamer{surface: surface, clock: c, stop: make(chan struct{}), done: make(chan struct{})}
}

// Push appends a text delta to the buffer.
func (s *Streamer) Push(delta string) {
	s.mu.Lock()
	s.buf.WriteString(delta)
	s.stale = true
	s.mu.Unlock()
}

// Run starts the background editor goroutine and blocks until ctx is
// cancelled or Stop is called, then performs the final flush.
func (s *Streamer) Run(ctx context.Context) error {
	defer close(s.done)

	select {
	case <-s.clock.After(FirstFlushDelay):
	case <-ctx.Done():
	case <-s.stop:
	}
	if err := s.flush(ctx); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(EditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			s.mu.Lock()
			stale := s.stale
			s.mu.Unlock()
			if stale {
				if err := s.flush(ctx); err != nil {
					return err
				}
			} else {
				s.surface.SendTyping(ctx)
			}
		case <-ctx.Done():
			return s.finalFlush(ctx)
		case <-s.stop:
			return s.finalFlush(ctx)
		}
	}
}

// Stop ends the streamer and waits for its final flush to complete.
func (s *Streamer) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Streamer) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := s.buf.String()
	if s.msgStart > len(full) {
		return ""
	}
	return full[s.msgStart:]
}

func (s *Streamer) flush(ctx context.Context) error {
	content := s.current()

	for len(content) > MaxMsgLen {
		cut := MaxMsgLen
		if idx := strings.LastIndexByte(content[:MaxMsgLen], '\n'); idx > MaxMsgLen/2 {
			cut = idx + 1
		}
		chunk := content[:cut]
		if err := s.publish(ctx, chunk, true); err != nil {
			return err
		}
		content = content[cut:]
		s.mu.Lock()
		s.msgStart = len(s.buf.String()) - len(content)
		s.msgID = ""
		s.lastFlush = ""
		s.mu.Unlock()
	}

	return s.publish(ctx, content, false)
}

// publish sends or edits the current message. finalize forces starting a
// fresh message afterward (used when a chunk overflowed MaxMsgLen).
func (s *Streamer) publish(ctx context.Context, content string, finalize bool) error {
	s.mu.Lock()
	if content == s.lastFlush && !finalize {
		s.stale = false
		s.mu.Unlock()
		return nil
	}
	msgID := s.msgID
	s.mu.Unlock()

	if msgID == "" {
		id, err := s.surface.SendMessage(ctx, content)
		if err != nil {
			return nil // transient send failures are suppressed; retried next interval
		}
		s.mu.Lock()
		s.msgID = id
		s.lastFlush = content
		s.stale = false
		s.mu.Unlock()
		return nil
	}

	if err := s.surface.EditMessage(ctx, msgID, content); err != nil {
		return nil // suppressed per spec §7: streamer retries on next interval
	}
	s.mu.Lock()
	s.lastFlush = content
	s.stale = false
	s.mu.Unlock()
	return nil
}

func (s *Streamer) finalFlush(ctx context.Context) error {
	s.mu.Lock()
	empty := s.buf.Len() == 0
	s.mu.Unlock()
	if empty {
		_, err := s.surface.SendMessage(ctx, NoResponseText)
		return err
	}
	return s.flush(ctx)
}
