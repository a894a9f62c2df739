package agentrt

import "sync"

// AgentLock is the single per-owner mutual-exclusion primitive: at most one
// chat turn or fork ever runs at a time (spec §5). Unlike sync.Mutex it
// exposes a non-blocking Locked() query so skip_if_busy fires can decide
// not to wait at all.
type AgentLock struct {
	mu     sync.Mutex
	ch     chan struct{}
	chInit sync.Once
}

func NewAgentLock() *AgentLock {
	l := &AgentLock{}
	l.chInit.Do(func() { l.ch = make(chan struct{}, 1) })
	return l
}

// TryLock attempts to acquire the lock without blocking.
func (l *AgentLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Lock blocks until the lock is acquired.
func (l *AgentLock) Lock() {
	l.ch <- struct{}{}
}

func (l *AgentLock) Unlock() {
	select {
	case <-l.ch:
	default:
	}
}

// Locked reports whether the lock is currently held, without acquiring it.
func (l *AgentLock) Locked() bool {
	select {
	case l.ch <- struct{}{}:
		<-l.ch
		return false
	default:
		return true
	}
}
