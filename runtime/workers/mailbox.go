package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"sync"
	"time"
)

// Mailbox is the bounded queue between the broadcasters and one peer's OutboundWorker.
// Many goroutines may send, only the owning worker receives.
// The underlying channel is never closed: closing is signaled through a separate
// channel so that a late sender gets ErrMailboxClosed instead of a panic.
type Mailbox struct {
	messages chan *domain.Message
	closed   chan struct{}
	once     sync.Once
}

func NewMailbox(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		messages: make(chan *domain.Message, capacity),
		closed:   make(chan struct{}),
	}
}

// TrySend enqueues without waiting.
func (m *Mailbox) TrySend(msg *domain.Message) error {
	select {
	case <-m.closed:
		return errors.ErrMailboxClosed
	default:
	}
	select {
	case m.messages <- msg:
		return nil
	case <-m.closed:
		return errors.ErrMailboxClosed
	default:
		return errors.ErrMailboxFull
	}
}

// Send waits for room at most timeout.
// ErrMailboxFull is returned when the peer did not drain its queue in time.
func (m *Mailbox) Send(ctx context.Context, msg *domain.Message, timeout time.Duration) error {
	if err := m.TrySend(msg); err != errors.ErrMailboxFull {
		return err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.messages <- msg:
		return nil
	case <-m.closed:
		return errors.ErrMailboxClosed
	case <-timer.C:
		return errors.ErrMailboxFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available.
// Once the mailbox is closed, the remaining messages are still handed out,
// then ok is false.
func (m *Mailbox) Receive(ctx context.Context) (msg *domain.Message, ok bool) {
	select {
	case msg = <-m.messages:
		return msg, true
	case <-m.closed:
		select {
		case msg = <-m.messages:
			return msg, true
		default:
			return nil, false
		}
	case <-ctx.Done():
		return nil, false
	}
}

func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.closed) })
}

func (m *Mailbox) Closed() <-chan struct{} { return m.closed }

func (m *Mailbox) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *Mailbox) Len() int { return len(m.messages) }
func (m *Mailbox) Cap() int { return cap(m.messages) }
