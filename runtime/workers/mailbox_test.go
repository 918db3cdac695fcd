package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailbox_TrySend_Full(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(2)

	// Given a mailbox filled up to its capacity
	req.NoError(mailbox.TrySend(domain.NewChat("alice", "1")))
	req.NoError(mailbox.TrySend(domain.NewChat("alice", "2")))
	req.Equal(2, mailbox.Len())
	req.Equal(2, mailbox.Cap())

	// Then the next send is refused without blocking
	req.ErrorIs(mailbox.TrySend(domain.NewChat("alice", "3")), errors.ErrMailboxFull)
}

func TestMailbox_Send_TimesOutWhenNotDrained(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(1)
	req.NoError(mailbox.TrySend(domain.NewChat("alice", "1")))

	start := time.Now()
	err := mailbox.Send(context.Background(), domain.NewChat("alice", "2"), 30*time.Millisecond)

	req.ErrorIs(err, errors.ErrMailboxFull)
	req.GreaterOrEqual(time.Since(start), 30*time.Millisecond)
}

func TestMailbox_Send_WaitsForRoom(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(1)
	first := domain.NewChat("alice", "1")
	second := domain.NewChat("alice", "2")
	req.NoError(mailbox.TrySend(first))

	// Given a consumer draining the mailbox a bit later
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = mailbox.Receive(context.Background())
	}()

	// Then the blocked send succeeds
	req.NoError(mailbox.Send(context.Background(), second, time.Second))
	msg, ok := mailbox.Receive(context.Background())
	req.True(ok)
	req.Same(second, msg)
}

func TestMailbox_Close(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(4)
	first := domain.NewChat("alice", "1")
	req.NoError(mailbox.TrySend(first))

	// When the mailbox is closed twice
	mailbox.Close()
	mailbox.Close()
	req.True(mailbox.IsClosed())

	// Then senders are told so
	req.ErrorIs(mailbox.TrySend(domain.NewChat("alice", "2")), errors.ErrMailboxClosed)
	req.ErrorIs(mailbox.Send(context.Background(), domain.NewChat("alice", "3"), time.Second), errors.ErrMailboxClosed)

	// And queued messages are still handed out before the end
	msg, ok := mailbox.Receive(context.Background())
	req.True(ok)
	req.Same(first, msg)

	_, ok = mailbox.Receive(context.Background())
	req.False(ok)
}

func TestMailbox_Receive_ContextCancelled(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mailbox.Receive(ctx)
	req.False(ok)
}

func TestMailbox_FIFO(t *testing.T) {
	req := require.New(t)
	mailbox := NewMailbox(8)
	sent := []*domain.Message{
		domain.NewChat("alice", "1"),
		domain.NewChat("alice", "2"),
		domain.NewChat("alice", "3"),
	}
	for _, m := range sent {
		req.NoError(mailbox.TrySend(m))
	}
	for _, expected := range sent {
		msg, ok := mailbox.Receive(context.Background())
		req.True(ok)
		req.Same(expected, msg)
	}
}
