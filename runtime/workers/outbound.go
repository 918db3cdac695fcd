package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
)

var _ contract.Worker = (*OutboundWorker)(nil)

// OutboundWorker owns the write half of one peer.
// It drains the peer's mailbox and writes every message as one line.
// A write failure stops the worker and closes the mailbox, so that the
// next broadcast evicts the peer from the registry.
type OutboundWorker struct {
	log     *slog.Logger
	peer    domain.PeerID
	mailbox *Mailbox
	writer  contract.LineWriteCloser
}

func NewOutboundWorker(log *slog.Logger, peer domain.PeerID, mailbox *Mailbox, writer contract.LineWriteCloser) *OutboundWorker {
	return &OutboundWorker{log: log, peer: peer, mailbox: mailbox, writer: writer}
}

func (w *OutboundWorker) Run(ctx context.Context) error {
	defer func() {
		w.mailbox.Close()
		if err := w.writer.Close(); err != nil {
			w.log.Debug("Failed to close write half", "peer", w.peer, "error", err)
		}
	}()

	for {
		msg, ok := w.mailbox.Receive(ctx)
		if !ok {
			w.log.Debug("Mailbox closed, stopping delivery", "peer", w.peer)
			return nil
		}
		if err := w.writer.WriteLine(msg.Render()); err != nil {
			w.log.Warn("Failed to send message", "peer", w.peer, "error", err)
			return fmt.Errorf("%w: peer %s: %w", errors.ErrTransportWrite, w.peer, err)
		}
	}
}
