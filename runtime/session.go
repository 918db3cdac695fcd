package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const UsernamePrompt = "Enter your username:"

type SessionState int

const (
	AwaitingUsername SessionState = iota
	Active
	Terminated
)

func (s SessionState) String() string {
	switch s {
	case AwaitingUsername:
		return "awaiting_username"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var _ contract.SessionHandler = (*SessionDriver)(nil)

// SessionDriver runs the lifecycle of one connection:
// username handshake, chat loop, then leave announcement and teardown.
type SessionDriver struct {
	log          *slog.Logger
	registry     contract.IRegistry
	flushTimeout time.Duration
}

func NewSessionDriver(log *slog.Logger, registry contract.IRegistry, flushTimeout time.Duration) *SessionDriver {
	return &SessionDriver{log: log, registry: registry, flushTimeout: flushTimeout}
}

// Handle blocks until the connection ends. The transport is closed on return.
// A peer that disconnects before sending its username never joins,
// so nothing is announced for it.
func (d *SessionDriver) Handle(ctx context.Context, id domain.PeerID, transport contract.Transport) error {
	defer func() {
		_ = transport.Close()
	}()
	log := d.log.With("peer", id)

	log.Debug("Session state", "state", AwaitingUsername)
	if err := transport.WriteLine(UsernamePrompt); err != nil {
		return fmt.Errorf("sending prompt: %w", err)
	}
	username, err := transport.ReadLine()
	if err != nil {
		log.Debug("Session state", "state", Terminated, "joined", false)
		if goerrors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("reading username: %w", err)
	}

	peer, err := d.registry.Register(ctx, id, username, transport)
	if err != nil {
		return fmt.Errorf("registering %q: %w", username, err)
	}
	log = log.With("username", username)
	log.Debug("Session state", "state", Active)

	d.announce(ctx, log, id, domain.NewUserJoined(username))
	for {
		line, err := peer.Reader.ReadLine()
		if err != nil {
			if !goerrors.Is(err, io.EOF) {
				log.Warn("Failed to read line", "error", err)
			}
			break
		}
		d.announce(ctx, log, id, domain.NewChat(username, line))
	}

	log.Debug("Session state", "state", Terminated, "joined", true)
	d.announce(ctx, log, id, domain.NewUserLeft(username))
	d.registry.Unregister(id)
	d.awaitFlush(log, peer)
	return nil
}

func (d *SessionDriver) announce(ctx context.Context, log *slog.Logger, id domain.PeerID, message *domain.Message) {
	log.Info(message.Render())
	recipients := d.registry.Broadcast(ctx, id, message)
	log.Debug("Message broadcast", "kind", message.Kind(), "recipients", recipients)
}

// awaitFlush gives the OutboundWorker a chance to write what was queued
// before the connection gets closed.
func (d *SessionDriver) awaitFlush(log *slog.Logger, peer contract.Peer) {
	if peer.Done == nil {
		return
	}
	timer := time.NewTimer(d.flushTimeout)
	defer timer.Stop()
	select {
	case <-peer.Done:
	case <-timer.C:
		log.Warn("Delivery worker did not stop in time", "timeout", d.flushTimeout)
	}
}

// IsDisconnect reports whether err only means the remote side went away.
func IsDisconnect(err error) bool {
	return err == nil || goerrors.Is(err, io.EOF) ||
		goerrors.Is(err, errors.ErrTransportRead) || goerrors.Is(err, errors.ErrTransportWrite)
}
