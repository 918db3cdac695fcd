package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Transport
	ErrTransportRead  = fmt.Errorf("transport read failed")
	ErrTransportWrite = fmt.Errorf("transport write failed")
	ErrLineTooLong    = fmt.Errorf("line exceeds maximum length")

	// Mailbox
	ErrMailboxClosed = fmt.Errorf("mailbox closed")
	// ErrMailboxFull is transient: the sender waits for room before giving up on the peer.
	ErrMailboxFull = fmt.Errorf("mailbox full")

	// Registry
	ErrPeerAlreadyRegistered = fmt.Errorf("peer already registered")
)
