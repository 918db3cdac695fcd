//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Spawn(ctx context.Context, worker Worker) <-chan struct{}
	Stop()
	Wait()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// LineReader yields one line at a time, without its terminator.
// io.EOF is returned once the remote side closed the stream.
type LineReader interface {
	ReadLine() (string, error)
}

type LineWriter interface {
	WriteLine(line string) error
}

type LineWriteCloser interface {
	LineWriter
	Close() error
}

// Transport is a connection already framed into lines.
// Split hands out independent halves so that reading and writing
// can be owned by two different goroutines.
type Transport interface {
	LineReader
	LineWriter
	Split() (LineReader, LineWriteCloser)
	Close() error
}

// Peer is returned to a session once registered.
// Done is closed when the outbound delivery worker of the peer has stopped.
type Peer struct {
	ID       domain.PeerID
	Username string
	Reader   LineReader
	Done     <-chan struct{}
}

type IRegistry interface {
	Register(ctx context.Context, id domain.PeerID, username string, transport Transport) (Peer, error)
	Broadcast(ctx context.Context, exclude domain.PeerID, message *domain.Message) int
	Unregister(id domain.PeerID) bool
	Len() int
}

type StatsProvider interface {
	Stats() []domain.MailboxStats
}

type SessionHandler interface {
	Handle(ctx context.Context, id domain.PeerID, transport Transport) error
}
