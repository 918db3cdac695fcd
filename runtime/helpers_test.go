package runtime

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// testPeer is the client side of an in-memory connection.
type testPeer struct {
	id     domain.PeerID
	conn   *transport.LineConn
	client net.Conn
	lines  chan string
}

// newTestPeer creates a connection whose client side is drained in the background
// when drain is true. A non-drained peer blocks its OutboundWorker on the first write.
func newTestPeer(t *testing.T, id string, drain bool) *testPeer {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	p := &testPeer{
		id:     domain.PeerID(id),
		conn:   transport.NewLineConn(server, transport.DefaultMaxLineLength),
		client: client,
		lines:  make(chan string, 256),
	}
	if drain {
		go func() {
			defer close(p.lines)
			scanner := bufio.NewScanner(client)
			for scanner.Scan() {
				p.lines <- scanner.Text()
			}
		}()
	}
	return p
}

func (p *testPeer) expect(t *testing.T, expected string) {
	t.Helper()
	select {
	case line := <-p.lines:
		require.Equal(t, expected, line)
	case <-time.After(time.Second):
		require.Failf(t, "line not received", "peer %s expected %q", p.id, expected)
	}
}

func (p *testPeer) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case line, ok := <-p.lines:
		if ok {
			require.Failf(t, "unexpected line", "peer %s received %q", p.id, line)
		}
	case <-time.After(wait):
	}
}

func newTestRegistry(capacity int, deliveryTimeout time.Duration) (*Registry, *workers.Supervisor) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sup := workers.NewSupervisor(log, 10*time.Millisecond)
	return NewRegistry(log, sup, 4, capacity, deliveryTimeout), sup
}

func register(t *testing.T, r *Registry, p *testPeer, username string) {
	t.Helper()
	_, err := r.Register(context.Background(), p.id, username, p.conn)
	require.NoError(t, err)
}
