package tcp

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func startServer(t *testing.T, handler contract.SessionHandler) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	server := NewServer(log, "127.0.0.1:0", handler, 128, time.Second)
	require.NoError(t, server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()
	t.Cleanup(cancel)
	return server, cancel, errChan
}

func TestServer_HandsConnectionToHandler(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockSessionHandler(ctrl)

	handled := make(chan domain.PeerID, 1)
	handler.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, id domain.PeerID, tr contract.Transport) error {
			handled <- id
			// Echo one line through the framed transport
			line, err := tr.ReadLine()
			if err != nil {
				return err
			}
			return tr.WriteLine("echo " + line)
		})

	server, cancel, errChan := startServer(t, handler)

	// When a client connects and sends a line
	client, err := net.Dial("tcp", server.Addr().String())
	req.NoError(err)
	defer client.Close()
	_, err = client.Write([]byte("ping\n"))
	req.NoError(err)

	// Then the handler gets the remote address as peer identity
	select {
	case id := <-handled:
		req.Equal(domain.PeerID(client.LocalAddr().String()), id)
	case <-time.After(time.Second):
		req.Fail("Handler should have been called")
	}

	// And the transport is line framed
	reply, err := bufio.NewReader(client).ReadString('\n')
	req.NoError(err)
	req.Equal("echo ping\n", reply)

	cancel()
	select {
	case err := <-errChan:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("Serve should return after cancellation")
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockSessionHandler(ctrl)

	// Given a handler blocked on reading an idle connection
	started := make(chan struct{})
	handler.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, id domain.PeerID, tr contract.Transport) error {
			close(started)
			_, err := tr.ReadLine()
			return err
		})

	server, cancel, errChan := startServer(t, handler)
	client, err := net.Dial("tcp", server.Addr().String())
	req.NoError(err)
	defer client.Close()
	<-started
	req.Equal(1, server.ConnCount())

	// When the server is stopped
	cancel()

	// Then the session is unblocked and Serve returns cleanly
	select {
	case err := <-errChan:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("Serve should return after cancellation")
	}
	req.Zero(server.ConnCount())

	// And new connections are refused
	_, err = net.DialTimeout("tcp", server.Addr().String(), 200*time.Millisecond)
	req.Error(err)
}

func TestServer_ListenFailure(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	// Given a port already in use
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer busy.Close()

	server := NewServer(log, busy.Addr().String(), mocks.NewMockSessionHandler(ctrl), 128, time.Second)

	req.Error(server.Serve(context.Background()))
	req.Nil(server.Addr())
}
