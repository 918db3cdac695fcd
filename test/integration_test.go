package test

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type relay struct {
	registry *runtime.Registry
	driver   *runtime.SessionDriver
	sup      *workers.Supervisor
}

func newRelay(capacity int, deliveryTimeout time.Duration) relay {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sup := workers.NewSupervisor(log, 50*time.Millisecond)
	registry := runtime.NewRegistry(log, sup, 4, capacity, deliveryTimeout)
	return relay{
		registry: registry,
		driver:   runtime.NewSessionDriver(log, registry, deliveryTimeout),
		sup:      sup,
	}
}

// participant is the client end of an in-memory connection driven by a SessionDriver.
type participant struct {
	id      domain.PeerID
	client  net.Conn
	scanner *bufio.Scanner
	lines   chan string
	ended   chan error
}

// connect starts a session and consumes the username prompt.
func (r relay) connect(t *testing.T, id string) *participant {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	p := &participant{
		id:      domain.PeerID(id),
		client:  client,
		scanner: bufio.NewScanner(client),
		lines:   make(chan string, 256),
		ended:   make(chan error, 1),
	}
	go func() {
		p.ended <- r.driver.Handle(context.Background(), p.id, transport.NewLineConn(server, 1024))
	}()
	require.True(t, p.scanner.Scan())
	require.Equal(t, runtime.UsernamePrompt, p.scanner.Text())
	return p
}

// join sends the username. When drain is false the participant never reads again.
func (r relay) join(t *testing.T, id, username string, drain bool) *participant {
	p := r.connect(t, id)
	_, err := p.client.Write([]byte(username + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.registry.Contains(p.id)
	}, time.Second, 5*time.Millisecond)
	if drain {
		go func() {
			for p.scanner.Scan() {
				p.lines <- p.scanner.Text()
			}
		}()
	}
	return p
}

func (p *participant) say(t *testing.T, line string) {
	_, err := p.client.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (p *participant) expect(t *testing.T, expected string) {
	t.Helper()
	select {
	case line := <-p.lines:
		require.Equal(t, expected, line)
	case <-time.After(2 * time.Second):
		require.Failf(t, "line not received", "%s expected %q", p.id, expected)
	}
}

func (p *participant) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case line := <-p.lines:
		require.Failf(t, "unexpected line", "%s received %q", p.id, line)
	case <-time.After(wait):
	}
}

func Test_Scenario_ThreePeers(t *testing.T) {
	r := newRelay(128, time.Second)

	// Given A, B and C joining in order
	a := r.join(t, "10.0.0.1:1000", "A", true)
	b := r.join(t, "10.0.0.2:1000", "B", true)
	a.expect(t, "B joined the chat")
	c := r.join(t, "10.0.0.3:1000", "C", true)
	a.expect(t, "C joined the chat")
	b.expect(t, "C joined the chat")

	// When A sends hello
	a.say(t, "hello")

	// Then B and C receive it, A gets none of its own messages
	b.expect(t, "A: hello")
	c.expect(t, "A: hello")
	a.expectNothing(t, 100*time.Millisecond)
}

func Test_Scenario_LeaveIsAnnouncedAndPeerRemoved(t *testing.T) {
	req := require.New(t)
	r := newRelay(128, time.Second)
	a := r.join(t, "10.0.0.1:1000", "A", true)
	b := r.join(t, "10.0.0.2:1000", "B", true)
	a.expect(t, "B joined the chat")

	// When B's connection ends
	_ = b.client.Close()

	// Then A is told and B is explicitly removed from the registry
	a.expect(t, "B left the chat, :(")
	select {
	case err := <-b.ended:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("B's session should have ended")
	}
	req.False(r.registry.Contains(b.id))
	req.Equal(1, r.registry.Len())
}

func Test_Scenario_NeverJoined(t *testing.T) {
	req := require.New(t)
	r := newRelay(128, time.Second)
	a := r.join(t, "10.0.0.1:1000", "A", true)

	// Given D disconnecting before sending a username
	d := r.connect(t, "10.0.0.4:1000")
	_ = d.client.Close()

	select {
	case err := <-d.ended:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("D's session should have ended")
	}

	// Then no join or leave is announced for D
	a.expectNothing(t, 100*time.Millisecond)
	req.Equal(1, r.registry.Len())
}

func Test_Scenario_BackpressureIsolation(t *testing.T) {
	req := require.New(t)
	deliveryTimeout := 100 * time.Millisecond
	r := newRelay(4, deliveryTimeout)

	a := r.join(t, "10.0.0.1:1000", "A", true)
	// Given B joining, then never reading anything again
	b := r.join(t, "10.0.0.2:1000", "B", false)
	a.expect(t, "B joined the chat")
	c := r.join(t, "10.0.0.3:1000", "C", true)
	a.expect(t, "C joined the chat")

	// When A talks much more than B's mailbox can hold
	start := time.Now()
	for i := 0; i < 50; i++ {
		a.say(t, fmt.Sprint(i))
	}

	// Then C still gets everything, in order, promptly.
	// B's leave may show up anywhere in between, once its eviction ended its session
	const bLeft = "B left the chat, :("
	leftSeen := false
	for i := 0; i < 50; {
		select {
		case line := <-c.lines:
			if line == bLeft && !leftSeen {
				leftSeen = true
				continue
			}
			req.Equal(fmt.Sprintf("A: %d", i), line)
			i++
		case <-time.After(2 * time.Second):
			req.Failf("line not received", "C expected %q", fmt.Sprintf("A: %d", i))
		}
	}
	req.Less(time.Since(start), 20*deliveryTimeout)

	// And B has been evicted, its connection torn down and its session ended
	req.Eventually(func() bool {
		return !r.registry.Contains(b.id)
	}, time.Second, 10*time.Millisecond)
	select {
	case err := <-b.ended:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("session of evicted peer still running")
	}
	if !leftSeen {
		c.expect(t, bLeft)
	}
}
