package e2e

import (
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/tcp"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	Addr   string

	cancel   context.CancelFunc
	served   chan error
	registry *runtime.Registry
	sup      *workers.Supervisor
}

// SetupSuite loads the environment configuration and starts a relay when none is given
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.RelayAddr != "" {
		s.Addr = s.Config.RelayAddr
		return
	}

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s.sup = workers.NewSupervisor(log, 50*time.Millisecond)
	s.registry = runtime.NewRegistry(log, s.sup, 8, s.Config.MailboxCapacity, s.Config.DeliveryTimeout)
	driver := runtime.NewSessionDriver(log, s.registry, s.Config.DeliveryTimeout)
	server := tcp.NewServer(log, "127.0.0.1:0", driver, transport.DefaultMaxLineLength, 2*time.Second)
	s.Require().NoError(server.Listen())
	s.Addr = server.Addr().String()

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.served = make(chan error, 1)
	go func() {
		s.served <- server.Serve(ctx)
	}()
}

func (s *BaseRelaySuite) TearDownSuite() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.Require().NoError(<-s.served)
	s.registry.Close()
	s.sup.Wait()
}

// SetupTest waits for the sessions of the previous test to be torn down,
// otherwise their leave announcements would reach the new peers.
func (s *BaseRelaySuite) SetupTest() {
	if s.registry == nil {
		return
	}
	s.Require().Eventually(func() bool {
		return s.registry.Len() == 0
	}, s.Config.Timeout, 10*time.Millisecond)
}

// Header prints a colorized step title in the test logs
func (s *BaseRelaySuite) Header(title string) {
	header := fmt.Sprintf("  ====== %s ======", title)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Connect opens a raw connection and checks the username prompt
func (s *BaseRelaySuite) Connect() *Client {
	conn, err := net.DialTimeout("tcp", s.Addr, s.Config.Timeout)
	s.Require().NoError(err)
	c := newClient(s, conn)
	c.Expect(runtime.UsernamePrompt)
	return c
}

// Join connects and answers the prompt with username
func (s *BaseRelaySuite) Join(username string) *Client {
	s.Header("join " + username)
	c := s.Connect()
	c.Name = username
	c.Say(username)
	return c
}

// Client is one chat participant seen from the outside.
// Lines are read in the background so that waiting for silence does not
// break the next read.
type Client struct {
	Name  string
	suite *BaseRelaySuite
	lines *transport.LineConn
	recv  chan string
}

func newClient(s *BaseRelaySuite, conn net.Conn) *Client {
	c := &Client{
		suite: s,
		lines: transport.NewLineConn(conn, transport.DefaultMaxLineLength),
		recv:  make(chan string, 256),
	}
	go func() {
		defer close(c.recv)
		for {
			line, err := c.lines.ReadLine()
			if err != nil {
				return
			}
			c.recv <- line
		}
	}()
	return c
}

func (c *Client) Say(line string) {
	c.suite.Require().NoError(c.lines.WriteLine(line))
}

func (c *Client) Expect(expected string) {
	select {
	case line, ok := <-c.recv:
		c.suite.Require().True(ok, "%s: connection closed while waiting for %q", c.Name, expected)
		c.suite.Require().Equal(expected, line, c.Name)
	case <-time.After(c.suite.Config.Timeout):
		c.suite.Require().Failf("line not received", "%s expected %q", c.Name, expected)
	}
}

func (c *Client) ExpectSilence(wait time.Duration) {
	select {
	case line, ok := <-c.recv:
		if ok {
			c.suite.Require().Failf("unexpected line", "%s received %q", c.Name, line)
		}
	case <-time.After(wait):
	}
}

func (c *Client) Close() {
	_ = c.lines.Close()
}
