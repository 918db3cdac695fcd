// Package transport frames a byte stream connection into newline-delimited text.
package transport

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/errors"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const DefaultMaxLineLength = 4096

var (
	_ contract.Transport       = (*LineConn)(nil)
	_ contract.LineReader      = (*ReadHalf)(nil)
	_ contract.LineWriteCloser = (*WriteHalf)(nil)
)

// LineConn reads and writes UTF-8 lines on a net.Conn.
// A trailing "\r" is stripped from incoming lines, outgoing lines get "\n" appended.
type LineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	maxLen  int
	wmu     sync.Mutex
}

func NewLineConn(conn net.Conn, maxLineLength int) *LineConn {
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}
	scanner := bufio.NewScanner(conn)
	// +2 leaves room for the "\r\n" terminator of a line of exactly maxLineLength bytes
	scanner.Buffer(make([]byte, 0, min(maxLineLength+2, 4096)), maxLineLength+2)
	return &LineConn{conn: conn, scanner: scanner, maxLen: maxLineLength}
}

// ReadLine blocks until a full line arrives.
// It returns io.EOF when the remote side closed the connection cleanly.
func (c *LineConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		line := c.scanner.Text()
		if len(line) > c.maxLen {
			return "", fmt.Errorf("%w: %d bytes (max %d)", errors.ErrLineTooLong, len(line), c.maxLen)
		}
		return line, nil
	}
	err := c.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case goerrors.Is(err, bufio.ErrTooLong):
		return "", fmt.Errorf("%w (max %d bytes)", errors.ErrLineTooLong, c.maxLen)
	default:
		return "", fmt.Errorf("%w: %w", errors.ErrTransportRead, err)
	}
}

func (c *LineConn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrTransportWrite, err)
	}
	return nil
}

// Split hands out the read and write halves of the connection.
// The LineConn must not be used for reading or writing afterwards.
func (c *LineConn) Split() (contract.LineReader, contract.LineWriteCloser) {
	return &ReadHalf{conn: c}, &WriteHalf{conn: c}
}

func (c *LineConn) Close() error {
	return c.conn.Close()
}

func (c *LineConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

type ReadHalf struct {
	conn *LineConn
}

func (r *ReadHalf) ReadLine() (string, error) {
	return r.conn.ReadLine()
}

type WriteHalf struct {
	conn *LineConn
	once sync.Once
}

func (w *WriteHalf) WriteLine(line string) error {
	return w.conn.WriteLine(line)
}

// Close shuts down the sending side only, when the connection supports it.
// The read half keeps working so the session can still observe the remote end.
func (w *WriteHalf) Close() error {
	var err error
	w.once.Do(func() {
		if cw, ok := w.conn.conn.(interface{ CloseWrite() error }); ok {
			err = cw.CloseWrite()
		}
	})
	return err
}
