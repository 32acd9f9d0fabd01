// Package client implements the thin edge adapter described in §4.6: scan
// one command line off the connection, hand it to request.Parse then
// routing.Run, and write back whatever comes out — forwarded bytes, or a
// synthesized CLIENT_ERROR/SERVER_ERROR/ERROR line per §6/§7.
//
// Grounded on the teacher's connection-handling shape (pool.go's
// bufio-wrapped net.Conn) generalized from "one pooled client connection
// talking to one backend" to "one inbound client connection driving a
// routing computation that may talk to many backends".
package client

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/mcproxy/mcproxy/request"
	"github.com/mcproxy/mcproxy/routing"
	"github.com/sirupsen/logrus"
)

// MaxCommandLine is the 1 KiB command-line buffer limit from §4.6, with
// the `get `/`gets ` multiget allowance.
const MaxCommandLine = 1024

// Conn wraps one accepted client connection. Callers run Serve in its own
// goroutine per connection — the idiomatic Go substitute for the original
// event-loop-driven per-connection state machine (see SPEC_FULL.md §4.3's
// note on why a blocking goroutine is the correct analogue here).
type Conn struct {
	net.Conn
	r      *bufio.Reader
	rt     *routing.Runtime
	logger *logrus.Entry
}

func New(conn net.Conn, rt *routing.Runtime, logger *logrus.Entry) *Conn {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Conn{
		Conn:   conn,
		r:      bufio.NewReaderSize(conn, MaxCommandLine),
		rt:     rt,
		logger: logger,
	}
}

// Serve processes commands one at a time, in arrival order, until the
// connection closes or an unrecoverable protocol error occurs (§5's "the
// adapter does not dispatch command k+1 until command k is... replied").
func (c *Conn) Serve(ctx context.Context) {
	defer c.Close()

	for {
		line, err := c.readCommandLine()
		if err != nil {
			if err != io.EOF {
				c.logger.WithError(err).Debug("client connection closed")
			}
			return
		}

		req, perr := request.Parse(line)
		if perr != nil {
			c.logger.WithError(perr).Warn("client protocol error")
			c.writeLine("CLIENT_ERROR " + perr.Error() + "\r\n")
			return
		}

		if req.HasValue() {
			value := make([]byte, req.VLen)
			if _, err := io.ReadFull(c.r, value); err != nil {
				return
			}
			if err := request.SetValue(req, value); err != nil {
				c.writeLine("CLIENT_ERROR " + err.Error() + "\r\n")
				return
			}
		}

		out := c.rt.Run(ctx, req)
		if out.Err != nil {
			c.logger.WithError(out.Err).Error("routing runtime error")
			c.writeLine("SERVER_ERROR " + out.Err.Error() + "\r\n")
			continue
		}
		if len(out.Reply) == 0 {
			c.writeLine("ERROR\r\n")
			continue
		}
		if _, err := c.Conn.Write(out.Reply); err != nil {
			return
		}
	}
}

// readCommandLine reads up to the first '\n', enforcing the 1 KiB limit
// with the multiget allowance: a buffered prefix longer than the limit is
// only accepted if it begins with "get " or "gets ".
func (c *Conn) readCommandLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		buf = append(buf, chunk...)

		if err == nil {
			return trimCRLF(buf), nil
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}

		if len(buf) >= MaxCommandLine && !isMultigetPrefix(buf) {
			return nil, errCommandTooLong
		}
	}
}

func isMultigetPrefix(buf []byte) bool {
	return hasPrefix(buf, "get ") || hasPrefix(buf, "gets ")
}

func hasPrefix(buf []byte, prefix string) bool {
	return len(buf) >= len(prefix) && string(buf[:len(prefix)]) == prefix
}

func trimCRLF(line []byte) []byte {
	n := len(line)
	if n >= 2 && line[n-2] == '\r' && line[n-1] == '\n' {
		return line[:n-2]
	}
	if n >= 1 && line[n-1] == '\n' {
		return line[:n-1]
	}
	return line
}

func (c *Conn) writeLine(s string) {
	c.Conn.Write([]byte(s))
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

const errCommandTooLong protocolError = "command line too long"
