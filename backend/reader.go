package backend

import (
	"errors"
	"io"
	"net"

	"github.com/mcproxy/mcproxy/internal/coarsetime"
)

type driveState int

const (
	stateRead driveState = iota
	stateWantRead
	stateReadEnd
	stateNext
)

// readLoop repeatedly drives the response state machine until the
// connection errors or is closed. It is the only goroutine that touches
// b.reader, so it needs no lock — the Go analogue of "at most one reader
// state at a time" from §3's Backend invariants. Between cycles it blocks
// on the FIFO's condition variable rather than polling, so an idle
// backend (the common case) parks instead of spinning.
func (b *Backend) readLoop() {
	for {
		pio := b.queue.waitNonEmpty()
		if pio == nil {
			// queue.close() fired: the backend is shutting down and
			// nothing is left pending.
			return
		}

		select {
		case <-b.closeCh:
			return
		default:
		}

		if err := b.driveOnce(pio); err != nil {
			b.handleReadError(err)
			return
		}
	}
}

// driveOnce runs one full state-machine cycle for pio, the PendingIO
// already confirmed to be at the head of the FIFO by the caller,
// implementing the Read/WantRead/ReadEnd/Next transitions of §4.3
// verbatim. Partial reads that would block a nonblocking socket are
// instead absorbed by io.ReadFull/bufio blocking — see SPEC_FULL.md
// §4.3's note on why a blocking goroutine is the correct analogue here.
func (b *Backend) driveOnce(pio *PendingIO) error {
	b.armTimeout()
	defer b.disarmTimeout()

	state := stateRead
	var resp *Response
	var headerLen int

	for {
		switch state {
		case stateRead:
			line, err := b.readLine()
			if err != nil {
				return err
			}
			kind, tok, vlen, cerr := classify(line)
			if cerr != nil {
				b.desync(cerr)
				return cerr
			}

			header := make([]byte, 0, len(line)+2)
			header = append(header, line...)
			header = append(header, '\r', '\n')
			headerLen = len(header)

			resp = &Response{Kind: kind, Status: StatusOK, Line: tok, ResLen: headerLen, VLen: vlen}

			switch kind {
			case KindEnd:
				resp.Buffer = header
				state = stateNext
			case KindGet:
				resp.Buffer = b.bufs.Get(headerLen + vlen + len(endLiteral))
				resp.Buffer = append(resp.Buffer, header...)
				if vlen > 0 {
					state = stateWantRead
				} else {
					state = stateReadEnd
				}
			default: // KindMeta, KindGeneric
				resp.Buffer = b.bufs.Get(headerLen + vlen)
				resp.Buffer = append(resp.Buffer, header...)
				if vlen > 0 {
					state = stateWantRead
				} else {
					state = stateNext
				}
			}

		case stateWantRead:
			valueBuf := make([]byte, resp.VLen)
			if _, err := io.ReadFull(b.reader, valueBuf); err != nil {
				return err
			}
			resp.Buffer = append(resp.Buffer, valueBuf...)
			if resp.Kind == KindGet {
				state = stateReadEnd
			} else {
				state = stateNext
			}

		case stateReadEnd:
			line, err := b.readLine()
			if err != nil {
				return err
			}
			if string(line) != "END" {
				err := errf("expected END after value, got: " + string(line))
				b.desync(err)
				return err
			}
			resp.Buffer = append(resp.Buffer, endLiteral...)
			state = stateNext

		case stateNext:
			b.queue.pop()
			resp.Latency = coarsetime.Now().Sub(pio.submittedAt)
			pio.OnComplete(resp, nil)
			return nil
		}
	}
}

// readLine reads one CRLF-terminated line and returns it without the
// trailing CRLF.
func (b *Backend) readLine() ([]byte, error) {
	line, err := b.reader.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	n := len(line)
	if n >= 2 && line[n-2] == '\r' {
		return line[:n-2], nil
	}
	if n >= 1 && line[n-1] == '\n' {
		return line[:n-1], nil
	}
	return line, nil
}

// desync marks the backend fatal per §4.3's ReadEnd branch and this spec's
// resolution of the source's open TODO: drain + reset rather than attempt
// resync.
func (b *Backend) desync(cause error) {
	b.logger.WithError(cause).Error("backend response desync")
	b.failAll(StatusDesync)
	b.resetConn()
}

func (b *Backend) handleReadError(err error) {
	if errors.Is(err, net.ErrClosed) {
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		b.logger.Error("backend response timeout")
		b.failAll(StatusTimeout)
		b.resetConn()
		return
	}

	b.logger.WithError(err).Warn("backend connection read error")
	b.failAll(StatusConnectError)
	b.resetConn()
}

func (b *Backend) resetConn() {
	b.writeMu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.canWrite = false
	b.writeMu.Unlock()
}
