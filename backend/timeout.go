package backend

import "time"

// armTimeout sets a read deadline for the upcoming drive cycle. Go's
// blocking read returns a timeout error when the deadline elapses, which
// driveOnce's caller (readLoop) routes to handleReadError; a dedicated
// net.Error.Timeout() check there upgrades it to draining the whole queue
// with StatusTimeout, matching §4.3's "every IO currently in the backend
// queue is marked with a timeout status".
func (b *Backend) armTimeout() {
	b.writeMu.Lock()
	conn := b.conn
	b.writeMu.Unlock()
	if conn != nil {
		conn.SetReadDeadline(time.Now().Add(b.timeout))
	}
}

func (b *Backend) disarmTimeout() {
	b.writeMu.Lock()
	conn := b.conn
	b.writeMu.Unlock()
	if conn != nil {
		conn.SetReadDeadline(time.Time{})
	}
}
