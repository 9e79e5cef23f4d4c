package utils

import (
	"io"
)

// drainLimit caps how much of an unread body is discarded before closing.
const drainLimit = 4 << 10

// DrainAndClose discards a bounded remainder of rc and closes it, so the
// underlying keep-alive connection can go back to the pool.
func DrainAndClose(rc io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, rc, drainLimit)
	_ = rc.Close()
}
