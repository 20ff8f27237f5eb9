// Package sessionid implements the process-wide session-id counter
// CAPF uses to assign a session_id to each accepted connection. It
// wraps at 2^32 and stays monotonic modulo 2^32 within a run, which is
// all the wire format (a u32 field) can represent.
package sessionid

import "sync/atomic"

// Counter hands out consecutive uint32 session ids. The zero value is
// ready to use and starts at 1; after wrapping, 0 is handed out like
// any other id.
type Counter struct {
	next atomic.Uint32
}

// New returns a Counter whose first Next() call returns 1.
func New() *Counter {
	return &Counter{}
}

// Next atomically returns the next session id, wrapping from
// 0xFFFFFFFF back to 0 and continuing from there.
func (c *Counter) Next() uint32 {
	return c.next.Add(1)
}
