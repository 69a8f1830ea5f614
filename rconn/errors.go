package rconn

import "errors"

// ErrNotConnected is returned by Send when the connection is not in
// ACTIVE or IDLE state. The caller retains ownership of the message it
// tried to send.
var ErrNotConnected = errors.New("rconn: not connected")

// ErrRetryLater is returned by SendWithLimit when the caller's counter
// has already reached the supplied queue-length cap. The message is
// still consumed (discarded).
var ErrRetryLater = errors.New("rconn: queue limit reached, retry later")
