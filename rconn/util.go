package rconn

import (
	"errors"

	"github.com/ciena/rconn/vconn"
)

// isAgain reports whether err is the transport's "would block" signal,
// which never counts as failure for the state machine.
func isAgain(err error) bool {
	return errors.Is(err, vconn.ErrAgain)
}
