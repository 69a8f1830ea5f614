package rconn

import (
	"bytes"

	of "github.com/netrack/openflow"
)

// ofHeaderVersion is the OpenFlow 1.0 wire version number. rconn does
// not negotiate versions; it only ever needs to stamp a header on the
// probe it generates itself.
const ofHeaderVersion = 1

// makeEchoRequest builds the inactivity-probe message rconn.c's
// run_ACTIVE enqueues on an ACTIVE→IDLE timeout. The payload is empty;
// only the header matters for probing liveness.
func makeEchoRequest(xid uint32) []byte {
	h := of.Header{
		Version:     ofHeaderVersion,
		Type:        opcodeEchoRequest,
		Length:      8,
		Transaction: xid,
	}
	buf := new(bytes.Buffer)
	// A header-only encode cannot fail; WriteTo only errors on a
	// short/failed io.Writer, never on an in-memory buffer.
	_, _ = h.WriteTo(buf)
	return buf.Bytes()
}
