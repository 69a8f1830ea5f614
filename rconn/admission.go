package rconn

import (
	"bytes"

	of "github.com/netrack/openflow"
)

// Admission opcode values, named the way rconn.c names OFPT_* but kept
// local to this package since the wire encoding beyond these ten values
// is out of scope here. Values follow the OpenFlow 1.0 wire format's
// message-type numbering.
const (
	opcodeHello            = of.Type(0)
	opcodeError            = of.Type(1)
	opcodeEchoRequest      = of.Type(2)
	opcodeEchoReply        = of.Type(3)
	opcodeVendor           = of.Type(4)
	opcodeFeaturesRequest  = of.Type(5)
	opcodeFeaturesReply    = of.Type(6)
	opcodeGetConfigRequest = of.Type(7)
	opcodeGetConfigReply   = of.Type(8)
	opcodeSetConfig        = of.Type(9)
)

// opcodeBits is a bitmask over OpenFlow message-type values, used here
// for a single fixed membership test (is this opcode one of the ten
// administrative types that don't count as admission evidence) rather
// than a general-purpose field matcher, so it lives as a local type
// rather than a reusable exported package.
type opcodeBits uint64

func (b opcodeBits) has(t of.Type) bool {
	if t >= 32 {
		return false
	}
	return b&(1<<uint(t)) != 0
}

// nonAdmitting holds the OpenFlow message types that are never, by
// themselves, evidence that the peer has admitted this connection.
var nonAdmitting = opcodeBits(0).
	set(opcodeHello).
	set(opcodeError).
	set(opcodeEchoRequest).
	set(opcodeEchoReply).
	set(opcodeVendor).
	set(opcodeFeaturesRequest).
	set(opcodeFeaturesReply).
	set(opcodeGetConfigRequest).
	set(opcodeGetConfigReply).
	set(opcodeSetConfig)

func (b opcodeBits) set(t of.Type) opcodeBits {
	return b | (1 << uint(t))
}

// isAdmittingMessage reports whether raw's OpenFlow opcode counts as
// admission evidence: opcode < 32 and a member of nonAdmitting never
// admits; every opcode ≥ 32, and every opcode < 32 not in the set,
// admits.
func isAdmittingMessage(raw []byte) bool {
	var h of.Header
	if _, err := h.ReadFrom(bytes.NewReader(raw)); err != nil {
		// Unparseable as a header: treat conservatively as admitting,
		// since rconn.c's equivalent code never sees malformed input
		// (vconn_recv has already framed the message).
		return true
	}
	return !nonAdmitting.has(h.Type)
}
