// Package dnsfp implements the fingerprint and codec adapter that sits
// between the wire-format DNS codec (internal/dns) and the tracking table.
//
// A task is identified on the wire by a 16-bit transaction ID, but that ID
// is only unique per client, and two different clients may pick the same
// one. Rather than smuggle a separate correlation key alongside every
// packet, the adapter overwrites the ID it sends upstream with the
// originating client's source UDP port before forwarding, and restores the
// client's own ID when the matching reply comes back. Because a listening
// UDP socket's ephemeral port space and a DNS transaction ID are both
// 16-bit, this substitution is lossless in both directions, and it lets the
// request path and the reply path compute the identical fingerprint from
// nothing but the question and the ID field already on the wire.
package dnsfp

import (
	"fmt"
	"hash/fnv"

	"github.com/lanetnet/dnsbalancer/internal/dns"
)

// Fingerprint identifies an in-flight task. It is stable across the
// request/reply round trip: the same query, in either direction, hashes to
// the same value.
type Fingerprint uint64

// Parsed is what the adapter extracts from a single wire-format message,
// enough for the tracking table and stage handlers to operate on without
// ever touching the raw bytes again.
type Parsed struct {
	Fingerprint Fingerprint
	WireID      uint16 // transaction ID as it appeared on the wire
	Question    dns.Question
	Flags       uint16
}

// hash combines a question and a 16-bit correlation value into a
// fingerprint. FNV-1a is used purely for speed and good bit dispersion;
// there is no adversarial-collision requirement here, only keeping
// distinct outstanding queries apart as tracking table keys.
func hash(q dns.Question, id uint16) Fingerprint {
	h := fnv.New64a()
	_, _ = h.Write([]byte(q.Name))
	var tail [6]byte
	tail[0] = byte(q.Type >> 8)
	tail[1] = byte(q.Type)
	tail[2] = byte(q.Class >> 8)
	tail[3] = byte(q.Class)
	tail[4] = byte(id >> 8)
	tail[5] = byte(id)
	_, _ = h.Write(tail[:])
	return Fingerprint(h.Sum64())
}

// ParseRequest validates and fingerprints a client-facing query. clientPort
// is the source port of the UDP datagram the query arrived on; it becomes
// both the fingerprinting key and, after RewriteForUpstream, the
// transaction ID sent to the forwarder.
func ParseRequest(buf []byte, clientPort uint16) (Parsed, error) {
	meta, err := dns.ParseQueryMeta(buf)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse request: %w", err)
	}
	return Parsed{
		Fingerprint: hash(meta.Q, clientPort),
		WireID:      meta.ID,
		Question:    meta.Q,
		Flags:       meta.Flags,
	}, nil
}

// RewriteForUpstream stamps clientPort into buf's transaction ID field in
// place. Call this after ParseRequest and before handing buf to a forwarder
// socket.
func RewriteForUpstream(buf []byte, clientPort uint16) error {
	return dns.RewriteID(buf, clientPort)
}

// ParseReply validates and fingerprints a forwarder-facing reply. Because
// the forwarder echoes back whatever transaction ID it was sent, the
// fingerprint computed here matches the one ParseRequest produced for the
// originating query.
func ParseReply(buf []byte) (Parsed, error) {
	meta, err := dns.ParseReplyMeta(buf)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse reply: %w", err)
	}
	return Parsed{
		Fingerprint: hash(meta.Q, meta.ID),
		WireID:      meta.ID,
		Question:    meta.Q,
		Flags:       meta.Flags,
	}, nil
}

// RestoreClientID stamps the original client transaction ID back into buf
// before the reply is relayed to the frontend. originalID is the WireID
// captured by ParseRequest for the same task.
func RestoreClientID(buf []byte, originalID uint16) error {
	return dns.RewriteID(buf, originalID)
}
