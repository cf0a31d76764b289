package dns

import (
	"errors"
	"fmt"
)

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 1    // Only single-question queries are forwarded
)

// QueryMeta is the minimal set of fields the load balancer needs from a
// DNS message: enough to fingerprint it and to restore its transaction ID.
// It intentionally omits answer/authority/additional records — this package
// is used here purely as a wire-format codec, never as a resolver.
type QueryMeta struct {
	ID    uint16
	Flags uint16
	Q     Question
}

// ParseQueryMeta validates and extracts the header and first question from
// a DNS message. It rejects oversized messages, responses (QR set), and
// anything but a single-question standard query, matching what a forwarding
// load balancer is willing to relay upstream.
func ParseQueryMeta(msg []byte) (QueryMeta, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return QueryMeta{}, errors.New("dns message too large")
	}

	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return QueryMeta{}, err
	}
	if isResponse(h.Flags) {
		return QueryMeta{}, errors.New("invalid packet: QR flag set (response packet received)")
	}
	if opcode := extractOpcode(h.Flags); opcode != 0 {
		return QueryMeta{}, fmt.Errorf("unsupported OpCode: %d", opcode)
	}
	if h.QDCount != MaxQuestions {
		return QueryMeta{}, errors.New("unsupported question count")
	}

	q, err := ParseQuestion(msg, &off)
	if err != nil {
		return QueryMeta{}, err
	}

	return QueryMeta{ID: h.ID, Flags: h.Flags, Q: q}, nil
}

// ParseReplyMeta extracts the header and first question from a reply
// message, without the query-only checks ParseQueryMeta applies (a reply
// has the QR bit set and may carry answer records this package never
// parses).
func ParseReplyMeta(msg []byte) (QueryMeta, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return QueryMeta{}, errors.New("dns message too large")
	}

	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return QueryMeta{}, err
	}
	if h.QDCount != MaxQuestions {
		return QueryMeta{}, errors.New("unsupported question count")
	}

	q, err := ParseQuestion(msg, &off)
	if err != nil {
		return QueryMeta{}, err
	}

	return QueryMeta{ID: h.ID, Flags: h.Flags, Q: q}, nil
}

// isResponse checks if the QR flag is set (indicating a response packet).
func isResponse(flags uint16) bool {
	return (flags & QRFlag) != 0
}

// extractOpcode extracts the 4-bit opcode from the flags field.
// Opcode occupies bits 14-11, so we mask with 0x7800 and shift right by 11.
func extractOpcode(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}
