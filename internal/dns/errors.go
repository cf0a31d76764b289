// Package dns is a minimal DNS wire-format codec: just enough of RFC 1035
// (header, a single question, name compression) to parse an incoming query
// far enough to fingerprint and forward it, and to parse a reply far enough
// to restore the client's original transaction ID. It never looks at
// answer, authority, or additional records and is not a resolver.
package dns

import "errors"

// ErrDNSError is the sentinel that header, question and name codec errors
// wrap. The message-level checks in ParseQueryMeta and ParseReplyMeta (size,
// QR flag, opcode, question count) return their own errors without it.
var ErrDNSError = errors.New("dns wire error")
