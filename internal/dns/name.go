package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NormalizeName lowercases name and strips a trailing dot, so two
// spellings of the same name fingerprint identically (RFC 1035 names are
// case-insensitive per RFC 4343).
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// EncodeName writes domain to wire format: a sequence of length-prefixed
// labels (max 63 bytes each, ASCII only) terminated by a zero-length label,
// the whole encoding capped at 255 bytes (RFC 1035 Section 3.1). It never
// emits a compression pointer; the balancer only ever builds single-question
// synthetic queries, which have no earlier name to point back to.
func EncodeName(domain string) ([]byte, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: domain name must be non-empty", ErrDNSError)
	}
	domain = trimDot(domain)
	if domain == "" {
		return []byte{0}, nil
	}

	out := make([]byte, 0, len(domain)+2)
	labelStart := 0
	for i := 0; i <= len(domain); i++ {
		if i != len(domain) && domain[i] != '.' {
			continue
		}
		if i == labelStart {
			return nil, fmt.Errorf("%w: empty label in domain name %q", ErrDNSError, domain)
		}
		label := domain[labelStart:i]
		for j := range len(label) {
			if label[j] > 0x7F {
				return nil, fmt.Errorf("%w: domain name must be ASCII", ErrDNSError)
			}
		}
		if len(label) > 63 {
			return nil, fmt.Errorf("%w: label %q exceeds 63 bytes", ErrDNSError, label)
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
		labelStart = i + 1
	}
	out = append(out, 0)

	if len(out) > 255 {
		return nil, fmt.Errorf("%w: encoded name exceeds 255 bytes", ErrDNSError)
	}
	return out, nil
}

// DecodeName reads a possibly-compressed name from msg starting at *off,
// advancing *off past it. Compression pointers (RFC 1035 Section 4.1.4) are
// a label-length byte with both high bits set, followed by a 14-bit offset
// into msg where the rest of the name continues — needed here because a
// reply's question name may be written with compression pointers.
func DecodeName(msg []byte, off *int) (string, error) {
	return decodeName(msg, off, 0, map[int]struct{}{})
}

func decodeName(msg []byte, off *int, depth int, visited map[int]struct{}) (string, error) {
	const maxCompressionDepth = 20
	if depth > maxCompressionDepth {
		return "", fmt.Errorf("%w: too many compression pointer indirections", ErrDNSError)
	}
	if *off < 0 || *off >= len(msg) {
		return "", fmt.Errorf("%w: unexpected EOF decoding name", ErrDNSError)
	}

	labels := make([]string, 0, 6)
	for {
		if *off >= len(msg) {
			return "", fmt.Errorf("%w: unexpected EOF decoding name", ErrDNSError)
		}
		labelLen := msg[*off]
		*off++

		if labelLen == 0 {
			break
		}
		if isCompressionPointer(labelLen) {
			rest, err := followCompressionPointer(msg, off, labelLen, depth, visited)
			if err != nil {
				return "", err
			}
			if rest != "" {
				labels = append(labels, rest)
			}
			break
		}
		if hasReservedBits(labelLen) {
			return "", fmt.Errorf("%w: reserved label length bits set", ErrDNSError)
		}
		label, err := readLabel(msg, off, int(labelLen))
		if err != nil {
			return "", err
		}
		labels = append(labels, label)
	}

	return joinLabels(labels), nil
}

func isCompressionPointer(b byte) bool { return (b & 0xC0) == 0xC0 }

func hasReservedBits(b byte) bool { return (b & 0xC0) != 0 }

func followCompressionPointer(msg []byte, off *int, firstByte byte, depth int, visited map[int]struct{}) (string, error) {
	if *off >= len(msg) {
		return "", fmt.Errorf("%w: unexpected EOF decoding compression pointer", ErrDNSError)
	}
	ptr := int(binary.BigEndian.Uint16([]byte{firstByte & 0x3F, msg[*off]}))
	*off++

	if ptr >= len(msg) {
		return "", fmt.Errorf("%w: compression pointer out of bounds", ErrDNSError)
	}
	if _, seen := visited[ptr]; seen {
		return "", fmt.Errorf("%w: compression pointer loop", ErrDNSError)
	}
	visited[ptr] = struct{}{}

	ptrOff := ptr
	return decodeName(msg, &ptrOff, depth+1, visited)
}

func readLabel(msg []byte, off *int, length int) (string, error) {
	if *off+length > len(msg) {
		return "", fmt.Errorf("%w: unexpected EOF reading label", ErrDNSError)
	}
	label := msg[*off : *off+length]
	*off += length
	for _, b := range label {
		if b > 0x7F {
			return "", fmt.Errorf("%w: decoded name was not ASCII", ErrDNSError)
		}
	}
	return string(label), nil
}

func trimDot(s string) string {
	for len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	if len(labels) == 1 {
		return labels[0]
	}
	size := len(labels) - 1
	for _, label := range labels {
		size += len(label)
	}
	var b strings.Builder
	b.Grow(size)
	b.WriteString(labels[0])
	for _, label := range labels[1:] {
		b.WriteByte('.')
		b.WriteString(label)
	}
	return b.String()
}
