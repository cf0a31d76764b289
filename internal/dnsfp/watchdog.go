package dnsfp

import (
	"fmt"

	"github.com/lanetnet/dnsbalancer/internal/dns"
)

// BuildWatchdogQuery synthesizes a standard, recursion-desired query for
// qname/qtype/qclass with the given transaction ID, in wire format. The
// watchdog uses this to probe a forwarder's liveness without depending on
// any client having asked that question first.
func BuildWatchdogQuery(qname string, qtype, qclass uint16, id uint16) ([]byte, error) {
	h := dns.Header{
		ID:      id,
		Flags:   dns.RDFlag,
		QDCount: 1,
	}
	hb, err := h.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal watchdog header: %w", err)
	}
	q := dns.Question{Name: qname, Type: qtype, Class: qclass}
	qb, err := q.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal watchdog question: %w", err)
	}
	return append(hb, qb...), nil
}

// IsWatchdogReply reports whether a parsed message is a reply, i.e. has the
// QR bit set. It does not look at the response code: a SERVFAIL or REFUSED
// reply still counts as the forwarder answering.
func IsWatchdogReply(p Parsed) bool {
	return p.Flags&dns.QRFlag != 0
}
