package dns

// Header flag bits this codec actually inspects or sets (RFC 1035 Section
// 4.1.1). The balancer only ever builds recursion-desired queries and only
// ever needs to tell a query from a reply and pull out the opcode/rcode, so
// the bits this package never touches (AA, TC, RA, Z, AD, CD) aren't named
// here — a full resolver would want them, a forwarder doesn't.
const (
	QRFlag     uint16 = 0x8000 // 1 = response, 0 = query
	OpcodeMask uint16 = 0x7800 // bits 14-11, shift right 11 to read
	RDFlag     uint16 = 0x0100 // recursion desired
	RCodeMask  uint16 = 0x000F // bits 3-0
)

// RecordType is a DNS resource record type (RFC 1035 Section 3.2.2).
type RecordType uint16

// TypeA is the only record type the watchdog and probe tooling ever query
// for; the balancer forwards whatever type a client asked for without
// needing to name it.
const TypeA RecordType = 1

// RecordClass is a DNS resource record class (RFC 1035 Section 3.2.4).
type RecordClass uint16

// ClassIN is the Internet class, the only one any real deployment uses.
const ClassIN RecordClass = 1

// RCode is a DNS response code (RFC 1035 Section 4.1.1), surfaced to
// operators as a plain number rather than named here: dnsprobe just prints
// it, and the watchdog only cares that a reply arrived at all, not which
// rcode it carried.
type RCode uint16

// RCodeFromFlags extracts the response code from a header's flags field.
func RCodeFromFlags(flags uint16) RCode {
	return RCode(flags & RCodeMask)
}
