package dnsfp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanetnet/dnsbalancer/internal/dns"
)

func buildQuery(t *testing.T, id uint16) []byte {
	t.Helper()
	h := dns.Header{ID: id, Flags: dns.RDFlag, QDCount: 1}
	hb, err := h.Marshal()
	require.NoError(t, err)
	q := dns.Question{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	qb, err := q.Marshal()
	require.NoError(t, err)
	return append(hb, qb...)
}

func TestRequestReplyFingerprintsMatch(t *testing.T) {
	const clientPort = 54321
	query := buildQuery(t, 0x1111) // client's own transaction ID, unrelated to clientPort

	req, err := ParseRequest(query, clientPort)
	require.NoError(t, err)

	require.NoError(t, RewriteForUpstream(query, clientPort))

	// The forwarder echoes the rewritten ID back in its reply.
	reply := buildQuery(t, clientPort)
	rep, err := ParseReply(reply)
	require.NoError(t, err)

	assert.Equal(t, req.Fingerprint, rep.Fingerprint)
	assert.NotEqual(t, req.WireID, rep.WireID, "client transaction ID and upstream wire ID must differ")
}

func TestDifferentClientPortsDoNotCollideTrivially(t *testing.T) {
	const clientPort = 1
	query := buildQuery(t, 42)
	req, err := ParseRequest(query, clientPort)
	require.NoError(t, err)

	otherReq, err := ParseRequest(query, clientPort+1)
	require.NoError(t, err)

	assert.NotEqual(t, req.Fingerprint, otherReq.Fingerprint)
}

func TestRestoreClientID(t *testing.T) {
	const originalID = 0xCAFE
	reply := buildQuery(t, 9999)
	require.NoError(t, RestoreClientID(reply, originalID))

	meta, err := dns.ParseReplyMeta(reply)
	require.NoError(t, err)
	assert.Equal(t, uint16(originalID), meta.ID)
}

func TestBuildWatchdogQuery(t *testing.T) {
	buf, err := BuildWatchdogQuery("watchdog.example.com", uint16(dns.TypeA), uint16(dns.ClassIN), 7)
	require.NoError(t, err)

	meta, err := ParseRequest(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), meta.WireID)
	assert.Equal(t, "watchdog.example.com", meta.Question.Name)
}
