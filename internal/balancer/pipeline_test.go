package balancer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanetnet/dnsbalancer/internal/dns"
	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

// fakeForwarder is a minimal UDP echo-style upstream for pipeline tests: it
// reads one query and writes back a canned answer carrying the same
// question and transaction ID, exactly like a real resolver's reply would.
func fakeForwarder(t *testing.T, answer func(query []byte) []byte) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			reply := answer(append([]byte(nil), buf[:n]...))
			if reply != nil {
				_, _ = conn.WriteToUDP(reply, addr)
			}
		}
	}()
	return conn
}

func echoReply(query []byte) []byte {
	reply := append([]byte(nil), query...)
	reply[2] |= 0x80 // set QR
	return reply
}

func buildClientQuery(t *testing.T, name string) []byte {
	t.Helper()
	buf, err := mustBuildQuery(name)
	require.NoError(t, err)
	return buf
}

func mustBuildQuery(name string) ([]byte, error) {
	return dnsfp.BuildWatchdogQuery(name, uint16(dns.TypeA), uint16(dns.ClassIN), 0xBEEF)
}

// newPipelineWorker wires a worker with one live forwarder socket pointed at
// upstream and a frontend socket bound to loopback, mirroring what Build
// would assemble for a single-frontend, single-forwarder configuration.
func newPipelineWorker(t *testing.T, upstream *net.UDPConn) (*Worker, *net.UDPConn) {
	t.Helper()

	ctx := &Context{
		MaxPktSize:    4096,
		ReqTTL:        time.Second,
		EpochTickSize: 10 * time.Millisecond,
		GCInterval:    50 * time.Millisecond,
	}
	w := NewWorker(0, ctx, NewRandomSelector(1), nil)
	ctx.Workers = []*Worker{w}

	feConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { feConn.Close() })
	frontend := &Frontend{Name: "public", Addr: feConn.LocalAddr().(*net.UDPAddr)}
	fs := &FrontendSocket{Frontend: frontend, Conn: feConn}
	w.AttachFrontendSocket(fs)

	fwd := NewForwarder("primary", upstream.LocalAddr().(*net.UDPAddr), 1, "watchdog.example.com", 3)
	conn, err := DialForwarder(fwd)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	w.AttachForwarderSocket(frontend, &ForwarderSocket{Forwarder: fwd, Conn: conn})

	return w, feConn
}

func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	go w.Run(w.ctx.GCInterval, time.Hour, w.ctx.EpochTickSize)
	t.Cleanup(w.Stop)
}

// TestHappyPathRoundTrip exercises accept -> prepare -> forward -> obtain ->
// reply end to end against a real loopback upstream, and asserts in-flight
// returns to zero once the client's reply has been delivered.
func TestHappyPathRoundTrip(t *testing.T) {
	upstream := fakeForwarder(t, echoReply)
	w, feConn := newPipelineWorker(t, upstream)
	runWorker(t, w)

	client, err := net.DialUDP("udp", nil, feConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	query := buildClientQuery(t, "example.com")
	_, err = client.Write(query)
	require.NoError(t, err)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)

	meta, err := dns.ParseReplyMeta(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), meta.ID, "client's original transaction ID must be restored")

	require.Eventually(t, func() bool {
		return w.ctx.InFlight() == 0
	}, time.Second, 10*time.Millisecond, "in-flight must return to zero after a completed round trip")
}

// TestDuplicateInFlightQueryEvictsOlder exercises the duplicate-fingerprint
// path: two requests with the same fingerprint in flight at once, the
// second replaces the first without leaking in-flight accounting.
func TestDuplicateInFlightQueryEvictsOlder(t *testing.T) {
	w, _ := newPipelineWorker(t, fakeForwarder(t, func([]byte) []byte { return nil }))

	clientAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 55555}
	older := newTask(4096, Regular)
	older.Fingerprint = 99
	older.ClientAddr = clientAddr
	older.Epoch = 0
	w.ctx.incInFlight()
	w.handleForward(taskReadyToForward(older, w))

	newer := newTask(4096, Regular)
	newer.Fingerprint = 99
	newer.ClientAddr = clientAddr
	newer.Epoch = 0
	w.ctx.incInFlight()
	w.handleForward(taskReadyToForward(newer, w))

	assert.Equal(t, 1, w.tracking.Len())
	assert.EqualValues(t, 1, w.ctx.InFlight(), "the evicted duplicate's in-flight unit must be released")
}

func taskReadyToForward(task *Task, w *Worker) *Task {
	buf, _ := mustBuildQuery("dup.example.com")
	task.Buf = buf
	task.Length = len(task.Buf)
	task.Forwarder = w.forwarderSockets[0]
	return task
}
