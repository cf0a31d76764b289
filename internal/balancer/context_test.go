package balancer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitDrainReturnsOnceInFlightReachesZero(t *testing.T) {
	c := &Context{}
	c.incInFlight()

	done := make(chan error, 1)
	go func() {
		done <- c.WaitDrain(context.Background(), 5*time.Millisecond)
	}()

	select {
	case <-done:
		t.Fatal("WaitDrain returned before in-flight reached zero")
	case <-time.After(30 * time.Millisecond):
	}

	c.decInFlight()
	require.NoError(t, <-done)
}

func TestWaitDrainTimesOutWhenNeverDrains(t *testing.T) {
	c := &Context{}
	c.incInFlight()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitDrain(ctx, 5*time.Millisecond)
	assert.Error(t, err)
}

func TestNextWorkerRoundRobinsAcrossSuccessorWorkers(t *testing.T) {
	old := &Context{}
	succ := &Context{}
	w0 := &Worker{ID: 0, ctx: succ}
	w1 := &Worker{ID: 1, ctx: succ}
	succ.Workers = []*Worker{w0, w1}
	old.SetNext(succ)

	var picks []int
	for i := 0; i < 4; i++ {
		picks = append(picks, old.nextWorker().ID)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, picks)
}

func TestNextWorkerNilWithoutSuccessor(t *testing.T) {
	c := &Context{}
	assert.Nil(t, c.nextWorker())
}

// sharedFrontendAddr picks a concrete, momentarily-free loopback port so two
// independent frontend sockets can both bind it with SO_REUSEPORT, the same
// way two contexts' workers share a frontend address in production.
func sharedFrontendAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	addr := probe.LocalAddr().(*net.UDPAddr)
	require.NoError(t, probe.Close())
	return addr
}

// TestHotReloadRedirectsReplyAndTransfersAccounting: a task that was
// forwarded under the old context obtains its reply after the old context
// has a successor installed, and the in-flight unit transfers to the new
// context rather than vanishing or double-counting.
func TestHotReloadRedirectsReplyAndTransfersAccounting(t *testing.T) {
	addr := sharedFrontendAddr(t)
	frontend := &Frontend{Name: "public", Addr: addr}

	// Upstream delays its answer so the test has a window, after the query
	// has already been accepted by the old worker, to stand up the new
	// context and install it as successor before obtain/reply fires.
	upstream := fakeForwarder(t, func(query []byte) []byte {
		time.Sleep(150 * time.Millisecond)
		return echoReply(query)
	})

	oldCtx := &Context{MaxPktSize: 4096, ReqTTL: time.Second, EpochTickSize: 10 * time.Millisecond}
	oldWorker := NewWorker(0, oldCtx, NewRandomSelector(1), nil)
	oldCtx.Workers = []*Worker{oldWorker}
	oldFS, err := dialFrontendSocket(frontend)
	require.NoError(t, err)
	oldWorker.AttachFrontendSocket(oldFS)
	oldFwd := NewForwarder("primary", upstream.LocalAddr().(*net.UDPAddr), 1, "watchdog.example.com", 3)
	oldConn, err := DialForwarder(oldFwd)
	require.NoError(t, err)
	t.Cleanup(func() { oldConn.Close() })
	oldWorker.AttachForwarderSocket(frontend, &ForwarderSocket{Forwarder: oldFwd, Conn: oldConn})
	runWorker(t, oldWorker)

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	query := buildClientQuery(t, "reload.example.com")
	_, err = client.Write(query)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return oldWorker.tracking.Len() > 0
	}, time.Second, 5*time.Millisecond, "old worker must have forwarded and tracked the query before reload is installed")

	// Now stand up the successor context and install it, before the
	// delayed upstream reply arrives.
	newCtx := &Context{MaxPktSize: 4096, ReqTTL: time.Second, EpochTickSize: 10 * time.Millisecond}
	newWorker := NewWorker(0, newCtx, NewRandomSelector(1), nil)
	newCtx.Workers = []*Worker{newWorker}
	newFS, err := dialFrontendSocket(frontend)
	require.NoError(t, err)
	newWorker.AttachFrontendSocket(newFS)
	runWorker(t, newWorker)

	oldCtx.SetNext(newCtx)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	_, err = client.Read(buf)
	require.NoError(t, err, "reply must still reach the client through the new context's frontend socket")

	require.Eventually(t, func() bool {
		return oldCtx.InFlight() == 0
	}, time.Second, 10*time.Millisecond, "old context must fully drain")

	require.Eventually(t, func() bool {
		return newCtx.InFlight() == 0
	}, time.Second, 10*time.Millisecond, "new context's transferred in-flight unit must release once replied")
}
