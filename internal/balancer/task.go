package balancer

import (
	"net"

	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

// Classification tags what a task is: a real client query, or a
// synthetic liveness probe. The two share every stage handler but are
// routed to different queues once a reply is obtained.
type Classification int

const (
	Regular Classification = iota
	Watchdog
)

func (c Classification) String() string {
	if c == Watchdog {
		return "watchdog"
	}
	return "regular"
}

// Task is the unit of work flowing between stages. A task is owned by
// whichever queue or table currently holds it; handing it to the next
// stage is a move (the sender never touches it again), never a copy.
type Task struct {
	Buf    []byte
	Length int

	ClientAddr *net.UDPAddr
	Class      Classification

	OriginFrontend     *FrontendSocket
	OriginFrontendAddr string // frontend address to match against on redirect, see handleReply

	Forwarder       *ForwarderSocket
	WatchdogTarget  *Forwarder // which forwarder a WATCHDOG task's probe/reply belongs to

	Fingerprint  dnsfp.Fingerprint
	OriginalID   uint16
	Epoch        uint64
	Redirected   bool
}

// newTask allocates a task with a buffer sized to the context's configured
// maximum packet size.
func newTask(maxPktSize int, class Classification) *Task {
	return &Task{
		Buf:   make([]byte, maxPktSize),
		Class: class,
	}
}
