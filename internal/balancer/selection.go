package balancer

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync/atomic"

	"github.com/dgryski/go-rendezvous"
)

// ErrNoLiveForwarder is returned by a Selector when every candidate
// forwarder is currently marked unreachable.
var ErrNoLiveForwarder = errors.New("no live forwarder available")

// Selector picks one of a worker's regular forwarder sockets for an
// outgoing task. Implementations must skip sockets whose forwarder is not
// Alive(). The core must not assume a specific strategy; random,
// round-robin, and weighted are all first-class.
type Selector interface {
	Pick(sockets []*ForwarderSocket, task *Task) (*ForwarderSocket, error)
}

func liveSockets(sockets []*ForwarderSocket) []*ForwarderSocket {
	live := make([]*ForwarderSocket, 0, len(sockets))
	for _, s := range sockets {
		if s.Forwarder.Alive() {
			live = append(live, s)
		}
	}
	return live
}

// RandomSelector picks uniformly at random among live forwarders.
type RandomSelector struct {
	rng *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSelector) Pick(sockets []*ForwarderSocket, _ *Task) (*ForwarderSocket, error) {
	live := liveSockets(sockets)
	if len(live) == 0 {
		return nil, ErrNoLiveForwarder
	}
	return live[s.rng.Intn(len(live))], nil
}

// RoundRobinSelector cycles through live forwarders in order. The counter
// is shared only within one worker, but it is kept atomic so the selector
// value can be reused safely if a caller ever shares one across workers.
type RoundRobinSelector struct {
	next atomic.Uint64
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (s *RoundRobinSelector) Pick(sockets []*ForwarderSocket, _ *Task) (*ForwarderSocket, error) {
	live := liveSockets(sockets)
	if len(live) == 0 {
		return nil, ErrNoLiveForwarder
	}
	idx := s.next.Add(1) - 1
	return live[idx%uint64(len(live))], nil
}

// WeightedSelector uses rendezvous (highest random weight) hashing keyed on
// the client's address, so a given client tends to stick to the same
// forwarder across queries while still distributing load proportionally to
// each forwarder's configured Weight. A forwarder is represented by Weight
// copies of its name in the hash ring, the standard way to approximate
// weighting on top of a ring that has no native weight parameter.
type WeightedSelector struct{}

func NewWeightedSelector() *WeightedSelector {
	return &WeightedSelector{}
}

func rendezvousHash(s string, seed uint64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	var b [8]byte
	for i := range b {
		b[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum64()
}

func (s *WeightedSelector) Pick(sockets []*ForwarderSocket, task *Task) (*ForwarderSocket, error) {
	live := liveSockets(sockets)
	if len(live) == 0 {
		return nil, ErrNoLiveForwarder
	}

	byReplica := make(map[string]*ForwarderSocket)
	replicas := make([]string, 0, len(live)*2)
	for i, sock := range live {
		weight := sock.Forwarder.Weight
		if weight <= 0 {
			weight = 1
		}
		for w := 0; w < weight; w++ {
			replica := fmt.Sprintf("%d-%d-%s", i, w, sock.Forwarder.Name)
			byReplica[replica] = sock
			replicas = append(replicas, replica)
		}
	}

	ring := rendezvous.New(replicas, rendezvousHash)
	key := ""
	if task != nil && task.ClientAddr != nil {
		key = task.ClientAddr.String()
	}
	winner := ring.Lookup(key)
	return byReplica[winner], nil
}

// NewSelector constructs the Selector named by policy.
func NewSelector(policy string, seed int64) Selector {
	switch policy {
	case "round_robin":
		return NewRoundRobinSelector()
	case "weighted":
		return NewWeightedSelector()
	default:
		return NewRandomSelector(seed)
	}
}
