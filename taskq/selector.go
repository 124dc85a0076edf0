package taskq

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"goa.design/relay/storage"
)

// QueueSelector helps producers and consumers pick a priority queue index.
// It is safe for concurrent use.
type QueueSelector struct {
	n     int
	clock clockwork.Clock

	lock sync.Mutex
	next int
	rand *rand.Rand
}

// Weights used by ForDeadline, from the highest to the lowest priority
// queue.
var (
	urgentWeights = []int{50, 30, 20, 10, 5, 3, 2, 1, 1}
	soonWeights   = []int{30, 25, 20, 15, 10, 5, 3, 2, 1}
	normalWeights = []int{20, 18, 15, 12, 10, 8, 6, 4, 2}
)

// NewQueueSelector returns a selector over n queues, n between 1 and 9.
func NewQueueSelector(n int) (*QueueSelector, error) {
	if n < 1 || n > storage.MaxQueues {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueCount, n)
	}
	return &QueueSelector{
		n:     n,
		clock: clockwork.NewRealClock(),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Next returns the queue indices in turn: 0, 1, ..., n-1, 0, ...
func (s *QueueSelector) Next() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	q := s.next
	s.next = (s.next + 1) % s.n
	return q
}

// ForSlave returns a uniformly random queue index.
func (s *QueueSelector) ForSlave() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rand.Intn(s.n)
}

// ForDeadline returns a random queue index weighted towards the high
// priority queues. The further away deadline is, the stronger the bias:
// tasks due in more than 30s favor queue 0 the most, tasks due in more than
// 10s less so.
func (s *QueueSelector) ForDeadline(deadline time.Time) int {
	until := deadline.Sub(s.clock.Now())
	switch {
	case until > 30*time.Second:
		return s.weighted(urgentWeights)
	case until > 10*time.Second:
		return s.weighted(soonWeights)
	default:
		return s.weighted(normalWeights)
	}
}

func (s *QueueSelector) weighted(weights []int) int {
	weights = weights[:s.n]
	total := 0
	for _, w := range weights {
		total += w
	}
	s.lock.Lock()
	r := s.rand.Intn(total)
	s.lock.Unlock()
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return s.n - 1
}
