package jobs

import (
	"sync"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
)

const (
	// DefaultLogTail is how many log lines a snapshot carries.
	DefaultLogTail   = 15
	subscriberBuffer = 8
)

// Broadcaster pushes job snapshots to live subscribers. Publish never blocks:
// a subscriber that falls behind loses intermediate snapshots, never the latest.
type Broadcaster struct {
	registry *Registry
	tail     int

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan domain.JobSnapshot
}

func NewBroadcaster(registry *Registry, tail int) *Broadcaster {
	if tail <= 0 {
		tail = DefaultLogTail
	}
	return &Broadcaster{
		registry: registry,
		tail:     tail,
		subs:     make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe attaches to job id. The current snapshot is delivered immediately;
// when the job is already terminal the channel is closed right after it. The
// returned func detaches and may be called more than once.
func (b *Broadcaster) Subscribe(id string) (<-chan domain.JobSnapshot, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, err := b.registry.Get(id)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan domain.JobSnapshot, subscriberBuffer)}
	sub.ch <- job.Snapshot(b.tail)
	if job.Status.Terminal() {
		close(sub.ch)
		return sub.ch, func() {}, nil
	}

	set, ok := b.subs[id]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[id] = set
	}
	set[sub] = struct{}{}

	return sub.ch, func() { b.unsubscribe(id, sub) }, nil
}

func (b *Broadcaster) unsubscribe(id string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[id]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, id)
	}
}

// Publish sends the job's current snapshot to every subscriber. After a
// terminal snapshot all subscribers are closed and dropped.
func (b *Broadcaster) Publish(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[id]
	if len(set) == 0 {
		return
	}
	job, err := b.registry.Get(id)
	if err != nil {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, id)
		return
	}

	snap := job.Snapshot(b.tail)
	for sub := range set {
		sub.offer(snap)
	}
	if job.Status.Terminal() {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}

// Subscribers reports how many live subscribers job id has.
func (b *Broadcaster) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}

func (s *subscriber) offer(snap domain.JobSnapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
