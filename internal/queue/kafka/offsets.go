package kafka

import (
	"sync"

	kafka "github.com/segmentio/kafka-go"
)

// offsetTracker orders commits per partition. Deliveries settle in any order
// across the worker slots, but an offset is committed only once every earlier
// offset of its partition has settled, so a commit never skips a message that
// is still in flight.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	inflight []int64
	settled  map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// track registers a message as read. Messages of a partition must be tracked
// in the order they are read.
func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[msg.Partition]
	if !ok {
		p = &partitionOffsets{settled: make(map[int64]kafka.Message)}
		t.partitions[msg.Partition] = p
	}
	p.inflight = append(p.inflight, msg.Offset)
}

// settle marks msg as done and returns the message to commit, if the settled
// prefix of its partition grew.
func (t *offsetTracker) settle(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[msg.Partition]
	if !ok {
		return msg, true
	}
	p.settled[msg.Offset] = msg

	var last kafka.Message
	advanced := false
	for len(p.inflight) > 0 {
		head, done := p.settled[p.inflight[0]]
		if !done {
			break
		}
		delete(p.settled, p.inflight[0])
		p.inflight = p.inflight[1:]
		last = head
		advanced = true
	}

	return last, advanced
}
