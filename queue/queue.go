// Package queue implements the Mari transmit queue (spec §4.2): a bounded
// ring buffer of outbound frames plus a one-slot "join packet" holder
// (request or response) with strict priority over the ring on gateway
// downlink slots and node shared-uplink slots.
package queue

import (
	"sync"

	"github.com/marinet/mari/scheduler"
)

// DefaultSize is the ring buffer capacity used by the reference firmware.
// Must be a power of two.
const DefaultSize = 32

// Kind tags what Next actually returned, so the caller (the MAC engine)
// knows what follow-up action, if any, is required. Queue never reaches
// into the association layer itself (spec §9 "no cyclic ownership
// required"); MAC is the one component allowed to hold both, so it is MAC
// that reacts to KindJoinHolder on a node by driving the association FSM
// into Joining.
type Kind uint8

const (
	KindNone Kind = iota
	KindBeacon
	KindJoinHolder // join-request (node) or join-response (gateway)
	KindData       // popped from the ring
	KindKeepalive  // synthesised because the ring was empty
)

// FrameSources lets the queue synthesise frames whose contents (current
// ASN, bloom filter, destination) only the caller knows how to build.
type FrameSources struct {
	BuildBeacon    func() []byte
	BuildKeepalive func() []byte
}

// Queue is the transmit queue owned by one Mac/Mari instance.
type Queue struct {
	mu   sync.Mutex
	ring [][]byte
	head int
	tail int
	size int
	mask int

	joinPacket []byte

	sources FrameSources
}

// New creates a Queue with the given power-of-two capacity.
func New(capacity int, sources FrameSources) *Queue {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("queue: capacity must be a power of two")
	}
	return &Queue{
		ring:    make([][]byte, capacity),
		mask:    capacity - 1,
		sources: sources,
	}
}

// Add appends frame to the ring. It fails silently (returns false) if the
// ring is full; callers are never blocked on a full queue (spec §7 "Queue
// overflow: silent drop"). Safe to call from any context — the producer's
// critical section only copies the frame into the ring slot.
func (q *Queue) Add(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.ring) {
		return false
	}
	cp := append([]byte(nil), frame...)
	q.ring[q.tail] = cp
	q.tail = (q.tail + 1) & q.mask
	q.size++
	return true
}

// SetSources installs the beacon/keepalive synthesis callbacks. Exists
// because the MAC engine that supplies these closures is itself
// constructed from the Queue it hands them to; New leaves sources empty
// and the caller wires them in immediately afterwards.
func (q *Queue) SetSources(sources FrameSources) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sources = sources
}

// SetJoinPacket installs frame into the one-slot join holder, overwriting
// anything already there. Used by a gateway staging a join-response for a
// specific requester; only the gateway Downlink path of Next reads the
// holder. A node's join-request is passed to Next directly instead.
func (q *Queue) SetJoinPacket(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.joinPacket = append([]byte(nil), frame...)
}

// ClearJoinPacket empties the join holder without transmitting it.
func (q *Queue) ClearJoinPacket() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.joinPacket = nil
}

// Reset clears the ring and the join holder. Called on (re)join to drop
// stale frames addressed under the old association (spec §4.2 "reset").
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ring {
		q.ring[i] = nil
	}
	q.head, q.tail, q.size = 0, 0, 0
	q.joinPacket = nil
}

// popRing removes and returns the oldest queued frame. Caller must hold
// q.mu.
func (q *Queue) popRing() ([]byte, bool) {
	if q.size == 0 {
		return nil, false
	}
	f := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) & q.mask
	q.size--
	return f, true
}

// Next is the MAC-side read (spec §4.2 "next"). It uses a try-lock: if a
// producer is mid-Add, Next gives up immediately and the MAC treats the
// slot as having nothing to send, retrying next slot (spec §5 "the
// consumer (MAC) gives up on contention and retries next slot").
//
// readyToJoin/joinRequestFrame let a node supply its prebuilt
// join-request without the queue needing to know about the association
// FSM; isGateway and autoKeepalive select the gateway/node behaviors of
// spec §4.2.
func (q *Queue) Next(slotType scheduler.SlotType, isGateway bool, readyToJoin bool, joinRequestFrame []byte, autoKeepalive bool) ([]byte, Kind) {
	if !q.mu.TryLock() {
		return nil, KindNone
	}
	defer q.mu.Unlock()

	if isGateway {
		switch slotType {
		case scheduler.Beacon:
			if q.sources.BuildBeacon != nil {
				return q.sources.BuildBeacon(), KindBeacon
			}
			return nil, KindNone
		case scheduler.Downlink:
			if q.joinPacket != nil {
				f := q.joinPacket
				q.joinPacket = nil
				return f, KindJoinHolder
			}
			if f, ok := q.popRing(); ok {
				return f, KindData
			}
			return nil, KindNone
		default:
			return nil, KindNone
		}
	}

	switch slotType {
	case scheduler.SharedUplink:
		if readyToJoin && joinRequestFrame != nil {
			return joinRequestFrame, KindJoinHolder
		}
		return nil, KindNone
	case scheduler.Uplink:
		if f, ok := q.popRing(); ok {
			return f, KindData
		}
		if autoKeepalive && q.sources.BuildKeepalive != nil {
			return q.sources.BuildKeepalive(), KindKeepalive
		}
		return nil, KindNone
	default:
		return nil, KindNone
	}
}

// Len reports the number of frames currently queued in the ring (not
// counting the join holder). Diagnostic only; it takes the producer lock,
// but the count may be stale by the time the caller acts on it (spec §5).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
