// Package mari implements the Mari facade (spec §4.7): the aggregate that
// wires a Scheduler, Queue, ScanTable, BloomFilter, Association and Mac
// together as fields of one struct, per spec §9's "Global, process-wide
// state" design note ("make each component a value with an explicit
// handle ... owned by a single Mari aggregate"). It exposes the small
// application-facing API the spec names: Start, Tx, EventLoop, and the
// diagnostic accessors gateways and nodes use to inspect their own state.
package mari

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/marinet/mari/assoc"
	"github.com/marinet/mari/bloom"
	"github.com/marinet/mari/hwtimer"
	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/internal/metrics"
	"github.com/marinet/mari/internal/xlog"
	"github.com/marinet/mari/mac"
	"github.com/marinet/mari/packet"
	"github.com/marinet/mari/queue"
	"github.com/marinet/mari/radio"
	"github.com/marinet/mari/scan"
	"github.com/marinet/mari/scheduler"
)

// ErrQueueFull is returned by Tx when the transmit queue's ring buffer has
// no free slot. Matches spec §7 "Queue overflow: silent drop" at the wire
// level — nothing is lost silently at the API level, the caller is told.
var ErrQueueFull = errors.New("mari: transmit queue full")

// ErrNotConnected is returned by NodeTxPayload when a node is not
// currently Joined to a gateway.
var ErrNotConnected = errors.New("mari: node is not joined to a gateway")

// NodeInfo describes one node currently occupying a dedicated uplink cell,
// returned by GatewayGetNodes (spec SUPPLEMENTED FEATURES item 1).
type NodeInfo struct {
	NodeID          uint64
	CellIndex       int
	LastReceivedASN uint64
}

// Deps bundles everything needed to construct a Mari facade. Schedule is
// copied into a fresh Scheduler; Radio and Timer are the external
// collaborators the spec treats as replaceable peripheral drivers (§2).
type Deps struct {
	Config   config.Config
	SelfID   uint64
	Schedule *scheduler.Schedule
	Radio    radio.Radio
	Timer    hwtimer.Timer

	// Rand drives the gateway startup-delay draw (spec §4.7) and, for a
	// node, is forwarded to the association layer's backoff draws. A nil
	// value falls back to a fixed-seed source, matching spec §9
	// "property-test with a deterministic seed" — callers that need real
	// entropy must supply their own *rand.Rand.
	Rand *rand.Rand

	Log     *xlog.Logger
	Metrics *metrics.Registry

	// OnEvent receives every assoc.Event the protocol emits (spec §4.6
	// "Event surface"): Connected, Disconnected, NodeJoined, NodeLeft,
	// NewPacket, Keepalive, Error. Called from radio/timer ISR context in
	// the reference firmware; in this Go rendition it runs synchronously
	// on whichever goroutine drives the Timer, so it must not block.
	OnEvent func(assoc.Event)
}

// Mari is one gateway or node instance: the aggregate spec §9 calls for,
// holding single, shared-by-reference ownership of every collaborator.
// ISRs (here, Timer/Radio callbacks) dispatch through the Mac this struct
// owns; ordinary application code only ever reaches the facade.
type Mari struct {
	cfg    config.Config
	selfID uint64

	sched   *scheduler.Scheduler
	queue   *queue.Queue
	scanTbl *scan.Table
	bloomF  *bloom.Filter
	assocFS *assoc.Assoc // nil for RoleGateway
	engine  *mac.Mac

	timer hwtimer.Timer
	rng   *rand.Rand
	log   *xlog.Logger
	mx    *metrics.Registry
}

// New constructs a Mari facade without starting it; call Start to begin
// slot sequencing.
func New(d Deps) *Mari {
	if d.Log == nil {
		d.Log = xlog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(1))
	}

	sched := scheduler.New(d.Config.Role, d.SelfID, d.Schedule)
	q := queue.New(queue.DefaultSize, queue.FrameSources{})
	scanTbl := &scan.Table{}
	bloomF := &bloom.Filter{}

	var a *assoc.Assoc
	if d.Config.Role == config.RoleNode {
		a = assoc.New(d.Config.NetworkID, d.Rand, d.Log)
	}

	f := &Mari{
		cfg:     d.Config,
		selfID:  d.SelfID,
		sched:   sched,
		queue:   q,
		scanTbl: scanTbl,
		bloomF:  bloomF,
		assocFS: a,
		timer:   d.Timer,
		rng:     d.Rand,
		log:     d.Log.Module("mari"),
		mx:      d.Metrics,
	}

	f.engine = mac.New(mac.Deps{
		Config:    d.Config,
		SelfID:    d.SelfID,
		Scheduler: sched,
		Queue:     q,
		Assoc:     a,
		ScanTable: scanTbl,
		Bloom:     bloomF,
		Radio:     d.Radio,
		Timer:     d.Timer,
		Log:       d.Log,
		Metrics:   d.Metrics,
		OnEvent:   d.OnEvent,
	})
	return f
}

// Start wires the radio callbacks and begins protocol operation (spec
// §4.7 "init"). A gateway draws a uniform-random startup delay in
// [0, n_cells*whole_slot) before it starts ticking, to spread colliding
// gateway boots (e.g. two gateways power-cycled by the same outage); a
// node starts scanning immediately.
func (f *Mari) Start() {
	if f.cfg.Role != config.RoleGateway {
		f.engine.Start()
		return
	}
	span := int64(f.sched.NCells()) * config.WholeSlotUS
	delay := int64(0)
	if span > 0 {
		delay = f.rng.Int63n(span)
	}
	f.log.Debug("gateway startup delay", "delay_us", delay)
	f.timer.SetOneshot(f.timer.Now(), delay, func(int64) {
		f.engine.Start()
	})
}

// Tx enqueues an application payload addressed to dst. On a node, dst is
// typically packet.Broadcast or the synced gateway's id; on a gateway, dst
// identifies the destination node. Returns ErrQueueFull if the transmit
// queue has no room (spec §7: queue overflow is a silent drop at the wire
// level, but the Go API surfaces it so a caller can apply backpressure).
func (f *Mari) Tx(dst uint64, payload []byte) error {
	frame, err := packet.BuildData(packet.Header{
		Version:   packet.ProtocolVersion,
		NetworkID: f.cfg.NetworkID,
		Dst:       dst,
		Src:       f.selfID,
	}, payload)
	if err != nil {
		return fmt.Errorf("mari: build data frame: %w", err)
	}
	if !f.queue.Add(frame) {
		return ErrQueueFull
	}
	return nil
}

// NodeTxPayload implements spec §4.7 "node_tx_payload(buf)": send payload
// to the gateway this node is currently joined to. Returns ErrNotConnected
// if the node is not Joined.
func (f *Mari) NodeTxPayload(payload []byte) error {
	if f.cfg.Role != config.RoleNode || f.assocFS == nil || !f.assocFS.IsJoined() {
		return ErrNotConnected
	}
	return f.Tx(f.assocFS.SyncedGatewayID(), payload)
}

// NodeIsConnected implements spec §4.7 "node_is_connected()".
func (f *Mari) NodeIsConnected() bool {
	return f.assocFS != nil && f.assocFS.IsJoined()
}

// NodeGatewayID implements spec §4.7 "node_gateway_id()": the gateway a
// node is currently synced or joined to, or 0 if neither.
func (f *Mari) NodeGatewayID() uint64 {
	if f.assocFS == nil {
		return 0
	}
	return f.assocFS.SyncedGatewayID()
}

// GatewayCountNodes implements spec SUPPLEMENTED FEATURES item 1 /
// §4.7 "gateway_count_nodes()": the number of dedicated uplink cells
// currently assigned.
func (f *Mari) GatewayCountNodes() int {
	return f.sched.AssignedNodeCount()
}

// GatewayGetNodes implements spec §4.7 "gateway_get_nodes(out)": fills out
// with up to len(out) currently-assigned nodes and returns how many were
// written. Iterates the schedule's cells in index order, matching the
// scheduler's own assignment scan order.
func (f *Mari) GatewayGetNodes(out []NodeInfo) int {
	n := 0
	for i := 0; i < f.sched.NCells() && n < len(out); i++ {
		c := f.sched.CellInfo(i)
		if c.Type != scheduler.Uplink || c.AssignedNodeID == 0 {
			continue
		}
		out[n] = NodeInfo{NodeID: c.AssignedNodeID, CellIndex: i, LastReceivedASN: c.LastReceivedASN}
		n++
	}
	return n
}

// EventLoop implements spec §4.7 "event_loop()": driven by the application
// once per slotframe, it performs the housekeeping too slow for ISR
// context (spec §5: "long work (bloom rebuild) is deferred to the event
// loop"). On a gateway this rebuilds the bloom filter if the assignment
// set changed since the last pass; a node has no per-slotframe
// housekeeping of its own, and EventLoop is a no-op for it beyond the
// shared gauge snapshot (assigned node count and slotframe count). The two
// steps run concurrently via
// errgroup, mirroring the teacher's event-loop-plus-background-worker
// concurrency idiom (p2p/consensus dispatch loops) even though, on this
// single aggregate, there is no cross-step data dependency to serialize.
func (f *Mari) EventLoop(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)

	if f.cfg.Role == config.RoleGateway {
		g.Go(func() error {
			f.engine.RebuildBloomIfDirty()
			return nil
		})
	}

	g.Go(func() error {
		f.mx.Gauge("scheduler.assigned_nodes").Set(int64(f.sched.AssignedNodeCount()))
		f.mx.Gauge("scheduler.slotframe_count").Set(int64(f.sched.SlotframeCount()))
		return nil
	})

	return g.Wait()
}

// ASN returns the facade's current Absolute Slot Number, for diagnostics.
func (f *Mari) ASN() uint64 { return f.engine.ASN() }

// Role returns this instance's configured role.
func (f *Mari) Role() config.Role { return f.cfg.Role }

// SelfID returns this instance's own node/gateway id.
func (f *Mari) SelfID() uint64 { return f.selfID }
