// Package mac implements the Mari slot-tick MAC state machine (spec §4.5):
// the top-level sequencer driven by an inter-slot timer and the radio's
// start-of-frame/end-of-frame callbacks. It owns the radio exclusively
// (spec §3 "Ownership") and drives the scheduler, queue, scan table,
// bloom filter and association layer through one slot at a time.
package mac

import (
	"fmt"
	"time"

	"github.com/marinet/mari/assoc"
	"github.com/marinet/mari/bloom"
	"github.com/marinet/mari/hwtimer"
	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/internal/metrics"
	"github.com/marinet/mari/internal/xlog"
	"github.com/marinet/mari/packet"
	"github.com/marinet/mari/queue"
	"github.com/marinet/mari/radio"
	"github.com/marinet/mari/scan"
	"github.com/marinet/mari/scheduler"
)

// State is the MAC's own per-slot state (spec §3 "MAC state").
type State uint8

const (
	StateSleep State = iota
	StateTxOffset
	StateTxData
	StateRxOffset
	StateRxDataListen
	StateRxData
)

func (s State) String() string {
	switch s {
	case StateSleep:
		return "Sleep"
	case StateTxOffset:
		return "TxOffset"
	case StateTxData:
		return "TxData"
	case StateRxOffset:
		return "RxOffset"
	case StateRxDataListen:
		return "RxDataListen"
	case StateRxData:
		return "RxData"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// backgroundScanMode selects how long a background scan window runs once
// started during a Sleep slot (spec SUPPLEMENTED FEATURES item 3: the
// original distinguishes scanning "until next non-Sleep slot" from a full
// slotframe).
type backgroundScanMode uint8

const (
	bgScanUntilNextSlot backgroundScanMode = iota
	bgScanFullSlotframe
)

// Mac is one slot-tick engine, shared in shape between gateway and node
// roles; role-specific behavior is selected by cfg.Role throughout.
type Mac struct {
	cfg    config.Config
	selfID uint64

	sched   *scheduler.Scheduler
	queue   *queue.Queue
	assoc   *assoc.Assoc // nil for RoleGateway
	scanTbl *scan.Table
	bloomF  *bloom.Filter

	radio radio.Radio
	timer hwtimer.Timer
	log   *xlog.Logger
	mx    *metrics.Registry

	events func(assoc.Event)

	asn         uint64
	slotStartTS int64
	state       State

	syncedGatewayID uint64
	syncedTS        int64
	remainingCap    uint8

	interSlotHandle hwtimer.Handle
	ticking         bool

	txInFlight    bool
	txAbortHandle hwtimer.Handle
	txFrame       []byte
	txChannel     uint8

	rxInFlight         bool
	rxStartAbortHandle hwtimer.Handle
	rxStuckAbortHandle hwtimer.Handle
	rxStartTS          int64
	curSlotType        scheduler.SlotType
	curASN             uint64
	curCellIndex       int
	curChannel         uint8

	bgScanMode           backgroundScanMode
	bgScanActive         bool
	bgScanDeadlineHandle hwtimer.Handle
	bgScanStartTS        int64

	scanning           bool
	scanDeadlineHandle hwtimer.Handle
}

// Deps bundles the collaborators a Mac is built from. Schedulers, queues,
// scan tables and bloom filters are owned by the caller (typically the
// mari facade) and passed in by reference, matching spec §9's "no cyclic
// ownership required" design note.
type Deps struct {
	Config    config.Config
	SelfID    uint64
	Scheduler *scheduler.Scheduler
	Queue     *queue.Queue
	Assoc     *assoc.Assoc // nil for gateways
	ScanTable *scan.Table
	Bloom     *bloom.Filter
	Radio     radio.Radio
	Timer     hwtimer.Timer
	Log       *xlog.Logger
	Metrics   *metrics.Registry
	OnEvent   func(assoc.Event)
}

// New constructs a Mac and wires the queue's beacon/keepalive synthesis
// callbacks to it.
func New(d Deps) *Mac {
	if d.Log == nil {
		d.Log = xlog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	m := &Mac{
		cfg:     d.Config,
		selfID:  d.SelfID,
		sched:   d.Scheduler,
		queue:   d.Queue,
		assoc:   d.Assoc,
		scanTbl: d.ScanTable,
		bloomF:  d.Bloom,
		radio:   d.Radio,
		timer:   d.Timer,
		log:     d.Log.Module("mac"),
		mx:      d.Metrics,
		events:  d.OnEvent,
	}
	m.queue.SetSources(queue.FrameSources{
		BuildBeacon:    m.buildBeacon,
		BuildKeepalive: m.buildKeepalive,
	})
	return m
}

func (m *Mac) emit(ev assoc.Event) {
	if m.events != nil {
		m.events(ev)
	}
}

// Start installs the radio callbacks and begins slot sequencing: a gateway
// starts ticking immediately; a node starts scanning for a gateway first
// (spec §4.5 "Scan mode").
func (m *Mac) Start() {
	m.radio.OnStartOfFrame(m.onStartOfFrame)
	m.radio.OnEndOfFrame(m.onEndOfFrame)

	if m.cfg.Role == config.RoleGateway {
		m.beginSynced(m.timer.Now())
		return
	}
	m.assoc.StartScan()
	m.beginScan()
}

// --- beacon/keepalive synthesis, called from queue.Next via FrameSources ---

func (m *Mac) buildBeacon() []byte {
	m.RebuildBloomIfDirty()
	assigned := m.sched.AssignedNodeCount()
	remaining := uint8(0)
	if max := m.sched.Schedule().MaxNodes; max > assigned {
		remaining = uint8(max - assigned)
	}
	return packet.BuildBeacon(packet.Beacon{
		Version:           packet.ProtocolVersion,
		NetworkID:         m.cfg.NetworkID,
		ASN:               m.curASN,
		Src:               m.selfID,
		RemainingCapacity: remaining,
		ActiveScheduleID:  m.sched.Schedule().ID,
		Bloom:             m.bloomF.Bytes(),
	})
}

// RebuildBloomIfDirty implements spec §4.4: zero the filter, then set the
// two bits for every cell with a non-zero assigned node id, using the
// cached hashes computed at assignment time. It is a no-op if the
// assignment set has not changed since the last rebuild. Called lazily
// from buildBeacon and eagerly from the facade's event loop, so the
// filter is ready before the next beacon is ever due (spec §4.7
// "event_loop() ... on gateway recomputes the bloom if dirty").
func (m *Mac) RebuildBloomIfDirty() {
	if m.bloomF == nil {
		m.bloomF = &bloom.Filter{}
	}
	if !m.sched.BloomDirty() {
		return
	}
	m.bloomF.Reset()
	sched := m.sched.Schedule()
	for _, c := range sched.Cells {
		if c.Type == scheduler.Uplink && c.AssignedNodeID != 0 {
			m.bloomF.AddHashes(c.BloomH1, c.BloomH2)
		}
	}
	m.sched.ClearBloomDirty()
	m.mx.Counter("bloom.rebuilds").Inc()
}

func (m *Mac) buildKeepalive() []byte {
	return packet.BuildKeepalive(packet.Header{
		Version:   packet.ProtocolVersion,
		NetworkID: m.cfg.NetworkID,
		Dst:       m.syncedGatewayID,
		Src:       m.selfID,
	})
}

func (m *Mac) buildJoinRequest() []byte {
	return packet.BuildJoinRequest(packet.Header{
		Version:   packet.ProtocolVersion,
		NetworkID: m.cfg.NetworkID,
		Dst:       packet.Broadcast,
		Src:       m.selfID,
	})
}

// --- slot sequencing ---

// beginSynced (dis)arms the periodic inter-slot timer and resets the ASN
// counter; used at gateway startup. A node arms its timer in syncToGateway.
func (m *Mac) beginSynced(now int64) {
	if m.ticking {
		m.timer.Cancel(m.interSlotHandle)
	}
	m.ticking = true
	m.asn = 0
	m.interSlotHandle = m.timer.SetPeriodic(config.WholeSlotUS, m.newSlotSynced)
}

// newSlotSynced is the inter-slot timer callback (spec §4.5 step 1-4).
func (m *Mac) newSlotSynced(firedAtUS int64) {
	m.slotStartTS = firedAtUS
	m.mx.Counter("mac.slots_processed").Inc()

	if m.cfg.Role == config.RoleGateway {
		evicted := m.sched.SweepExpired(m.asn)
		for _, nodeID := range evicted {
			m.emit(assoc.Event{Kind: assoc.EventNodeLeft, NodeID: nodeID, Reason: assoc.ReasonPeerLostTimeout})
		}
	} else {
		if m.assoc.CheckSyncedTimeout(m.syncedTS, firedAtUS) {
			m.stopTickingAndRescan()
			return
		}
		if m.assoc.CheckJoiningDeadline(firedAtUS) {
			m.assoc.JoiningTimedOut()
			if m.assoc.State() == assoc.Idle {
				m.emit(assoc.Event{Kind: assoc.EventError, GatewayID: m.syncedGatewayID, Reason: assoc.ReasonGatewayFull})
				m.stopTickingAndRescan()
				return
			}
		}
	}

	thisASN := m.asn
	info := m.sched.Tick(thisASN)
	m.asn++
	m.curSlotType = info.Type
	m.curASN = thisASN
	m.curCellIndex = int(thisASN % uint64(m.sched.NCells()))
	m.curChannel = info.Channel

	if m.bgScanActive && info.RadioAction != scheduler.Sleep {
		m.timer.Cancel(m.bgScanDeadlineHandle)
		m.endBackgroundScan(m.bgScanStartTS, firedAtUS)
	}

	switch info.RadioAction {
	case scheduler.Tx:
		m.state = StateTxOffset
		m.ti1(info)
	case scheduler.Rx:
		m.state = StateRxOffset
		m.ri1(info)
	default:
		m.state = StateSleep
		if m.cfg.Role == config.RoleNode && m.assoc.IsJoined() && m.cfg.EnableBackgroundScan {
			m.maybeStartBackgroundScan()
		}
	}
}

// --- TX path: ti1 -> ti2 -> ti3, tie1 on abort ---

func (m *Mac) ti1(info scheduler.SlotInfo) {
	var readyToJoin bool
	var joinReq []byte
	if m.cfg.Role == config.RoleNode && info.Type == scheduler.SharedUplink {
		readyToJoin = m.assoc.TickSharedUplink()
		if readyToJoin {
			joinReq = m.buildJoinRequest()
		}
	}

	frame, kind := m.queue.Next(info.Type, m.cfg.Role == config.RoleGateway, readyToJoin, joinReq, m.cfg.AutoUplinkKeepalive)
	if kind == queue.KindNone {
		return
	}
	if kind == queue.KindJoinHolder && m.cfg.Role == config.RoleNode {
		m.assoc.EnterJoining(m.slotStartTS)
	}

	m.txFrame = frame
	m.txChannel = info.Channel
	m.txInFlight = true
	m.timer.SetOneshot(m.slotStartTS, config.TxOffsetUS, m.ti2)
	m.txAbortHandle = m.timer.SetOneshot(m.slotStartTS, config.TxOffsetUS+config.TxMaxUS, m.tie1)
}

func (m *Mac) ti2(now int64) {
	m.state = StateTxData
	m.radio.StartTX(m.txChannel, m.txFrame)
}

func (m *Mac) ti3(now int64) {
	m.timer.Cancel(m.txAbortHandle)
	m.txInFlight = false
	m.state = StateSleep
	m.sched.MarkUsed(m.curCellIndex)
}

func (m *Mac) tie1(now int64) {
	if !m.txInFlight {
		return
	}
	m.log.Warn("tx stuck, aborting", "asn", m.curASN)
	m.mx.Counter("mac.tx_stuck").Inc()
	m.radio.Disable()
	m.txInFlight = false
	m.state = StateSleep
}

// --- RX path: ri1 -> ri2 -> ri3 (start-of-frame) -> ri4 (end-of-frame) ---

func (m *Mac) ri1(info scheduler.SlotInfo) {
	m.rxInFlight = true
	m.timer.SetOneshot(m.slotStartTS, config.RxOffsetUS, func(now int64) { m.ri2(now, info.Channel) })
	m.rxStartAbortHandle = m.timer.SetOneshot(m.slotStartTS, config.TxOffsetUS+config.RxGuardUS, m.rie1)
	m.rxStuckAbortHandle = m.timer.SetOneshot(m.slotStartTS, config.RxOffsetUS+config.RxMaxUS, m.rie2)
}

func (m *Mac) ri2(now int64, channel uint8) {
	m.state = StateRxDataListen
	m.radio.StartRX(channel)
}

func (m *Mac) onStartOfFrame(ts int64) {
	if !m.rxInFlight {
		return
	}
	m.timer.Cancel(m.rxStartAbortHandle)
	m.rxStartTS = ts
	m.state = StateRxData
}

func (m *Mac) onEndOfFrame(ts int64) {
	if m.txInFlight {
		m.ti3(ts)
		return
	}
	if m.rxInFlight {
		m.ri4(ts)
		return
	}
	if m.scanning || m.bgScanActive {
		m.handleScanFrame(ts)
	}
}

// handleScanFrame processes a frame received while listening outside the
// per-slot RX window (full scan mode or background scan): there is no
// current cell to mark used, just a candidate beacon to record.
func (m *Mac) handleScanFrame(now int64) {
	if !m.radio.PendingRX() {
		return
	}
	frame := m.radio.ReadFrame()
	m.handlePacket(frame, now)
}

func (m *Mac) ri4(now int64) {
	if !m.rxInFlight {
		return
	}
	m.timer.Cancel(m.rxStuckAbortHandle)
	m.rxInFlight = false
	m.state = StateSleep

	if !m.radio.PendingRX() {
		return
	}
	frame := m.radio.ReadFrame()
	m.sched.MarkUsed(m.curCellIndex)
	m.handlePacket(frame, now)
}

func (m *Mac) rie1(now int64) {
	if !m.rxInFlight {
		return
	}
	m.rxInFlight = false
	m.radio.Disable()
	m.state = StateSleep
}

func (m *Mac) rie2(now int64) {
	if !m.rxInFlight {
		return
	}
	m.log.Warn("rx stuck, aborting", "asn", m.curASN)
	m.rxInFlight = false
	m.radio.Disable()
	m.state = StateSleep
}

// --- received-frame dispatch ---

func (m *Mac) handlePacket(b []byte, now int64) {
	if len(b) < 1 {
		return
	}
	if err := packet.ValidateVersion(b[0]); err != nil {
		m.log.Debug("dropping frame, version mismatch")
		return
	}

	frameType := packet.FrameType(0)
	if len(b) >= 2 {
		frameType = packet.FrameType(b[1])
	}

	switch frameType {
	case packet.TypeBeacon:
		m.handleBeacon(b, now)
	case packet.TypeJoinRequest:
		m.handleJoinRequest(b)
	case packet.TypeJoinResponse:
		m.handleJoinResponse(b)
	case packet.TypeKeepalive:
		m.handleKeepalive(b, now)
	case packet.TypeData:
		m.handleData(b, now)
	default:
		m.log.Debug("dropping frame, unknown type", "type", frameType)
	}
}

func (m *Mac) handleBeacon(b []byte, now int64) {
	bcn, err := packet.ParseBeacon(b)
	if err != nil {
		return
	}
	if m.cfg.Role != config.RoleNode {
		return
	}
	if !m.assoc.AcceptsNetwork(bcn.NetworkID) {
		return
	}
	m.scanTbl.Add(bcn.Summary(), m.radio.LastRSSI(), m.curChannel, now, bcn.ASN)
	m.mx.Counter("scan.beacons_seen").Inc()

	if m.assoc.SyncedGatewayID() != bcn.Src {
		return
	}

	if m.assoc.IsJoined() {
		filter := bloom.FromBytes(bcn.Bloom)
		if !filter.Contains(m.selfID) {
			m.leaveAndRescan(assoc.ReasonPeerLostBloom)
			return
		}
	}

	m.driftCorrect(m.rxStartTS, now)
	if m.assoc.IsJoined() {
		m.assoc.ReceivedFromSyncedGateway(bcn.ASN)
	}
	m.remainingCap = bcn.RemainingCapacity
}

func (m *Mac) driftCorrect(observedTS, fallbackTS int64) {
	if m.cfg.Role != config.RoleNode || !m.assoc.IsJoined() {
		return
	}
	observed := observedTS
	if observed == 0 {
		observed = fallbackTS
	}
	expected := m.slotStartTS + config.TxOffsetUS + config.CPUPeriphOffsetUS
	drift := observed - expected
	if drift < 0 {
		drift = -drift
	}
	signedDrift := observed - expected
	if drift < config.DriftToleranceUS {
		m.timer.Adjust(m.interSlotHandle, signedDrift)
		return
	}
	m.leaveAndRescan(assoc.ReasonOutOfSync)
}

func (m *Mac) handleJoinRequest(b []byte) {
	if m.cfg.Role != config.RoleGateway {
		return
	}
	req, err := packet.ParseJoinRequest(b)
	if err != nil {
		return
	}
	idx := m.sched.AssignNextUplink(req.Src, m.curASN)
	if idx < 0 {
		m.log.Debug("join request rejected, schedule full", "node_id", req.Src)
		m.emit(assoc.Event{Kind: assoc.EventError, NodeID: req.Src, Reason: assoc.ReasonGatewayFull})
		m.mx.Counter("assoc.join_rejected_full").Inc()
		return
	}
	resp := packet.BuildJoinResponse(packet.Header{
		Version:   packet.ProtocolVersion,
		NetworkID: m.cfg.NetworkID,
		Dst:       req.Src,
		Src:       m.selfID,
	}, uint8(idx))
	m.queue.SetJoinPacket(resp)
	m.emit(assoc.Event{Kind: assoc.EventNodeJoined, NodeID: req.Src})
	m.mx.Counter("assoc.join_attempts").Inc()
}

func (m *Mac) handleJoinResponse(b []byte) {
	if m.cfg.Role != config.RoleNode || m.assoc.State() != assoc.Joining {
		return
	}
	resp, err := packet.ParseJoinResponse(b)
	if err != nil || resp.Dst != m.selfID {
		return
	}
	m.sched.AssignAt(int(resp.AssignedCellIndex), m.selfID, m.curASN)
	m.assoc.EnterJoined(m.curASN)
	m.emit(assoc.Event{Kind: assoc.EventConnected, GatewayID: m.assoc.SyncedGatewayID()})
}

func (m *Mac) handleKeepalive(b []byte, now int64) {
	hdr, err := packet.ParseKeepalive(b)
	if err != nil {
		return
	}
	if m.cfg.Role == config.RoleGateway {
		m.sched.Touch(hdr.Src, m.curASN)
		m.emit(assoc.Event{Kind: assoc.EventKeepalive, NodeID: hdr.Src})
		return
	}
	if m.assoc.IsJoined() && hdr.Src == m.assoc.SyncedGatewayID() {
		m.driftCorrect(m.rxStartTS, now)
		m.assoc.ReceivedFromSyncedGateway(m.curASN)
	}
}

func (m *Mac) handleData(b []byte, now int64) {
	data, err := packet.ParseData(b)
	if err != nil {
		return
	}
	if m.cfg.Role == config.RoleGateway {
		m.sched.Touch(data.Src, m.curASN)
	} else if m.assoc.IsJoined() && data.Src == m.assoc.SyncedGatewayID() {
		m.driftCorrect(m.rxStartTS, now)
		m.assoc.ReceivedFromSyncedGateway(m.curASN)
	}
	m.emit(assoc.Event{Kind: assoc.EventNewPacket, NodeID: data.Src, Payload: data.Payload})
}

// leaveAndRescan tears down synced state and restarts scanning (spec §7:
// all Disconnected reasons "trigger a return to Scanning").
func (m *Mac) leaveAndRescan(reason assoc.Reason) {
	ev := m.assoc.Disconnect(reason)
	m.emit(ev)
	m.stopTickingAndRescan()
}

func (m *Mac) stopTickingAndRescan() {
	if m.ticking {
		m.timer.Cancel(m.interSlotHandle)
		m.ticking = false
	}
	m.queue.Reset()
	m.assoc.StartScan()
	m.beginScan()
}

// --- scan mode (spec §4.5 "Scan mode") ---

func (m *Mac) beginScan() {
	m.scanning = true
	m.curChannel = scheduler.AdvertisingChannels[0]
	m.radio.StartRX(m.curChannel)
	start := m.timer.Now()
	duration := int64(m.sched.NCells()) * config.WholeSlotUS
	m.scanDeadlineHandle = m.timer.SetOneshot(start, duration, func(now int64) {
		m.handleScanAndTriggerAssociation(start, now)
	})
}

func (m *Mac) handleScanAndTriggerAssociation(scanStartedTS, scanEndedTS int64) {
	m.scanning = false
	m.radio.Disable()
	sel, ok := m.scanTbl.Select(scanStartedTS, scanEndedTS)
	if !ok {
		m.beginScan()
		return
	}
	if m.syncToGateway(scanEndedTS, sel, m.cfg.SyncCorrectionScan) {
		return
	}
	m.beginScan()
}

// syncToGateway implements spec §4.5 "sync_to_gateway": adopt the
// candidate's schedule and network id, compute how many slots have
// elapsed since its beacon, and arm the periodic inter-slot timer so the
// next tick lands on a fresh slot boundary.
func (m *Mac) syncToGateway(nowTS int64, sel scan.ChannelInfo, correction time.Duration) bool {
	if sel.Beacon.ActiveScheduleID != m.sched.Schedule().ID {
		m.log.Debug("sync failed, unknown schedule id", "schedule_id", sel.Beacon.ActiveScheduleID)
		return false
	}

	m.syncedGatewayID = sel.GatewayID
	m.syncedTS = nowTS
	m.assoc.EnterSynced(sel.GatewayID, sel.Beacon.NetworkID, sel.Beacon.RemainingCapacity)

	delta := nowTS - sel.Timestamp
	slotsSince := delta/config.WholeSlotUS + 1
	remainder := delta % config.WholeSlotUS
	extraSlot := int64(0)
	if remainder > config.WholeSlotUS/2 {
		slotsSince++
		extraSlot = config.WholeSlotUS
	}

	offset := (config.WholeSlotUS - remainder) + extraSlot - int64(correction/time.Microsecond)
	if offset < 0 {
		offset = 0
	}

	// Any cell this node held under its previous gateway is no longer its
	// own; a new one is only recorded when a Join-Response arrives.
	m.sched.ReleaseNode(m.selfID)

	m.asn = sel.Beacon.ASN + uint64(slotsSince)
	if m.ticking {
		// A handover re-syncs while the old inter-slot timer is still live.
		m.timer.Cancel(m.interSlotHandle)
	}
	m.ticking = true
	m.timer.SetOneshot(nowTS, offset, func(firedAtUS int64) {
		// The oneshot lands the node on its first synced slot boundary;
		// SetPeriodic only arms the *next* one, so the first tick has to
		// be driven here explicitly rather than waiting a further
		// WholeSlotUS for the periodic channel's first fire.
		m.interSlotHandle = m.timer.SetPeriodic(config.WholeSlotUS, m.newSlotSynced)
		m.newSlotSynced(firedAtUS)
	})
	return true
}

// --- background scan (spec §4.5 "Background scan", SUPPLEMENTED FEATURES item 3) ---

func (m *Mac) maybeStartBackgroundScan() {
	if m.bgScanActive {
		return
	}
	m.bgScanActive = true
	m.bgScanMode = bgScanUntilNextSlot
	channel := scheduler.AdvertisingChannels[int(m.asn%3)]
	m.curChannel = channel
	m.radio.StartRX(channel)

	deadline := config.WholeSlotUS
	if m.bgScanMode == bgScanFullSlotframe {
		deadline = int64(m.sched.NCells()) * config.WholeSlotUS
	}
	start := m.timer.Now()
	m.bgScanStartTS = start
	m.bgScanDeadlineHandle = m.timer.SetOneshot(start, deadline, func(now int64) {
		m.endBackgroundScan(start, now)
	})
}

func (m *Mac) endBackgroundScan(startTS, endTS int64) {
	m.bgScanActive = false
	m.radio.Disable()

	sel, ok := m.scanTbl.Select(startTS, endTS)
	if !ok {
		return
	}
	currentRSSI, haveCurrent := m.scanTbl.AverageFor(m.syncedGatewayID, startTS, endTS)
	if !haveCurrent {
		currentRSSI = -128
	}
	usSinceSync := endTS - m.syncedTS
	if !scan.ShouldHandover(sel, m.syncedGatewayID, currentRSSI, usSinceSync) {
		return
	}

	ev := m.assoc.Disconnect(assoc.ReasonHandover)
	m.emit(ev)
	if !m.syncToGateway(endTS, sel, m.cfg.SyncCorrectionBackgroundScan) {
		m.emit(assoc.Event{Kind: assoc.EventDisconnected, Reason: assoc.ReasonHandoverFailed})
		m.stopTickingAndRescan()
	}
}

// State returns the MAC's current intra-slot state, for diagnostics.
func (m *Mac) State() State { return m.state }

// ASN returns the current Absolute Slot Number.
func (m *Mac) ASN() uint64 { return m.asn }
