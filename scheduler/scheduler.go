package scheduler

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/marinet/mari/internal/config"
)

// MaxStatsCells is the width of the usage statistics bitmap (spec §4.1).
const MaxStatsCells = 256

// SlotInfo is what Scheduler.Tick returns for the current ASN: the action
// the MAC should take with the radio, the physical channel to use, and the
// cell's role.
type SlotInfo struct {
	RadioAction RadioAction
	Channel     uint8
	Type        SlotType
}

// Scheduler owns the active Schedule and the per-slot usage statistics
// (spec §4.1). Cells are mutated only here, in response to association
// layer requests; MAC and the facade only ever read through Tick, CellInfo
// and Schedule.
type Scheduler struct {
	role     config.Role
	selfID   uint64 // node's own id; unused for RoleGateway
	schedule *Schedule

	channelOverride   *uint8 // compile-time bring-up override
	slotframeCount    uint64
	stats             *bitset.BitSet
	assignedNodeCount int
	bloomDirty        bool
}

// New creates a Scheduler for the given role. selfID is ignored for
// gateways; for nodes it is the node's own id, used to decide whether an
// Uplink cell belongs to this node (spec §3 RadioAction derivation).
func New(role config.Role, selfID uint64, schedule *Schedule) *Scheduler {
	s := &Scheduler{
		role:     role,
		selfID:   selfID,
		schedule: schedule,
		stats:    bitset.New(MaxStatsCells),
	}
	s.assignedNodeCount = schedule.assignedCount()
	return s
}

// Schedule returns the active schedule.
func (s *Scheduler) Schedule() *Schedule { return s.schedule }

// SetChannelOverride pins every slot to a single physical channel,
// regardless of slot type or ASN. This is a bring-up aid (spec §4.1): "A
// compile-time override pins all slots to a single channel for bring-up."
func (s *Scheduler) SetChannelOverride(ch uint8) { s.channelOverride = &ch }

// ClearChannelOverride restores normal channel-hopping behavior.
func (s *Scheduler) ClearChannelOverride() { s.channelOverride = nil }

// channelFor computes the physical channel for a cell at the given ASN
// (spec §4.1 "Channel hopping").
func (s *Scheduler) channelFor(asn uint64, cell Cell) uint8 {
	if s.channelOverride != nil {
		return *s.channelOverride
	}
	if cell.Type == Beacon {
		return AdvertisingChannels[cell.ChannelOffset%3]
	}
	return uint8((asn + uint64(cell.ChannelOffset)) % NumDataChannels)
}

// action derives the RadioAction for a cell per the role+ownership table
// in spec §3.
func (s *Scheduler) action(cell Cell) RadioAction {
	switch cell.Type {
	case Beacon, Downlink:
		if s.role == config.RoleGateway {
			return Tx
		}
		return Rx
	case SharedUplink:
		if s.role == config.RoleGateway {
			return Rx
		}
		return Tx
	case Uplink:
		if s.role == config.RoleGateway {
			return Rx
		}
		if cell.AssignedNodeID == s.selfID && s.selfID != 0 {
			return Tx
		}
		return Sleep
	default:
		return Sleep
	}
}

// Tick computes the SlotInfo for the given ASN (spec §4.1 "Per-slot tick").
// It also rolls the slotframe counter when the ASN wraps back to cell 0.
func (s *Scheduler) Tick(asn uint64) SlotInfo {
	n := uint64(len(s.schedule.Cells))
	i := asn % n
	cell := s.schedule.Cells[i]

	info := SlotInfo{
		RadioAction: s.action(cell),
		Channel:     s.channelFor(asn, cell),
		Type:        cell.Type,
	}

	if i == 0 && asn != 0 {
		s.slotframeCount++
	}
	return info
}

// SlotframeCount returns the number of completed slotframes.
func (s *Scheduler) SlotframeCount() uint64 { return s.slotframeCount }

// NCells returns the number of cells in the active schedule.
func (s *Scheduler) NCells() int { return len(s.schedule.Cells) }

// CellInfo returns a read-only copy of cell i, for diagnostics (e.g. the
// HDLC GATEWAY_INFO bridge message, or tests).
func (s *Scheduler) CellInfo(i int) Cell { return s.schedule.Cells[i] }

// AssignedNodeCount returns the number of Uplink cells currently owned by
// a node.
func (s *Scheduler) AssignedNodeCount() int { return s.assignedNodeCount }

// BloomDirty reports whether the assignment set has changed since the last
// ClearBloomDirty call.
func (s *Scheduler) BloomDirty() bool { return s.bloomDirty }

// ClearBloomDirty resets the dirty flag after the bloom filter has been
// rebuilt.
func (s *Scheduler) ClearBloomDirty() { s.bloomDirty = false }

// AssignNextUplink assigns nodeID the first free Uplink cell, or refreshes
// its existing cell if it already owns one (spec §4.1 "Assignment"):
// rejoin due to a lost Join-Response must not allocate a second cell.
// Returns the cell index, or -1 if the schedule has no free Uplink cell.
func (s *Scheduler) AssignNextUplink(nodeID uint64, asn uint64) int {
	cells := s.schedule.Cells
	for i := range cells {
		if cells[i].Type == Uplink && cells[i].AssignedNodeID == nodeID {
			cells[i].LastReceivedASN = asn
			return i
		}
	}
	for i := range cells {
		if cells[i].free() {
			h1, h2 := hashCell(nodeID)
			cells[i].AssignedNodeID = nodeID
			cells[i].LastReceivedASN = asn
			cells[i].BloomH1 = h1
			cells[i].BloomH2 = h2
			s.assignedNodeCount++
			s.bloomDirty = true
			return i
		}
	}
	return -1
}

// AssignAt force-assigns nodeID to exactly cell i, without searching for a
// free cell. Used by a node applying a gateway's Join-Response, which names
// the cell index explicitly — the node's own schedule copy must record the
// same index the gateway chose, not whichever cell a local free-cell scan
// would have picked.
func (s *Scheduler) AssignAt(i int, nodeID uint64, asn uint64) {
	cell := &s.schedule.Cells[i]
	h1, h2 := hashCell(nodeID)
	if cell.AssignedNodeID == 0 {
		s.assignedNodeCount++
	}
	cell.AssignedNodeID = nodeID
	cell.LastReceivedASN = asn
	cell.BloomH1 = h1
	cell.BloomH2 = h2
	s.bloomDirty = true
}

// Touch refreshes LastReceivedASN for whichever cell nodeID already owns,
// without assigning a new cell if it does not own one. Used by the gateway
// on every uplink frame (Keepalive, Data) from an already-joined node, so
// Join-Request is the only frame that can allocate a new cell.
func (s *Scheduler) Touch(nodeID uint64, asn uint64) bool {
	for i := range s.schedule.Cells {
		c := &s.schedule.Cells[i]
		if c.Type == Uplink && c.AssignedNodeID == nodeID {
			c.LastReceivedASN = asn
			return true
		}
	}
	return false
}

// Release clears cell i's assignment (spec §4.1 "Release"). Used by
// ReleaseNode at a node and by the gateway's timeout sweep.
func (s *Scheduler) Release(i int) {
	cell := &s.schedule.Cells[i]
	if cell.Type != Uplink || cell.AssignedNodeID == 0 {
		return
	}
	cell.AssignedNodeID = 0
	cell.LastReceivedASN = 0
	cell.BloomH1 = 0
	cell.BloomH2 = 0
	s.assignedNodeCount--
	s.bloomDirty = true
}

// ReleaseNode releases whichever cell nodeID currently owns. Used by a
// node when it (re)syncs to a gateway, since a node only ever knows its
// own id, not its cell index.
func (s *Scheduler) ReleaseNode(nodeID uint64) {
	for i := range s.schedule.Cells {
		if s.schedule.Cells[i].Type == Uplink && s.schedule.Cells[i].AssignedNodeID == nodeID {
			s.Release(i)
			return
		}
	}
}

// SweepExpired clears any Uplink cell whose owner has not been heard from
// in more than NCells * MaxSlotframesNoRX slots (spec §4.6 "Gateway
// membership sweep"), returning the node ids that were evicted so the
// caller can emit NodeLeft{PeerLostTimeout} events.
func (s *Scheduler) SweepExpired(asn uint64) []uint64 {
	threshold := uint64(len(s.schedule.Cells)) * config.MaxSlotframesNoRX
	var evicted []uint64
	for i := range s.schedule.Cells {
		c := &s.schedule.Cells[i]
		if c.Type != Uplink || c.AssignedNodeID == 0 {
			continue
		}
		if asn-c.LastReceivedASN > threshold {
			evicted = append(evicted, c.AssignedNodeID)
			s.Release(i)
		}
	}
	return evicted
}

// MarkUsed records that cell i was used (a frame was sent or at least
// start-of-frame was received) in the most recent pass (spec §4.1
// "Stats"). Indices beyond MaxStatsCells are silently ignored — the
// statistics bitmap only covers the first MaxStatsCells cells.
func (s *Scheduler) MarkUsed(i int) {
	if i < 0 || i >= MaxStatsCells {
		return
	}
	s.stats.Set(uint(i))
}

// ResetStats clears the usage bitmap, starting a new statistics pass.
func (s *Scheduler) ResetStats() {
	s.stats.ClearAll()
}

// Used reports whether cell i was marked used in the current pass.
func (s *Scheduler) Used(i int) bool {
	if i < 0 || i >= MaxStatsCells {
		return false
	}
	return s.stats.Test(uint(i))
}
