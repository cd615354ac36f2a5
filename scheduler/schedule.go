// Package scheduler implements the Mari TSCH-style slot scheduler (spec
// §4.1): the cell table, channel hopping, uplink cell assignment/release,
// and per-slot usage statistics.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/marinet/mari/bloom"
	"github.com/marinet/mari/internal/config"
)

// SlotType is the preassigned role of a cell in the schedule.
type SlotType uint8

const (
	Beacon SlotType = iota
	SharedUplink
	Downlink
	Uplink
)

func (t SlotType) String() string {
	switch t {
	case Beacon:
		return "Beacon"
	case SharedUplink:
		return "SharedUplink"
	case Downlink:
		return "Downlink"
	case Uplink:
		return "Uplink"
	default:
		return fmt.Sprintf("SlotType(%d)", uint8(t))
	}
}

// RadioAction is what the MAC should do with the radio for a given slot.
type RadioAction uint8

const (
	Sleep RadioAction = iota
	Rx
	Tx
)

func (a RadioAction) String() string {
	switch a {
	case Sleep:
		return "Sleep"
	case Rx:
		return "Rx"
	case Tx:
		return "Tx"
	default:
		return fmt.Sprintf("RadioAction(%d)", uint8(a))
	}
}

// NumDataChannels is the number of BLE data channels used for hopping.
const NumDataChannels = 37

// AdvertisingChannels are the three BLE advertising channels used for
// beacons and scanning.
var AdvertisingChannels = [3]uint8{37, 38, 39}

// Cell is one entry of the schedule's cell table (spec §3). Only Uplink
// cells ever carry a non-zero AssignedNodeID; BloomH1/BloomH2 are the
// cached FNV-1a hashes of that id (zero when the cell is free).
type Cell struct {
	Type            SlotType
	ChannelOffset   uint8
	AssignedNodeID  uint64
	LastReceivedASN uint64
	BloomH1         uint64
	BloomH2         uint64
}

func (c Cell) free() bool {
	return c.Type == Uplink && c.AssignedNodeID == 0
}

// Schedule is a static, preloaded cell table identified by a one-byte id
// (spec §3). MaxNodes must equal the number of Uplink cells.
type Schedule struct {
	ID       uint8
	MaxNodes int
	Cells    []Cell
}

var (
	// ErrTooManyCells is returned when a schedule declares more cells
	// than NCellsMax.
	ErrTooManyCells = errors.New("scheduler: schedule exceeds NCellsMax")

	// ErrMaxNodesMismatch describes a MaxNodes value that does not equal
	// the number of Uplink cells in the table. NewSchedule never returns
	// it, because it derives MaxNodes from the cells.
	ErrMaxNodesMismatch = errors.New("scheduler: MaxNodes does not match Uplink cell count")

	// ErrEmptySchedule is returned for a schedule with zero cells.
	ErrEmptySchedule = errors.New("scheduler: schedule has no cells")
)

// NewSchedule validates and constructs a Schedule. Schedules are static and
// selected by id (spec §2 Non-goals: "no dynamic slotframe negotiation");
// this constructor is the one place that enforces spec invariant 2 (§8):
// it rejects more than 149 cells, and sets MaxNodes to the number of
// Uplink cells so that sum(Uplink cells) == max_nodes holds by
// construction.
func NewSchedule(id uint8, cells []Cell) (*Schedule, error) {
	if len(cells) == 0 {
		return nil, ErrEmptySchedule
	}
	if len(cells) > config.NCellsMax {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCells, len(cells), config.NCellsMax)
	}
	uplinkCount := 0
	for _, c := range cells {
		if c.Type == Uplink {
			uplinkCount++
		}
	}
	cp := make([]Cell, len(cells))
	copy(cp, cells)
	return &Schedule{ID: id, MaxNodes: uplinkCount, Cells: cp}, nil
}

// assignedCount counts the Uplink cells carrying a non-zero assigned node
// id; New uses it to seed the scheduler's assigned-node counter.
func (s *Schedule) assignedCount() int {
	n := 0
	for _, c := range s.Cells {
		if c.Type == Uplink && c.AssignedNodeID != 0 {
			n++
		}
	}
	return n
}

// hashCell fills in the cached bloom hashes for a newly assigned cell.
func hashCell(nodeID uint64) (h1, h2 uint64) {
	return bloom.Hashes(nodeID)
}
