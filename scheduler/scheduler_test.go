package scheduler

import (
	"errors"
	"testing"

	"github.com/marinet/mari/internal/config"
)

func testSchedule(t *testing.T) *Schedule {
	t.Helper()
	cells := []Cell{
		{Type: Beacon, ChannelOffset: 0},
		{Type: SharedUplink, ChannelOffset: 1},
		{Type: Downlink, ChannelOffset: 2},
		{Type: Uplink, ChannelOffset: 3},
		{Type: Uplink, ChannelOffset: 4},
	}
	s, err := NewSchedule(1, cells)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewScheduleValidation(t *testing.T) {
	sched := testSchedule(t)
	if sched.MaxNodes != 2 {
		t.Fatalf("got MaxNodes=%d want 2", sched.MaxNodes)
	}

	tooMany := make([]Cell, config.NCellsMax+1)
	if _, err := NewSchedule(1, tooMany); !errors.Is(err, ErrTooManyCells) {
		t.Fatalf("got %v want ErrTooManyCells", err)
	}

	if _, err := NewSchedule(1, nil); err != ErrEmptySchedule {
		t.Fatalf("got %v want ErrEmptySchedule", err)
	}
}

func TestTickChannelHopping(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	for asn := uint64(0); asn < 20; asn++ {
		i := asn % uint64(len(sched.Cells))
		cell := sched.Cells[i]
		info := sc.Tick(asn)

		if cell.Type == Beacon {
			found := false
			for _, adv := range AdvertisingChannels {
				if info.Channel == adv {
					found = true
				}
			}
			if !found {
				t.Fatalf("asn=%d beacon channel %d not an advertising channel", asn, info.Channel)
			}
			continue
		}
		want := uint8((asn + uint64(cell.ChannelOffset)) % NumDataChannels)
		if info.Channel != want {
			t.Fatalf("asn=%d got channel %d want %d", asn, info.Channel, want)
		}
	}
}

func TestChannelOverridePinsAllSlots(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)
	sc.SetChannelOverride(15)
	for asn := uint64(0); asn < 10; asn++ {
		if got := sc.Tick(asn).Channel; got != 15 {
			t.Fatalf("asn=%d got channel %d want override 15", asn, got)
		}
	}
	sc.ClearChannelOverride()
	if sc.Tick(0).Channel == 15 {
		t.Fatal("override should no longer apply")
	}
}

func TestGatewayRadioActionTable(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	cases := map[SlotType]RadioAction{
		Beacon:       Tx,
		Downlink:     Tx,
		SharedUplink: Rx,
		Uplink:       Rx,
	}
	for typ, want := range cases {
		if got := sc.action(Cell{Type: typ}); got != want {
			t.Fatalf("gateway %s: got %s want %s", typ, got, want)
		}
	}
}

func TestNodeRadioActionTable(t *testing.T) {
	sched := testSchedule(t)
	const selfID = uint64(42)
	sc := New(config.RoleNode, selfID, sched)

	if got := sc.action(Cell{Type: Beacon}); got != Rx {
		t.Fatalf("node beacon: got %s want Rx", got)
	}
	if got := sc.action(Cell{Type: Downlink}); got != Rx {
		t.Fatalf("node downlink: got %s want Rx", got)
	}
	if got := sc.action(Cell{Type: SharedUplink}); got != Tx {
		t.Fatalf("node shared-uplink: got %s want Tx", got)
	}
	if got := sc.action(Cell{Type: Uplink, AssignedNodeID: selfID}); got != Tx {
		t.Fatalf("node owned uplink: got %s want Tx", got)
	}
	if got := sc.action(Cell{Type: Uplink, AssignedNodeID: selfID + 1}); got != Sleep {
		t.Fatalf("node unowned uplink: got %s want Sleep", got)
	}
	if got := sc.action(Cell{Type: Uplink, AssignedNodeID: 0}); got != Sleep {
		t.Fatalf("node free uplink: got %s want Sleep", got)
	}
}

func TestAssignReleaseRejoin(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	i1 := sc.AssignNextUplink(100, 10)
	if i1 < 0 {
		t.Fatal("expected a free cell")
	}
	if sc.AssignedNodeCount() != 1 {
		t.Fatalf("got %d want 1", sc.AssignedNodeCount())
	}
	if !sc.BloomDirty() {
		t.Fatal("expected bloom dirty after assignment")
	}
	sc.ClearBloomDirty()

	// Rejoin: same node id must reuse its existing cell, not allocate a
	// second one.
	i2 := sc.AssignNextUplink(100, 20)
	if i2 != i1 {
		t.Fatalf("rejoin got cell %d want original cell %d", i2, i1)
	}
	if sc.AssignedNodeCount() != 1 {
		t.Fatalf("rejoin must not increase assigned count, got %d", sc.AssignedNodeCount())
	}
	if sc.CellInfo(i1).LastReceivedASN != 20 {
		t.Fatalf("rejoin must refresh LastReceivedASN")
	}

	i3 := sc.AssignNextUplink(200, 30)
	if i3 < 0 || i3 == i1 {
		t.Fatalf("expected a distinct second free cell, got %d", i3)
	}

	// Schedule only has 2 Uplink cells; a third distinct node must fail.
	if i4 := sc.AssignNextUplink(300, 40); i4 != -1 {
		t.Fatalf("got %d want -1 (schedule full)", i4)
	}

	sc.Release(i1)
	if sc.AssignedNodeCount() != 1 {
		t.Fatalf("got %d want 1 after release", sc.AssignedNodeCount())
	}
	if sc.CellInfo(i1).AssignedNodeID != 0 {
		t.Fatal("released cell must clear AssignedNodeID")
	}
}

func TestAssignAtForcesSpecificCell(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleNode, 100, sched)

	sc.AssignAt(4, 100, 7) // cell 4 is the second Uplink cell in testSchedule
	if sc.CellInfo(4).AssignedNodeID != 100 {
		t.Fatalf("got %d want 100", sc.CellInfo(4).AssignedNodeID)
	}
	if sc.AssignedNodeCount() != 1 {
		t.Fatalf("got %d want 1", sc.AssignedNodeCount())
	}
	if got := sc.action(sc.CellInfo(4)); got != Tx {
		t.Fatalf("got %s want Tx for the node's own assigned cell", got)
	}
}

func TestTouchOnlyRefreshesExistingAssignment(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	if sc.Touch(55, 10) {
		t.Fatal("Touch must not assign a new cell for an unknown node")
	}
	i := sc.AssignNextUplink(55, 1)
	if !sc.Touch(55, 99) {
		t.Fatal("Touch should refresh an already-assigned node")
	}
	if sc.CellInfo(i).LastReceivedASN != 99 {
		t.Fatalf("got %d want 99", sc.CellInfo(i).LastReceivedASN)
	}
}

func TestSweepExpired(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	i := sc.AssignNextUplink(7, 0)
	threshold := uint64(len(sched.Cells)) * config.MaxSlotframesNoRX

	evicted := sc.SweepExpired(threshold)
	if len(evicted) != 0 {
		t.Fatalf("must not evict exactly at the threshold, got %v", evicted)
	}

	evicted = sc.SweepExpired(threshold + 1)
	if len(evicted) != 1 || evicted[0] != 7 {
		t.Fatalf("got %v want [7]", evicted)
	}
	if sc.CellInfo(i).AssignedNodeID != 0 {
		t.Fatal("expired cell must be released")
	}
}

func TestStatsBitmap(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)

	sc.MarkUsed(0)
	sc.MarkUsed(3)
	if !sc.Used(0) || !sc.Used(3) {
		t.Fatal("expected cells 0 and 3 marked used")
	}
	if sc.Used(1) {
		t.Fatal("cell 1 should not be marked used")
	}
	sc.ResetStats()
	if sc.Used(0) || sc.Used(3) {
		t.Fatal("ResetStats must clear the bitmap")
	}
}

func TestSlotframeCounter(t *testing.T) {
	sched := testSchedule(t)
	sc := New(config.RoleGateway, 0, sched)
	n := uint64(len(sched.Cells))

	sc.Tick(0)
	if sc.SlotframeCount() != 0 {
		t.Fatalf("asn 0 must not roll the counter")
	}
	sc.Tick(n)
	if sc.SlotframeCount() != 1 {
		t.Fatalf("got %d want 1 after one full pass", sc.SlotframeCount())
	}
}
