package mari

import (
	"context"
	"math/rand"
	"testing"

	"github.com/marinet/mari/assoc"
	"github.com/marinet/mari/hwtimer/simtimer"
	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/radio/simradio"
	"github.com/marinet/mari/scheduler"
)

func testCells() []scheduler.Cell {
	return []scheduler.Cell{
		{Type: scheduler.Beacon, ChannelOffset: 0},
		{Type: scheduler.SharedUplink, ChannelOffset: 1},
		{Type: scheduler.Downlink, ChannelOffset: 2},
		{Type: scheduler.Uplink, ChannelOffset: 3},
		{Type: scheduler.Uplink, ChannelOffset: 4},
	}
}

const (
	testGatewayID = 0xA0
	testNodeID    = 0xB1
	testNetworkID = 7
)

// pair wires one gateway facade and one node facade onto a shared
// simulated medium and clock, mirroring how an application would assemble
// two Mari instances that can actually hear each other.
type pair struct {
	timer   *simtimer.Timer
	gw      *Mari
	node    *Mari
	gwEvs   []assoc.Event
	nodeEvs []assoc.Event
}

func newPair(t *testing.T) *pair {
	t.Helper()
	timer := simtimer.New(0)
	medium := simradio.NewMedium(timer, nil)

	gwSched, err := scheduler.NewSchedule(1, testCells())
	if err != nil {
		t.Fatal(err)
	}
	nodeSched, err := scheduler.NewSchedule(1, testCells())
	if err != nil {
		t.Fatal(err)
	}

	p := &pair{timer: timer}

	gwCfg := config.Default(config.RoleGateway)
	gwCfg.NetworkID = testNetworkID
	p.gw = New(Deps{
		Config:   gwCfg,
		SelfID:   testGatewayID,
		Schedule: gwSched,
		Radio:    medium.NewDevice(),
		Timer:    timer,
		Rand:     rand.New(rand.NewSource(1)),
		OnEvent:  func(ev assoc.Event) { p.gwEvs = append(p.gwEvs, ev) },
	})

	nodeCfg := config.Default(config.RoleNode)
	nodeCfg.NetworkID = testNetworkID
	nodeCfg.SyncCorrectionScan = 0
	nodeCfg.SyncCorrectionBackgroundScan = 0
	p.node = New(Deps{
		Config:   nodeCfg,
		SelfID:   testNodeID,
		Schedule: nodeSched,
		Radio:    medium.NewDevice(),
		Timer:    timer,
		Rand:     rand.New(rand.NewSource(2)),
		OnEvent:  func(ev assoc.Event) { p.nodeEvs = append(p.nodeEvs, ev) },
	})
	return p
}

func (p *pair) advanceUntilJoined(t *testing.T, budgetUS int64) {
	t.Helper()
	const step = int64(2000)
	var elapsed int64
	for elapsed < budgetUS {
		p.timer.Advance(step)
		elapsed += step
		if p.node.NodeIsConnected() {
			return
		}
	}
	t.Fatalf("node did not join within %d us", budgetUS)
}

func TestFacadeJoinAndDataExchange(t *testing.T) {
	p := newPair(t)
	p.gw.Start()
	p.node.Start()

	// The gateway's random startup delay (spec §4.7) must not prevent it
	// from ever ticking; give it generous headroom before expecting a
	// join.
	p.advanceUntilJoined(t, 300_000)

	if got := p.node.NodeGatewayID(); got != testGatewayID {
		t.Fatalf("NodeGatewayID() = %d, want %d", got, testGatewayID)
	}
	if got := p.gw.GatewayCountNodes(); got != 1 {
		t.Fatalf("GatewayCountNodes() = %d, want 1", got)
	}

	var nodes [4]NodeInfo
	n := p.gw.GatewayGetNodes(nodes[:])
	if n != 1 || nodes[0].NodeID != testNodeID {
		t.Fatalf("GatewayGetNodes() = %v (n=%d), want node %d", nodes[:n], n, testNodeID)
	}

	payload := []byte("hello from facade")
	if err := p.node.NodeTxPayload(payload); err != nil {
		t.Fatalf("NodeTxPayload: %v", err)
	}

	var delivered []byte
	for i := 0; i < 8 && delivered == nil; i++ {
		p.timer.Advance(int64(config.WholeSlotUS))
		for _, ev := range p.gwEvs {
			if ev.Kind == assoc.EventNewPacket && ev.NodeID == testNodeID {
				delivered = ev.Payload
			}
		}
	}
	if string(delivered) != string(payload) {
		t.Fatalf("got payload %q want %q", delivered, payload)
	}

	if err := p.gw.EventLoop(context.Background()); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
}

func TestTxReturnsErrQueueFullWhenRingExhausted(t *testing.T) {
	p := newPair(t)
	for i := 0; i < 64; i++ {
		_ = p.gw.Tx(testNodeID, []byte("x"))
	}
	if err := p.gw.Tx(testNodeID, []byte("overflow")); err != ErrQueueFull {
		t.Fatalf("Tx() = %v, want ErrQueueFull", err)
	}
}

func TestNodeTxPayloadRequiresJoin(t *testing.T) {
	p := newPair(t)
	if err := p.node.NodeTxPayload([]byte("too soon")); err != ErrNotConnected {
		t.Fatalf("NodeTxPayload() = %v, want ErrNotConnected", err)
	}
}
