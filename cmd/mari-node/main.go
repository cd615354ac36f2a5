// Command mari-node is a runnable demonstration of a Mari node: it wires a
// mari.Mari facade to a simradio/simtimer pair and drives the virtual
// clock forward, logging every protocol event as it fires. Run on its own
// simulated medium it has no gateway to hear, so it will cycle through
// Scanning indefinitely — that alone demonstrates the scan-mode timing in
// spec §4.5. See the mac and mari package tests for an end-to-end
// gateway+node exchange on a shared medium.
//
// Usage:
//
//	mari-node [flags]
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/marinet/mari/assoc"
	"github.com/marinet/mari/hwtimer/simtimer"
	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/internal/xlog"
	"github.com/marinet/mari/mari"
	"github.com/marinet/mari/radio/simradio"
	"github.com/marinet/mari/scheduler"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	log := xlog.New(verbosityToLevel(cfg.Verbosity))
	xlog.SetDefault(log)

	sched, err := buildSchedule(uint8(cfg.ScheduleID), int(cfg.MaxNodes))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mari-node: %v\n", err)
		return 1
	}

	timer := simtimer.New(0)
	medium := simradio.NewMedium(timer, nil)

	nodeCfg := config.Default(config.RoleNode)
	nodeCfg.NetworkID = uint16(cfg.NetworkID)

	f := mari.New(mari.Deps{
		Config:   nodeCfg,
		SelfID:   cfg.SelfID,
		Schedule: sched,
		Radio:    medium.NewDevice(),
		Timer:    timer,
		Rand:     rand.New(rand.NewSource(int64(cfg.SelfID))),
		Log:      log,
		OnEvent: func(ev assoc.Event) {
			log.Info("event", "kind", ev.Kind.String(), "gateway_id", ev.GatewayID, "reason", ev.Reason.String())
		},
	})
	f.Start()

	log.Info("node started", "id", fmt.Sprintf("0x%x", cfg.SelfID))

	totalUS := int64(cfg.SlotFrames) * int64(len(sched.Cells)) * int64(config.WholeSlotUS)
	const step = int64(config.WholeSlotUS)
	for elapsed := int64(0); elapsed < totalUS; elapsed += step {
		timer.Advance(step)
	}

	log.Info("node run complete", "connected", f.NodeIsConnected(), "gateway_id", fmt.Sprintf("0x%x", f.NodeGatewayID()))
	return 0
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.Level(100) // effectively silent
	case v == 1:
		return slog.LevelError
	case v == 2:
		return slog.LevelWarn
	case v == 3:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// buildSchedule mirrors mari-gateway's schedule layout so the two demo
// binaries would interoperate if pointed at the same simulated medium.
func buildSchedule(id uint8, maxNodes int) (*scheduler.Schedule, error) {
	cells := []scheduler.Cell{
		{Type: scheduler.Beacon, ChannelOffset: 0},
		{Type: scheduler.SharedUplink, ChannelOffset: 1},
		{Type: scheduler.Downlink, ChannelOffset: 2},
	}
	for i := 0; i < maxNodes; i++ {
		cells = append(cells, scheduler.Cell{Type: scheduler.Uplink, ChannelOffset: uint8(3 + i)})
	}
	return scheduler.NewSchedule(id, cells)
}
