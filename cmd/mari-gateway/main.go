// Command mari-gateway is a runnable demonstration of a Mari gateway: it
// wires a mari.Mari facade to a simradio/simtimer pair (the deterministic
// in-memory stand-ins for the real radio/timer peripheral drivers, which
// are out of scope per spec §2) and drives the virtual clock forward,
// logging every protocol event as it fires. It has no peer to talk to on
// its own simulated medium; see the mac and mari package tests for an
// end-to-end gateway+node exchange. This binary exists to show how an
// application wires the facade together, not to demonstrate protocol
// behavior under load.
//
// Usage:
//
//	mari-gateway [flags]
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
		fmt.Fprintf(os.Stderr, "mari-gateway: %v\n", err)
		return 1
	}

	timer := simtimer.New(0)
	medium := simradio.NewMedium(timer, nil)

	gwCfg := config.Default(config.RoleGateway)
	gwCfg.NetworkID = uint16(cfg.NetworkID)

	f := mari.New(mari.Deps{
		Config:   gwCfg,
		SelfID:   cfg.SelfID,
		Schedule: sched,
		Radio:    medium.NewDevice(),
		Timer:    timer,
		Rand:     rand.New(rand.NewSource(int64(cfg.SelfID))),
		Log:      log,
		OnEvent: func(ev assoc.Event) {
			log.Info("event", "kind", ev.Kind.String(), "node_id", ev.NodeID, "reason", ev.Reason.String())
		},
	})
	f.Start()

	log.Info("gateway started", "id", fmt.Sprintf("0x%x", cfg.SelfID), "schedule_id", cfg.ScheduleID, "max_nodes", cfg.MaxNodes)

	totalUS := int64(cfg.SlotFrames) * int64(len(sched.Cells)) * int64(config.WholeSlotUS)
	const step = int64(config.WholeSlotUS)
	for elapsed := int64(0); elapsed < totalUS; elapsed += step {
		timer.Advance(step)
	}

	log.Info("gateway run complete", "asn", f.ASN(), "connected_nodes", f.GatewayCountNodes())
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

// buildSchedule constructs a small demonstration schedule: one beacon
// slot, one shared-uplink slot, one downlink slot, and maxNodes dedicated
// uplink slots, matching the cell-role vocabulary of spec §3.
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
