package main

import (
	"flag"
	"fmt"
	"strconv"
)

// flagSet wraps flag.FlagSet to add support for uint64 flags, which the
// standard library's flag package does not provide directly.
type flagSet struct {
	*flag.FlagSet
}

func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}

func (fs *flagSet) Uint64Var(p *uint64, name string, value uint64, usage string) {
	fs.FlagSet.Var(&uint64Value{p: p}, name, usage)
	*p = value
}

type uint64Value struct{ p *uint64 }

func (v *uint64Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatUint(*v.p, 10)
}

func (v *uint64Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %q", s)
	}
	*v.p = n
	return nil
}

// config holds the node demo's resolved command-line configuration.
type config struct {
	SelfID     uint64
	NetworkID  uint64
	ScheduleID uint64
	MaxNodes   uint64
	SlotFrames uint64
	Verbosity  int
}

func defaultConfig() config {
	return config{
		SelfID:     0xB1,
		NetworkID:  0,
		ScheduleID: 1,
		MaxNodes:   8,
		SlotFrames: 20,
		Verbosity:  3,
	}
}

func parseFlags(args []string) (config, bool, int) {
	cfg := defaultConfig()
	fs := newCustomFlagSet("mari-node")
	fs.Uint64Var(&cfg.SelfID, "id", cfg.SelfID, "node device id")
	fs.Uint64Var(&cfg.NetworkID, "netid", cfg.NetworkID, "network id to accept (0 = NET_ID_PATTERN_ANY)")
	fs.Uint64Var(&cfg.ScheduleID, "schedule", cfg.ScheduleID, "schedule id expected from the gateway's beacon")
	fs.Uint64Var(&cfg.MaxNodes, "maxnodes", cfg.MaxNodes, "number of dedicated uplink cells in the schedule")
	fs.Uint64Var(&cfg.SlotFrames, "slotframes", cfg.SlotFrames, "number of slotframes to run before exiting")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-4 (0=silent, 4=debug)")

	if err := fs.Parse(args); err != nil {
		return cfg, true, 2
	}
	return cfg, false, 0
}
