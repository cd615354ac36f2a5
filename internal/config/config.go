// Package config holds the compile-time tunables of the Mari protocol (spec
// §6) as typed Go constants, plus the small set of values that are
// legitimately runtime-selectable: role, network id, schedule choice, and
// the platform-calibrated timing offsets measured during bring-up.
package config

import "time"

// Compile-time tunables. These mirror the constants a C build would expose
// as #define's; in Go they are exported constants so every component can
// reference a single source of truth.
const (
	// NCellsMax is the largest number of cells a schedule may declare.
	NCellsMax = 149

	// PacketMaxSize is the largest frame, header included, the radio will
	// carry (BLE 2M PHY payload limit used by this protocol).
	PacketMaxSize = 255

	// MaxScanList bounds the number of gateways the scan table tracks.
	MaxScanList = 5

	// ScanOldUS is the freshness window (microseconds) used by scan
	// selection: samples older than this relative to scan end are ignored.
	ScanOldUS = 500_000

	// HandoverRSSIHysteresis is the minimum RSSI gain (dB) a candidate
	// gateway must show over the current one before a handover is
	// considered.
	HandoverRSSIHysteresis = 24

	// HandoverMinIntervalUS is the minimum time (microseconds) that must
	// elapse since the last sync before a handover may occur.
	HandoverMinIntervalUS = 5_000_000

	// BackoffNMin is the smallest exponential-backoff shift value.
	BackoffNMin = 4

	// BackoffNMax is the largest exponential-backoff shift value.
	BackoffNMax = 6

	// AutoUplinkKeepaliveDefault is the default for Config.AutoUplinkKeepalive.
	AutoUplinkKeepaliveDefault = true

	// EnableBackgroundScanDefault is the default for Config.EnableBackgroundScan.
	EnableBackgroundScanDefault = true

	// MaxSlotframesNoRX is the number of slotframes a gateway will wait
	// without hearing from an assigned node before sweeping its cell.
	MaxSlotframesNoRX = 5

	// BloomM is the bit width of the membership bloom filter.
	BloomM = 1024

	// BloomK is the number of hash functions used by the bloom filter.
	BloomK = 2

	// BloomSalt XORs the node id before the second hash is computed.
	BloomSalt = 0x5bd1e995

	// JoinResponseCellByteLen is the single extra byte a Join-Response
	// frame appends to the common header.
	JoinResponseCellByteLen = 1
)

// Slot timing (spec §4.5), all in microseconds on the BLE 2M PHY.
const (
	TxOffsetUS  = 400
	RxGuardUS   = 140
	EndGuardUS  = 240
	PacketTOAUS = 1020
	PacketPadUS = 120

	// RxOffsetUS is when the radio is armed to listen, ahead of TxOffsetUS
	// by RxGuardUS so the receiver is live before the sender could start.
	RxOffsetUS = TxOffsetUS - RxGuardUS

	// WholeSlotUS is the total duration of one slot.
	WholeSlotUS = TxOffsetUS + PacketTOAUS + PacketPadUS + EndGuardUS

	// TxMaxUS bounds how long a TX is allowed to take before the MAC
	// forcibly aborts it (guards `tie1`).
	TxMaxUS = PacketTOAUS + PacketPadUS

	// RxMaxUS bounds how long an armed RX may run before the MAC forcibly
	// aborts it (guards `rie2`).
	RxMaxUS = PacketTOAUS + PacketPadUS + EndGuardUS

	// DriftToleranceUS is the maximum |drift| the MAC will silently
	// correct; beyond this the node declares OutOfSync.
	DriftToleranceUS = 100

	// CPUPeriphOffsetUS is a measured constant: the fixed latency between
	// a timer compare match and the radio actually beginning
	// transmission, used to compute the expected start-of-frame
	// timestamp for drift correction.
	CPUPeriphOffsetUS = 59
)

// JoiningTimeout is 1.5x the whole slot duration (spec §4.6).
func JoiningTimeoutUS() int64 {
	return WholeSlotUS + WholeSlotUS/2
}

// SyncedTimeout is the maximum time a node may remain in Synced or Joining
// without completing the join handshake before giving up and returning to
// Idle (spec §4.6 state diagram).
const SyncedTimeoutUS = 5_000_000

// Role distinguishes a Mari instance's position in the star topology.
type Role uint8

const (
	RoleNode Role = iota
	RoleGateway
)

func (r Role) String() string {
	if r == RoleGateway {
		return "gateway"
	}
	return "node"
}

// NetIDPatternAny is the network id a node may configure to accept beacons
// from any network (spec §4.6 "Network-id filter").
const NetIDPatternAny uint16 = 0

// Config holds the runtime-selectable parameters of a Mari instance. The
// zero value is not usable; construct with Default() and override fields as
// needed.
type Config struct {
	Role      Role
	NetworkID uint16

	// AutoUplinkKeepalive enables synthesising a keepalive frame on an
	// owned Uplink cell when the transmit queue is empty (spec §4.2).
	// The original firmware hard-codes this on; Go callers get a runtime
	// toggle instead (see SPEC_FULL.md Open Question decisions).
	AutoUplinkKeepalive bool

	// EnableBackgroundScan enables opportunistic scanning for stronger
	// gateways during Sleep slots while Joined (spec §4.5).
	EnableBackgroundScan bool

	// SyncCorrectionScan and SyncCorrectionBackgroundScan are the two
	// platform-calibrated magic constants from spec §4.5's
	// sync_to_gateway, measured on the reference hardware. They are
	// configuration, not protocol, and implementers on different
	// radio/timer hardware must re-measure them.
	SyncCorrectionScan           time.Duration
	SyncCorrectionBackgroundScan time.Duration
}

// Default returns sane defaults for the given role.
func Default(role Role) Config {
	return Config{
		Role:                         role,
		NetworkID:                    NetIDPatternAny,
		AutoUplinkKeepalive:          AutoUplinkKeepaliveDefault,
		EnableBackgroundScan:         EnableBackgroundScanDefault,
		SyncCorrectionScan:          541 * time.Microsecond,
		SyncCorrectionBackgroundScan: 206 * time.Microsecond,
	}
}
