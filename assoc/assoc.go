// Package assoc implements the Mari association finite state machine
// (spec §4.6): scan-and-select, randomised exponential join backoff, the
// network-id filter, gateway membership sweep triggers, and the closed
// event/reason enumerations the facade surfaces to the application.
package assoc

import (
	"fmt"
	"math/rand"

	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/internal/xlog"
)

// State is a node's position in the association FSM.
type State uint8

const (
	Idle State = iota
	Scanning
	Synced
	Joining
	Joined
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scanning:
		return "Scanning"
	case Synced:
		return "Synced"
	case Joining:
		return "Joining"
	case Joined:
		return "Joined"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Reason is the closed enumeration of why a disconnect/leave happened
// (spec §4.6 "Event surface").
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonHandover
	ReasonOutOfSync
	ReasonGatewayFull
	ReasonPeerLostTimeout
	ReasonPeerLostBloom
	ReasonHandoverFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonHandover:
		return "Handover"
	case ReasonOutOfSync:
		return "OutOfSync"
	case ReasonGatewayFull:
		return "GatewayFull"
	case ReasonPeerLostTimeout:
		return "PeerLostTimeout"
	case ReasonPeerLostBloom:
		return "PeerLostBloom"
	case ReasonHandoverFailed:
		return "HandoverFailed"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// EventKind tags the union carried by Event (spec §4.6 "Event surface").
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventNodeJoined
	EventNodeLeft
	EventNewPacket
	EventKeepalive
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventNodeJoined:
		return "NodeJoined"
	case EventNodeLeft:
		return "NodeLeft"
	case EventNewPacket:
		return "NewPacket"
	case EventKeepalive:
		return "Keepalive"
	case EventError:
		return "Error"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is the tagged union the association layer emits towards the
// facade, which forwards it to the application callback.
type Event struct {
	Kind      EventKind
	GatewayID uint64
	NodeID    uint64
	Reason    Reason
	Payload   []byte
}

// Assoc is a node's association state (spec §3 "Association state"). The
// gateway side of the protocol does not run this FSM — a gateway is always
// logically "joined to itself"; it only uses the Reason/Event vocabulary
// via the scheduler's SweepExpired.
type Assoc struct {
	log *xlog.Logger
	rng *rand.Rand

	networkID uint16

	state                   State
	syncedGatewayID         uint64
	syncedNetworkID         uint16
	lastReceivedFromGwASN   uint64
	backoffN                uint8
	backoffSlotsRemaining   uint32
	joinResponseDeadlineUS  int64
	syncedGatewayRemaining  uint8
	pendingDisconnectReason Reason
}

// New creates an Assoc for a node configured to accept beacons from
// networkID (config.NetIDPatternAny accepts any network).
func New(networkID uint16, rng *rand.Rand, log *xlog.Logger) *Assoc {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if log == nil {
		log = xlog.Default()
	}
	return &Assoc{
		log:       log.Module("assoc"),
		rng:       rng,
		networkID: networkID,
		state:     Idle,
	}
}

// State returns the current FSM state.
func (a *Assoc) State() State { return a.state }

// AcceptsNetwork implements spec §4.6 "Network-id filter": a node whose
// configured network id is NetIDPatternAny accepts any gateway; otherwise
// only an exact match passes, and the beacon must be dropped before scan
// table insertion.
func (a *Assoc) AcceptsNetwork(beaconNetworkID uint16) bool {
	return a.networkID == config.NetIDPatternAny || a.networkID == beaconNetworkID
}

// StartScan drives Idle -> Scanning.
func (a *Assoc) StartScan() {
	if a.state != Idle {
		return
	}
	a.state = Scanning
	a.log.Debug("scan started")
}

// drawBackoff redraws backoffSlotsRemaining as rand8() mod 2^backoffN (spec
// §4.6 "Randomised exponential backoff").
func (a *Assoc) drawBackoff() {
	mask := uint32(1)<<a.backoffN - 1
	a.backoffSlotsRemaining = uint32(a.rng.Intn(256)) & mask
}

// EnterSynced drives Scanning -> Synced after a successful sync_to_gateway,
// recording the selected gateway and resetting the backoff counter to its
// minimum.
func (a *Assoc) EnterSynced(gatewayID uint64, networkID uint16, remainingCapacity uint8) {
	a.state = Synced
	a.syncedGatewayID = gatewayID
	a.syncedNetworkID = networkID
	a.syncedGatewayRemaining = remainingCapacity
	a.backoffN = config.BackoffNMin
	a.drawBackoff()
	a.log.Info("synced", "gateway_id", gatewayID, "backoff_wait", a.backoffSlotsRemaining)
}

// RestartScan is the "Scanning -> Scanning (restart)" self-loop of spec
// §4.6 for a failed select or failed sync.
func (a *Assoc) RestartScan() {
	a.state = Scanning
}

// TickSharedUplink is called once per SharedUplink slot while Synced; it
// decrements the backoff counter and reports whether this slot is the one
// that should carry a join-request (spec §4.6: "when 0 and state==Synced,
// the queue returns the join-request and association transitions to
// Joining").
func (a *Assoc) TickSharedUplink() (readyToJoin bool) {
	if a.state != Synced {
		return false
	}
	if a.backoffSlotsRemaining > 0 {
		a.backoffSlotsRemaining--
		return false
	}
	return true
}

// EnterJoining drives Synced -> Joining once the queue has actually sent
// the join-request (the queue, not Assoc, decides whether a frame went
// out; see package queue). deadlineUS is now + JoiningTimeoutUS().
func (a *Assoc) EnterJoining(nowUS int64) {
	a.state = Joining
	a.joinResponseDeadlineUS = nowUS + config.JoiningTimeoutUS()
	a.log.Debug("join-request sent", "deadline_us", a.joinResponseDeadlineUS)
}

// EnterJoined drives Joining -> Joined on a received join-response.
func (a *Assoc) EnterJoined(asn uint64) {
	a.state = Joined
	a.lastReceivedFromGwASN = asn
	a.log.Info("joined", "gateway_id", a.syncedGatewayID)
}

// JoiningTimedOut implements the Joining timeout branch of spec §4.6: with
// remaining gateway capacity, back off further, redraw the wait, and
// remain Synced so the queue re-enqueues a join-request; with no capacity,
// give up back to Idle.
func (a *Assoc) JoiningTimedOut() {
	if a.syncedGatewayRemaining > 0 {
		if a.backoffN < config.BackoffNMax {
			a.backoffN++
		}
		a.drawBackoff()
		a.state = Synced
		a.log.Debug("join response timed out, retrying", "backoff_n", a.backoffN)
		return
	}
	a.state = Idle
	a.log.Debug("join response timed out, gateway full, giving up")
}

// Disconnect drives Joined (or Synced/Joining) back to Idle for the given
// reason (spec §7 "All surfaced as Disconnected{reason} and trigger a
// return to Scanning"). Callers transition onward to Scanning themselves
// once ready to re-scan; Disconnect only clears synced state.
func (a *Assoc) Disconnect(reason Reason) Event {
	gw := a.syncedGatewayID
	a.state = Idle
	a.syncedGatewayID = 0
	a.syncedNetworkID = 0
	a.backoffSlotsRemaining = 0
	a.pendingDisconnectReason = ReasonNone
	a.log.Info("disconnected", "gateway_id", gw, "reason", reason)
	return Event{Kind: EventDisconnected, GatewayID: gw, Reason: reason}
}

// CheckSyncedTimeout implements the "Synced/Joining -- synced-timeout (5s)
// --> Idle" transition: returns true (and transitions to Idle) if the node
// has spent more than SyncedTimeoutUS in Synced or Joining without
// completing the handshake.
func (a *Assoc) CheckSyncedTimeout(syncedAtUS, nowUS int64) bool {
	if a.state != Synced && a.state != Joining {
		return false
	}
	if nowUS-syncedAtUS <= config.SyncedTimeoutUS {
		return false
	}
	a.state = Idle
	a.log.Debug("synced timeout, returning to idle")
	return true
}

// CheckJoiningDeadline reports whether a Joining node's join-response
// deadline has passed.
func (a *Assoc) CheckJoiningDeadline(nowUS int64) bool {
	return a.state == Joining && nowUS >= a.joinResponseDeadlineUS
}

// ReceivedFromSyncedGateway updates last-received bookkeeping on any frame
// received from the currently synced gateway while Joined.
func (a *Assoc) ReceivedFromSyncedGateway(asn uint64) {
	a.lastReceivedFromGwASN = asn
}

// SyncedGatewayID returns the gateway this node is synced/joined to, or 0.
func (a *Assoc) SyncedGatewayID() uint64 { return a.syncedGatewayID }

// IsJoined reports whether the node is fully joined.
func (a *Assoc) IsJoined() bool { return a.state == Joined }

// BackoffN returns the current exponential-backoff shift value, exposed
// for diagnostics and tests (spec §8 scenario S6).
func (a *Assoc) BackoffN() uint8 { return a.backoffN }

// BackoffSlotsRemaining returns the countdown before the next join attempt.
func (a *Assoc) BackoffSlotsRemaining() uint32 { return a.backoffSlotsRemaining }
