// Package scan implements the Mari scan table and handover selection
// (spec §4.3): a bounded set of recently-heard gateways, each with a
// per-advertising-channel RSSI history, and the averaging rule used to pick
// a gateway to sync to.
package scan

import (
	"github.com/marinet/mari/internal/config"
	"github.com/marinet/mari/packet"
)

// numAdvChannels is the number of BLE advertising channels a gateway's
// beacons can be heard on (spec §3 "three RSSI samples keyed by
// advertising-channel index").
const numAdvChannels = 3

// Sample is one beacon reception on a single advertising channel.
type Sample struct {
	Valid     bool
	RSSI      int8
	Timestamp int64 // microseconds, same clock as the MAC's slot timer
	ASN       uint64
	Header    packet.BeaconSummary
}

// entry is one occupied row of the scan table: a gateway and its per-channel
// sample history.
type entry struct {
	gatewayID uint64
	channels  [numAdvChannels]Sample
}

func (e *entry) inUse() bool { return e.gatewayID != 0 }

// latest returns the most recently captured sample across all channels, and
// whether any sample exists at all.
func (e *entry) latest() (Sample, bool) {
	var best Sample
	found := false
	for _, s := range e.channels {
		if !s.Valid {
			continue
		}
		if !found || s.Timestamp > best.Timestamp {
			best = s
			found = true
		}
	}
	return best, found
}

// Table is a bounded scan table (spec §4.3), sized MaxScanList entries.
type Table struct {
	entries [config.MaxScanList]entry
}

// advChannelIndex maps a physical advertising channel (37, 38, or 39) to a
// 0..2 slot index.
func advChannelIndex(channel uint8) int {
	return int(channel) % numAdvChannels
}

// Add records a beacon reception (spec §4.3 "add"):
//  1. If the table already tracks beacon.Src, overwrite that gateway's
//     sample for this advertising channel.
//  2. Else, occupy the first empty row.
//  3. Else, evict whichever row's latest sample is oldest.
func (t *Table) Add(hdr packet.BeaconSummary, rssi int8, channel uint8, ts int64, asn uint64) {
	ci := advChannelIndex(channel)
	sample := Sample{Valid: true, RSSI: rssi, Timestamp: ts, ASN: asn, Header: hdr}

	for i := range t.entries {
		if t.entries[i].inUse() && t.entries[i].gatewayID == hdr.Src {
			t.entries[i].channels[ci] = sample
			return
		}
	}

	for i := range t.entries {
		if !t.entries[i].inUse() {
			t.entries[i] = entry{gatewayID: hdr.Src}
			t.entries[i].channels[ci] = sample
			return
		}
	}

	oldest := -1
	var oldestTS int64
	for i := range t.entries {
		last, ok := t.entries[i].latest()
		ts := int64(0)
		if ok {
			ts = last.Timestamp
		}
		if oldest == -1 || ts < oldestTS {
			oldest = i
			oldestTS = ts
		}
	}
	t.entries[oldest] = entry{gatewayID: hdr.Src}
	t.entries[oldest].channels[ci] = sample
}

// ChannelInfo is what Select returns: the chosen gateway's latest beacon
// summary and the average RSSI that won the selection.
type ChannelInfo struct {
	GatewayID uint64
	AvgRSSI   float64
	Beacon    packet.BeaconSummary
	Timestamp int64
}

// Select implements spec §4.3 "select": for each occupied entry, average
// the samples whose timestamp lies within [scanStartedTS, scanEndedTS] and
// is no older than ScanOldUS relative to scanEndedTS; pick the entry with
// the highest average, breaking ties by most recent sample. Returns false
// if no entry has any sample inside the freshness window.
func (t *Table) Select(scanStartedTS, scanEndedTS int64) (ChannelInfo, bool) {
	best := ChannelInfo{}
	bestLatest := int64(0)
	found := false

	for i := range t.entries {
		e := &t.entries[i]
		if !e.inUse() {
			continue
		}
		var sum float64
		var n int
		var latestTS int64
		var latestSample Sample
		for _, s := range e.channels {
			if !s.Valid {
				continue
			}
			if s.Timestamp < scanStartedTS {
				continue
			}
			if scanEndedTS-s.Timestamp > config.ScanOldUS {
				continue
			}
			sum += float64(s.RSSI)
			n++
			if s.Timestamp > latestTS {
				latestTS = s.Timestamp
				latestSample = s
			}
		}
		if n == 0 {
			continue
		}
		avg := sum / float64(n)

		better := !found
		if found {
			if avg > best.AvgRSSI {
				better = true
			} else if avg == best.AvgRSSI && latestTS > bestLatest {
				better = true
			}
		}
		if better {
			best = ChannelInfo{
				GatewayID: e.gatewayID,
				AvgRSSI:   avg,
				Beacon:    latestSample.Header,
				Timestamp: latestSample.Timestamp,
			}
			bestLatest = latestTS
			found = true
		}
	}
	return best, found
}

// AverageFor computes the same windowed average as Select, but for one
// specific gateway id rather than picking the best. Used to look up the
// currently-synced gateway's own recent RSSI for the handover comparison.
func (t *Table) AverageFor(gatewayID uint64, scanStartedTS, scanEndedTS int64) (float64, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.inUse() || e.gatewayID != gatewayID {
			continue
		}
		var sum float64
		var n int
		for _, s := range e.channels {
			if !s.Valid {
				continue
			}
			if s.Timestamp < scanStartedTS {
				continue
			}
			if scanEndedTS-s.Timestamp > config.ScanOldUS {
				continue
			}
			sum += float64(s.RSSI)
			n++
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	}
	return 0, false
}

// ShouldHandover implements the handover decision of spec §4.3: accept
// candidate over the current gateway iff it is a different gateway, its
// RSSI beats the current one by at least HandoverRSSIHysteresis dB, and at
// least HandoverMinIntervalUS has elapsed since the last sync.
func ShouldHandover(candidate ChannelInfo, currentGatewayID uint64, currentRSSI float64, usSinceLastSync int64) bool {
	if candidate.GatewayID == currentGatewayID {
		return false
	}
	if candidate.AvgRSSI < currentRSSI+config.HandoverRSSIHysteresis {
		return false
	}
	if usSinceLastSync < config.HandoverMinIntervalUS {
		return false
	}
	return true
}

// Reset empties the table. The MAC does not call it; stale entries drop
// out of selection through the ScanOldUS freshness window instead.
func (t *Table) Reset() {
	*t = Table{}
}
