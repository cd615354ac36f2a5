// Package simradio implements radio.Radio as a deterministic in-memory
// broadcast medium, the loopback stand-in for the specific BLE radio
// peripheral driver the spec treats as external and out of scope. Multiple
// Devices share a Medium; a transmission on a channel is delivered to
// every other Device currently listening on that same channel, with
// timing driven by an injected hwtimer.Timer so tests stay deterministic.
package simradio

import (
	"github.com/marinet/mari/hwtimer"
	"github.com/marinet/mari/radio"
)

var _ radio.Radio = (*Device)(nil)

// DefaultFrameDurationUS is used when a Medium is constructed without an
// explicit duration function; it approximates the BLE 2M PHY air time the
// spec's slot layout budgets for a maximum-size frame (spec §4.5 table).
const DefaultFrameDurationUS = 1020

// Medium is a shared broadcast domain. All Devices created from the same
// Medium can hear each other.
type Medium struct {
	timer           hwtimer.Timer
	devices         []*Device
	frameDurationUS func(frameLen int) int64
}

// NewMedium creates an empty Medium driven by timer. durationFn computes a
// frame's air time from its length; pass nil to use a flat
// DefaultFrameDurationUS regardless of length.
func NewMedium(timer hwtimer.Timer, durationFn func(frameLen int) int64) *Medium {
	if durationFn == nil {
		durationFn = func(int) int64 { return DefaultFrameDurationUS }
	}
	return &Medium{timer: timer, frameDurationUS: durationFn}
}

// Device is one radio attached to a Medium.
type Device struct {
	medium *Medium

	rxChannel  uint8
	listening  bool
	pending    []byte
	pendingSet bool
	lastRSSI   int8

	// txRSSI is the RSSI a receiving Device should report for frames
	// arriving from this Device; simradio has no path-loss model, so it
	// defaults to a fixed strong signal and can be overridden per test.
	txRSSI int8

	onStart func(int64)
	onEnd   func(int64)
}

// NewDevice attaches a new Device to the medium.
func (m *Medium) NewDevice() *Device {
	d := &Device{medium: m, txRSSI: -40}
	m.devices = append(m.devices, d)
	return d
}

// SetTXRSSI overrides the RSSI peers observe for frames sent by d.
func (d *Device) SetTXRSSI(rssi int8) { d.txRSSI = rssi }

// StartTX implements radio.Radio. Every other device listening on channel
// receives a start-of-frame callback immediately and an end-of-frame
// callback, carrying the frame, after the medium's frame duration; the
// sender itself gets only the end-of-frame completion callback.
func (d *Device) StartTX(channel uint8, frame []byte) {
	now := d.medium.timer.Now()
	duration := d.medium.frameDurationUS(len(frame))

	cp := append([]byte(nil), frame...)
	for _, peer := range d.medium.devices {
		if peer == d || !peer.listening || peer.rxChannel != channel {
			continue
		}
		peer := peer
		if peer.onStart != nil {
			d.medium.timer.SetOneshot(now, 0, func(ts int64) { peer.onStart(ts) })
		}
		d.medium.timer.SetOneshot(now, duration, func(ts int64) {
			peer.pending = cp
			peer.pendingSet = true
			peer.lastRSSI = d.txRSSI
			if peer.onEnd != nil {
				peer.onEnd(ts)
			}
		})
	}

	if d.onEnd != nil {
		d.medium.timer.SetOneshot(now, duration, func(ts int64) { d.onEnd(ts) })
	}
}

// StartRX implements radio.Radio.
func (d *Device) StartRX(channel uint8) {
	d.rxChannel = channel
	d.listening = true
}

// Disable implements radio.Radio.
func (d *Device) Disable() {
	d.listening = false
}

// LastRSSI implements radio.Radio.
func (d *Device) LastRSSI() int8 { return d.lastRSSI }

// PendingRX implements radio.Radio.
func (d *Device) PendingRX() bool { return d.pendingSet }

// ReadFrame implements radio.Radio.
func (d *Device) ReadFrame() []byte {
	if !d.pendingSet {
		return nil
	}
	f := d.pending
	d.pending = nil
	d.pendingSet = false
	return f
}

// OnStartOfFrame implements radio.Radio.
func (d *Device) OnStartOfFrame(cb func(int64)) { d.onStart = cb }

// OnEndOfFrame implements radio.Radio.
func (d *Device) OnEndOfFrame(cb func(int64)) { d.onEnd = cb }
