// Package radio defines the narrow interface the MAC engine needs from a
// radio peripheral (spec §2 "Radio abstraction", explicitly out of scope as
// a concrete driver): start a transmit, start a receive, disable, and two
// timestamped callbacks per frame. The specific peripheral driver is
// replaceable glue; simradio provides a deterministic in-memory stand-in
// for tests and the example binaries.
package radio

// Radio is the narrow surface the MAC engine drives. Implementations must
// invoke the registered start-of-frame and end-of-frame callbacks exactly
// once per frame attempt, carrying a microsecond timestamp captured as
// close to the hardware event as possible.
type Radio interface {
	// StartTX begins transmitting frame on channel. The end-of-frame
	// callback fires once the frame has gone out.
	StartTX(channel uint8, frame []byte)

	// StartRX arms the receiver on channel. Start-of-frame fires when a
	// preamble is detected; end-of-frame fires when the frame (or a
	// receive timeout local to the peripheral) completes.
	StartRX(channel uint8)

	// Disable turns the radio off immediately. Safe to call at any time,
	// including when neither TX nor RX is in progress (spec §5 "guards
	// ensure it is always disabled by the end of a slot").
	Disable()

	// LastRSSI reports the RSSI of the most recently received frame.
	LastRSSI() int8

	// PendingRX reports whether a fully received frame is waiting to be
	// read (spec §2 "pending RX latch").
	PendingRX() bool

	// ReadFrame returns the pending received frame and clears the latch.
	// Returns nil if PendingRX is false.
	ReadFrame() []byte

	// OnStartOfFrame registers the callback invoked at the start-of-frame
	// event. Only one callback is kept; registering again replaces it.
	OnStartOfFrame(cb func(tsUS int64))

	// OnEndOfFrame registers the callback invoked at the end-of-frame
	// event (successful RX, successful TX completion, or a local
	// peripheral receive timeout with no frame).
	OnEndOfFrame(cb func(tsUS int64))
}
