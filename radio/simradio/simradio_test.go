package simradio

import (
	"bytes"
	"testing"

	"github.com/marinet/mari/hwtimer/simtimer"
)

func TestTXDeliversToListeningPeerOnSameChannel(t *testing.T) {
	tm := simtimer.New(0)
	medium := NewMedium(tm, nil)
	tx := medium.NewDevice()
	rx := medium.NewDevice()

	var sawStart, sawEnd bool
	rx.OnStartOfFrame(func(int64) { sawStart = true })
	rx.OnEndOfFrame(func(int64) { sawEnd = true })
	rx.StartRX(37)

	tx.StartTX(37, []byte("hello"))
	tm.Advance(DefaultFrameDurationUS)

	if !sawStart || !sawEnd {
		t.Fatalf("expected both callbacks, got start=%v end=%v", sawStart, sawEnd)
	}
	if !rx.PendingRX() {
		t.Fatal("expected a pending frame")
	}
	if got := rx.ReadFrame(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q want hello", got)
	}
	if rx.PendingRX() {
		t.Fatal("ReadFrame must clear the pending latch")
	}
}

func TestTXIgnoresPeerOnDifferentChannel(t *testing.T) {
	tm := simtimer.New(0)
	medium := NewMedium(tm, nil)
	tx := medium.NewDevice()
	rx := medium.NewDevice()
	rx.StartRX(38)

	tx.StartTX(37, []byte("hello"))
	tm.Advance(DefaultFrameDurationUS)

	if rx.PendingRX() {
		t.Fatal("peer on a different channel must not receive the frame")
	}
}

func TestDisabledPeerDoesNotReceive(t *testing.T) {
	tm := simtimer.New(0)
	medium := NewMedium(tm, nil)
	tx := medium.NewDevice()
	rx := medium.NewDevice()
	rx.StartRX(37)
	rx.Disable()

	tx.StartTX(37, []byte("hello"))
	tm.Advance(DefaultFrameDurationUS)

	if rx.PendingRX() {
		t.Fatal("disabled peer must not receive the frame")
	}
}

func TestSenderGetsEndOfFrameOnly(t *testing.T) {
	tm := simtimer.New(0)
	medium := NewMedium(tm, nil)
	tx := medium.NewDevice()

	var starts, ends int
	tx.OnStartOfFrame(func(int64) { starts++ })
	tx.OnEndOfFrame(func(int64) { ends++ })

	tx.StartTX(37, []byte("hello"))
	tm.Advance(DefaultFrameDurationUS)

	if starts != 0 || ends != 1 {
		t.Fatalf("got starts=%d ends=%d want 0/1", starts, ends)
	}
}
