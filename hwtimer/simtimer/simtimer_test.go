package simtimer

import "testing"

func TestOneshotFiresAtRefPlusOffset(t *testing.T) {
	tm := New(1000)
	var fired int64 = -1
	tm.SetOneshot(tm.Now(), 500, func(ts int64) { fired = ts })
	tm.Advance(499)
	if fired != -1 {
		t.Fatal("fired too early")
	}
	tm.Advance(1)
	if fired != 1500 {
		t.Fatalf("got %d want 1500", fired)
	}
}

func TestPeriodicReschedules(t *testing.T) {
	tm := New(0)
	var count int
	tm.SetPeriodic(100, func(int64) { count++ })
	tm.Advance(350)
	if count != 3 {
		t.Fatalf("got %d want 3", count)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	tm := New(0)
	fired := false
	h := tm.SetOneshot(0, 100, func(int64) { fired = true })
	tm.Cancel(h)
	tm.Advance(200)
	if fired {
		t.Fatal("cancelled callback must not fire")
	}
}

func TestAdjustShiftsPendingFireTime(t *testing.T) {
	tm := New(0)
	var got int64
	h := tm.SetOneshot(0, 100, func(ts int64) { got = ts })
	tm.Adjust(h, 25)
	tm.Advance(200)
	if got != 125 {
		t.Fatalf("got %d want 125", got)
	}
}

func TestOrderingWhenMultipleFireAtOnce(t *testing.T) {
	tm := New(0)
	var order []string
	tm.SetOneshot(0, 50, func(int64) { order = append(order, "a") })
	tm.SetOneshot(0, 50, func(int64) { order = append(order, "b") })
	tm.Advance(50)
	if len(order) != 2 {
		t.Fatalf("got %d callbacks want 2", len(order))
	}
	if order[0] != "a" || order[1] != "b" {
		t.Fatalf("got order %v want [a b]", order)
	}
}
