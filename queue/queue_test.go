package queue

import (
	"bytes"
	"testing"

	"github.com/marinet/mari/scheduler"
)

func TestAddNextFIFO(t *testing.T) {
	q := New(DefaultSize, FrameSources{})
	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		if !q.Add(f) {
			t.Fatalf("Add(%q) failed on a fresh queue", f)
		}
	}
	for _, want := range frames {
		got, kind := q.Next(scheduler.Uplink, false, false, nil, false)
		if kind != KindData {
			t.Fatalf("got kind %v want KindData", kind)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q want %q", got, want)
		}
	}
	if _, kind := q.Next(scheduler.Uplink, false, false, nil, false); kind != KindNone {
		t.Fatalf("expected empty queue to yield KindNone, got %v", kind)
	}
}

func TestAddFailsWhenFull(t *testing.T) {
	q := New(4, FrameSources{})
	for i := 0; i < 4; i++ {
		if !q.Add([]byte{byte(i)}) {
			t.Fatalf("Add %d should have succeeded", i)
		}
	}
	if q.Add([]byte{0xFF}) {
		t.Fatal("Add on a full ring should fail silently")
	}
	if q.Len() != 4 {
		t.Fatalf("got len %d want 4", q.Len())
	}
}

func TestGatewayDownlinkPrefersJoinHolderOverRing(t *testing.T) {
	q := New(DefaultSize, FrameSources{})
	q.Add([]byte("data"))
	q.SetJoinPacket([]byte("join-response"))

	got, kind := q.Next(scheduler.Downlink, true, false, nil, false)
	if kind != KindJoinHolder || !bytes.Equal(got, []byte("join-response")) {
		t.Fatalf("got %q/%v want join-response/KindJoinHolder", got, kind)
	}

	got, kind = q.Next(scheduler.Downlink, true, false, nil, false)
	if kind != KindData || !bytes.Equal(got, []byte("data")) {
		t.Fatalf("got %q/%v want data/KindData once holder is drained", got, kind)
	}
}

func TestNodeSharedUplinkOnlyCarriesJoinRequest(t *testing.T) {
	q := New(DefaultSize, FrameSources{})
	q.Add([]byte("data"))

	if _, kind := q.Next(scheduler.SharedUplink, false, false, []byte("join"), false); kind != KindNone {
		t.Fatal("not ready to join: shared-uplink slot must stay idle")
	}
	got, kind := q.Next(scheduler.SharedUplink, false, true, []byte("join"), false)
	if kind != KindJoinHolder || !bytes.Equal(got, []byte("join")) {
		t.Fatalf("got %q/%v want join/KindJoinHolder", got, kind)
	}
	// The ring is untouched by a shared-uplink join-request.
	if q.Len() != 1 {
		t.Fatalf("got len %d want 1", q.Len())
	}
}

func TestNodeUplinkFallsBackToKeepalive(t *testing.T) {
	calls := 0
	q := New(DefaultSize, FrameSources{
		BuildKeepalive: func() []byte { calls++; return []byte("keepalive") },
	})
	got, kind := q.Next(scheduler.Uplink, false, false, nil, true)
	if kind != KindKeepalive || !bytes.Equal(got, []byte("keepalive")) || calls != 1 {
		t.Fatalf("got %q/%v calls=%d want keepalive/KindKeepalive/1", got, kind, calls)
	}

	if _, kind := q.Next(scheduler.Uplink, false, false, nil, false); kind != KindNone {
		t.Fatal("without autoKeepalive, empty uplink must stay idle")
	}
}

func TestGatewayBeaconSlotUsesBuildBeacon(t *testing.T) {
	calls := 0
	q := New(DefaultSize, FrameSources{
		BuildBeacon: func() []byte { calls++; return []byte("beacon") },
	})
	got, kind := q.Next(scheduler.Beacon, true, false, nil, false)
	if kind != KindBeacon || !bytes.Equal(got, []byte("beacon")) || calls != 1 {
		t.Fatalf("got %q/%v calls=%d want beacon/KindBeacon/1", got, kind, calls)
	}
}

func TestResetClearsRingAndJoinHolder(t *testing.T) {
	q := New(DefaultSize, FrameSources{})
	q.Add([]byte("data"))
	q.SetJoinPacket([]byte("join"))
	q.Reset()

	if q.Len() != 0 {
		t.Fatalf("got len %d want 0 after Reset", q.Len())
	}
	if _, kind := q.Next(scheduler.Downlink, true, false, nil, false); kind != KindNone {
		t.Fatal("join holder should be empty after Reset")
	}
}

func TestNextGivesUpOnContention(t *testing.T) {
	q := New(DefaultSize, FrameSources{})
	q.Add([]byte("data"))

	q.mu.Lock()
	_, kind := q.Next(scheduler.Uplink, false, false, nil, false)
	q.mu.Unlock()

	if kind != KindNone {
		t.Fatalf("got %v want KindNone while mutex held by a producer", kind)
	}
}
