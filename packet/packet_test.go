package packet

import (
	"bytes"
	"testing"
)

func TestHeaderFrameRoundTrip(t *testing.T) {
	h := Header{
		Version:   ProtocolVersion,
		NetworkID: 0x1234,
		Dst:       Broadcast,
		Src:       0xAABBCCDDEEFF0011,
		RSSI:      -42,
	}

	t.Run("JoinRequest", func(t *testing.T) {
		got, err := ParseJoinRequest(BuildJoinRequest(h))
		if err != nil {
			t.Fatal(err)
		}
		want := h
		want.Type = TypeJoinRequest
		if got.Header != want {
			t.Fatalf("got %+v want %+v", got.Header, want)
		}
	})

	t.Run("Keepalive", func(t *testing.T) {
		got, err := ParseKeepalive(BuildKeepalive(h))
		if err != nil {
			t.Fatal(err)
		}
		want := h
		want.Type = TypeKeepalive
		if got.Header != want {
			t.Fatalf("got %+v want %+v", got.Header, want)
		}
	})

	t.Run("JoinResponse", func(t *testing.T) {
		got, err := ParseJoinResponse(BuildJoinResponse(h, 7))
		if err != nil {
			t.Fatal(err)
		}
		want := h
		want.Type = TypeJoinResponse
		if got.Header != want || got.AssignedCellIndex != 7 {
			t.Fatalf("got %+v want header=%+v cell=7", got, want)
		}
	})

	t.Run("Data", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0x42}, MaxPayloadLen)
		raw, err := BuildData(h, payload)
		if err != nil {
			t.Fatal(err)
		}
		got, err := ParseData(raw)
		if err != nil {
			t.Fatal(err)
		}
		want := h
		want.Type = TypeData
		if got.Header != want || !bytes.Equal(got.Payload, payload) {
			t.Fatalf("round trip mismatch")
		}
	})

	t.Run("DataTooLarge", func(t *testing.T) {
		_, err := BuildData(h, make([]byte, MaxPayloadLen+1))
		if err == nil {
			t.Fatal("expected ErrPayloadTooLarge")
		}
	})
}

func TestBeaconRoundTrip(t *testing.T) {
	var bloom [BloomLen]byte
	bloom[0] = 0xFF
	bloom[BloomLen-1] = 0x01

	bcn := Beacon{
		Version:           ProtocolVersion,
		NetworkID:         7,
		ASN:               123456789,
		Src:               0xDEADBEEFCAFEBABE,
		RemainingCapacity: 12,
		ActiveScheduleID:  3,
		Bloom:             bloom,
	}

	got, err := ParseBeacon(BuildBeacon(bcn))
	if err != nil {
		t.Fatal(err)
	}
	if got != bcn {
		t.Fatalf("got %+v want %+v", got, bcn)
	}
}

func TestBeaconSummarySharesPrefixWithBeacon(t *testing.T) {
	var bloom [BloomLen]byte
	bcn := Beacon{
		Version:           ProtocolVersion,
		NetworkID:         9,
		ASN:               42,
		Src:               99,
		RemainingCapacity: 1,
		ActiveScheduleID:  2,
		Bloom:             bloom,
	}

	full := BuildBeacon(bcn)
	summary := BuildBeaconSummary(bcn.Summary())

	if !bytes.Equal(full[:BeaconSummaryLen], summary) {
		t.Fatalf("beacon summary is not a prefix of the full beacon wire bytes")
	}

	gotSummary, err := ParseBeaconSummary(summary)
	if err != nil {
		t.Fatal(err)
	}
	if gotSummary != bcn.Summary() {
		t.Fatalf("got %+v want %+v", gotSummary, bcn.Summary())
	}
}

func TestValidateVersion(t *testing.T) {
	if err := ValidateVersion(ProtocolVersion); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateVersion(ProtocolVersion + 1); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestShortBufferRejected(t *testing.T) {
	if _, err := ParseJoinRequest(make([]byte, HeaderLen-1)); err != ErrShortBuffer {
		t.Fatalf("got %v want ErrShortBuffer", err)
	}
	if _, err := ParseBeacon(make([]byte, BeaconLen-1)); err != ErrShortBuffer {
		t.Fatalf("got %v want ErrShortBuffer", err)
	}
}
