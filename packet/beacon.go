package packet

import "encoding/binary"

// BloomLen is the size in bytes of the membership bloom filter carried in
// every beacon (1024 bits).
const BloomLen = 128

// beaconPrefixLen is the size of the fields shared, in identical order, by
// both Beacon and BeaconSummary. spec §9's open question notes that the
// full beacon header and the stripped scan-table header "share the first
// several fields" — beaconPrefix.encode/decodeBeaconPrefix are the single source of
// truth for that shared layout, so the two structs can never drift apart.
const beaconPrefixLen = 1 + 1 + 2 + 8 + 8 + 1 + 1 // version,type,netid,asn,src,cap,schedid

// BeaconLen is the full wire size of a beacon frame: the shared prefix,
// two reserved padding bytes, and the bloom filter.
const BeaconLen = beaconPrefixLen + 2 + BloomLen

type beaconPrefix struct {
	Version           uint8
	NetworkID         uint16
	ASN               uint64
	Src               uint64
	RemainingCapacity uint8
	ActiveScheduleID  uint8
}

func (p beaconPrefix) encode() [beaconPrefixLen]byte {
	var buf [beaconPrefixLen]byte
	buf[0] = p.Version
	buf[1] = byte(TypeBeacon)
	binary.LittleEndian.PutUint16(buf[2:4], p.NetworkID)
	binary.LittleEndian.PutUint64(buf[4:12], p.ASN)
	binary.LittleEndian.PutUint64(buf[12:20], p.Src)
	buf[20] = p.RemainingCapacity
	buf[21] = p.ActiveScheduleID
	return buf
}

func decodeBeaconPrefix(b []byte) (beaconPrefix, error) {
	if len(b) < beaconPrefixLen {
		return beaconPrefix{}, ErrShortBuffer
	}
	return beaconPrefix{
		Version:           b[0],
		NetworkID:         binary.LittleEndian.Uint16(b[2:4]),
		ASN:               binary.LittleEndian.Uint64(b[4:12]),
		Src:               binary.LittleEndian.Uint64(b[12:20]),
		RemainingCapacity: b[20],
		ActiveScheduleID:  b[21],
	}, nil
}

// Beacon is the broadcast frame a gateway emits on every Beacon slot.
type Beacon struct {
	Version           uint8
	NetworkID         uint16
	ASN               uint64
	Src               uint64
	RemainingCapacity uint8
	ActiveScheduleID  uint8
	Bloom             [BloomLen]byte
}

// Summary strips the bloom filter, yielding the same view a receiver would
// store in its scan table.
func (bcn Beacon) Summary() BeaconSummary {
	return BeaconSummary{
		Version:           bcn.Version,
		NetworkID:         bcn.NetworkID,
		ASN:               bcn.ASN,
		Src:               bcn.Src,
		RemainingCapacity: bcn.RemainingCapacity,
		ActiveScheduleID:  bcn.ActiveScheduleID,
	}
}

// BuildBeacon serialises a full beacon frame.
func BuildBeacon(bcn Beacon) []byte {
	prefix := beaconPrefix{
		Version:           bcn.Version,
		NetworkID:         bcn.NetworkID,
		ASN:               bcn.ASN,
		Src:               bcn.Src,
		RemainingCapacity: bcn.RemainingCapacity,
		ActiveScheduleID:  bcn.ActiveScheduleID,
	}.encode()

	buf := make([]byte, BeaconLen)
	copy(buf, prefix[:])
	// buf[beaconPrefixLen : beaconPrefixLen+2] reserved, left zero.
	copy(buf[beaconPrefixLen+2:], bcn.Bloom[:])
	return buf
}

// ParseBeacon parses a full beacon frame.
func ParseBeacon(b []byte) (Beacon, error) {
	if len(b) < BeaconLen {
		return Beacon{}, ErrShortBuffer
	}
	prefix, err := decodeBeaconPrefix(b)
	if err != nil {
		return Beacon{}, err
	}
	bcn := Beacon{
		Version:           prefix.Version,
		NetworkID:         prefix.NetworkID,
		ASN:               prefix.ASN,
		Src:               prefix.Src,
		RemainingCapacity: prefix.RemainingCapacity,
		ActiveScheduleID:  prefix.ActiveScheduleID,
	}
	copy(bcn.Bloom[:], b[beaconPrefixLen+2:BeaconLen])
	return bcn, nil
}

// BeaconSummaryLen is the wire size of a stripped beacon header as stored
// in the scan table (no bloom bytes, no reserved padding).
const BeaconSummaryLen = beaconPrefixLen

// BeaconSummary is the "stripped" beacon header kept in the scan table
// (spec §3 "Scan table entry"): everything a beacon carries except the
// bloom filter, which a scanning node has no use for until it joins.
type BeaconSummary struct {
	Version           uint8
	NetworkID         uint16
	ASN               uint64
	Src               uint64
	RemainingCapacity uint8
	ActiveScheduleID  uint8
}

// BuildBeaconSummary serialises a stripped beacon header.
func BuildBeaconSummary(s BeaconSummary) []byte {
	prefix := beaconPrefix{
		Version:           s.Version,
		NetworkID:         s.NetworkID,
		ASN:               s.ASN,
		Src:               s.Src,
		RemainingCapacity: s.RemainingCapacity,
		ActiveScheduleID:  s.ActiveScheduleID,
	}.encode()
	out := make([]byte, BeaconSummaryLen)
	copy(out, prefix[:])
	return out
}

// ParseBeaconSummary parses a stripped beacon header.
func ParseBeaconSummary(b []byte) (BeaconSummary, error) {
	prefix, err := decodeBeaconPrefix(b)
	if err != nil {
		return BeaconSummary{}, err
	}
	return BeaconSummary{
		Version:           prefix.Version,
		NetworkID:         prefix.NetworkID,
		ASN:               prefix.ASN,
		Src:               prefix.Src,
		RemainingCapacity: prefix.RemainingCapacity,
		ActiveScheduleID:  prefix.ActiveScheduleID,
	}, nil
}
