package config

import "encoding/binary"

// persistedMagic identifies a valid persisted configuration record ("SWRM").
const persistedMagic uint32 = 0x5753524d

// PersistedLen is the fixed size in bytes of a persisted record.
const PersistedLen = 8

// Persisted is the 8-byte flash-resident record described in spec §6: a
// magic value followed by the network id a gateway should adopt on boot.
type Persisted struct {
	NetworkID uint16
}

// Bytes serialises p into its 8-byte wire layout: magic (4 bytes, BE) +
// network_id (2 bytes, LE) + 2 reserved padding bytes.
func (p Persisted) Bytes() [PersistedLen]byte {
	var buf [PersistedLen]byte
	binary.BigEndian.PutUint32(buf[0:4], persistedMagic)
	binary.LittleEndian.PutUint16(buf[4:6], p.NetworkID)
	return buf
}

// ReadPersisted decodes a persisted record from a flash-sized buffer. It
// reports ok=false if the magic does not match, in which case the caller
// should fall back to the compile-time default network id.
func ReadPersisted(buf []byte) (p Persisted, ok bool) {
	if len(buf) < PersistedLen {
		return Persisted{}, false
	}
	if binary.BigEndian.Uint32(buf[0:4]) != persistedMagic {
		return Persisted{}, false
	}
	return Persisted{NetworkID: binary.LittleEndian.Uint16(buf[4:6])}, true
}
