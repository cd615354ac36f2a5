// Package packet implements the Mari over-the-air wire format (spec §6):
// a common header shared by Join-Request, Join-Response, Keepalive and Data
// frames, plus an alternative Beacon layout carrying the gateway's ASN,
// active schedule id, remaining capacity and bloom filter.
//
// Every Build function produces the exact wire bytes; every Parse function
// is its inverse. Fields are never read by pointer cast (spec §9) — all
// access goes through encoding/binary on an explicit byte slice.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion is the wire version this package implements.
const ProtocolVersion uint8 = 2

// Broadcast is the destination address meaning "every node".
const Broadcast uint64 = 0xFFFFFFFFFFFFFFFF

// FrameType identifies the concrete wire variant following the header.
type FrameType uint8

const (
	TypeBeacon       FrameType = 1
	TypeJoinRequest  FrameType = 2
	TypeJoinResponse FrameType = 4
	TypeKeepalive    FrameType = 8
	TypeData         FrameType = 16
)

func (t FrameType) String() string {
	switch t {
	case TypeBeacon:
		return "Beacon"
	case TypeJoinRequest:
		return "JoinRequest"
	case TypeJoinResponse:
		return "JoinResponse"
	case TypeKeepalive:
		return "Keepalive"
	case TypeData:
		return "Data"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

// HeaderLen is the size in bytes of the common header.
const HeaderLen = 24

// MaxPayloadLen is the largest Data payload that fits after the common
// header within the PACKET_MAX_SIZE budget.
const MaxPayloadLen = 255 - HeaderLen

var (
	// ErrShortBuffer is returned when a Parse function is given fewer
	// bytes than its frame variant requires.
	ErrShortBuffer = errors.New("packet: buffer too short")

	// ErrPayloadTooLarge is returned by BuildData when the payload would
	// overflow PACKET_MAX_SIZE.
	ErrPayloadTooLarge = errors.New("packet: payload too large")

	// ErrVersionMismatch is returned by ValidateVersion for any header
	// whose version byte does not equal ProtocolVersion.
	ErrVersionMismatch = errors.New("packet: protocol version mismatch")
)

// Header is the common 24-byte prefix of Join-Request, Join-Response,
// Keepalive and Data frames.
type Header struct {
	Version   uint8
	Type      FrameType
	NetworkID uint16
	Dst       uint64
	Src       uint64
	RSSI      int8
}

// ValidateVersion returns ErrVersionMismatch if v does not match the
// version this package implements. Used by the MAC receive path (spec §7
// "Protocol: version mismatch ... dropped silently").
func ValidateVersion(v uint8) error {
	if v != ProtocolVersion {
		return fmt.Errorf("%w: got %d want %d", ErrVersionMismatch, v, ProtocolVersion)
	}
	return nil
}

func (h Header) encode() [HeaderLen]byte {
	var buf [HeaderLen]byte
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[2:4], h.NetworkID)
	binary.LittleEndian.PutUint64(buf[4:12], h.Dst)
	binary.LittleEndian.PutUint64(buf[12:20], h.Src)
	buf[20] = byte(h.RSSI)
	// buf[21:24] reserved, left zero.
	return buf
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortBuffer
	}
	return Header{
		Version:   b[0],
		Type:      FrameType(b[1]),
		NetworkID: binary.LittleEndian.Uint16(b[2:4]),
		Dst:       binary.LittleEndian.Uint64(b[4:12]),
		Src:       binary.LittleEndian.Uint64(b[12:20]),
		RSSI:      int8(b[20]),
	}, nil
}

// JoinRequest carries no payload beyond the common header.
type JoinRequest struct {
	Header
}

// BuildJoinRequest serialises a join-request frame.
func BuildJoinRequest(h Header) []byte {
	h.Type = TypeJoinRequest
	enc := h.encode()
	return enc[:]
}

// ParseJoinRequest parses a join-request frame.
func ParseJoinRequest(b []byte) (JoinRequest, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return JoinRequest{}, err
	}
	return JoinRequest{Header: h}, nil
}

// Keepalive carries no payload beyond the common header.
type Keepalive struct {
	Header
}

// BuildKeepalive serialises a keepalive frame.
func BuildKeepalive(h Header) []byte {
	h.Type = TypeKeepalive
	enc := h.encode()
	return enc[:]
}

// ParseKeepalive parses a keepalive frame.
func ParseKeepalive(b []byte) (Keepalive, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return Keepalive{}, err
	}
	return Keepalive{Header: h}, nil
}

// JoinResponseLen is the wire size of a Join-Response frame.
const JoinResponseLen = HeaderLen + 1

// JoinResponse is the common header plus the cell index the gateway
// assigned to the requester.
type JoinResponse struct {
	Header
	AssignedCellIndex uint8
}

// BuildJoinResponse serialises a join-response frame.
func BuildJoinResponse(h Header, cellIndex uint8) []byte {
	h.Type = TypeJoinResponse
	enc := h.encode()
	buf := make([]byte, JoinResponseLen)
	copy(buf, enc[:])
	buf[HeaderLen] = cellIndex
	return buf
}

// ParseJoinResponse parses a join-response frame.
func ParseJoinResponse(b []byte) (JoinResponse, error) {
	if len(b) < JoinResponseLen {
		return JoinResponse{}, ErrShortBuffer
	}
	h, err := decodeHeader(b)
	if err != nil {
		return JoinResponse{}, err
	}
	return JoinResponse{Header: h, AssignedCellIndex: b[HeaderLen]}, nil
}

// Data is the common header plus an application payload.
type Data struct {
	Header
	Payload []byte
}

// BuildData serialises a data frame. Returns ErrPayloadTooLarge if payload
// would push the frame past PACKET_MAX_SIZE.
func BuildData(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	h.Type = TypeData
	enc := h.encode()
	buf := make([]byte, HeaderLen+len(payload))
	copy(buf, enc[:])
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// ParseData parses a data frame. The returned Payload is a copy and does
// not alias b.
func ParseData(b []byte) (Data, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return Data{}, err
	}
	payload := append([]byte(nil), b[HeaderLen:]...)
	return Data{Header: h, Payload: payload}, nil
}
