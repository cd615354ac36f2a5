package hdlc

import (
	"encoding/binary"
	"fmt"
)

// MessageType tags a bridge message's payload shape (spec §6 "Host
// bridge": "Message types on the bridge").
type MessageType uint8

const (
	MsgNodeJoined  MessageType = 1
	MsgNodeLeft    MessageType = 2
	MsgData        MessageType = 3
	MsgKeepalive   MessageType = 4
	MsgGatewayInfo MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MsgNodeJoined:
		return "NODE_JOINED"
	case MsgNodeLeft:
		return "NODE_LEFT"
	case MsgData:
		return "DATA"
	case MsgKeepalive:
		return "KEEPALIVE"
	case MsgGatewayInfo:
		return "GATEWAY_INFO"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// schedUsageLen is the fixed width of GatewayInfo.SchedUsage: a 256-bit
// usage bitmap (spec §4.1 MaxStatsCells) packed as 32 bytes.
const schedUsageLen = 32

// GatewayInfoLen is the wire size of a GATEWAY_INFO payload (spec §6):
// device_id(8) + net_id(2) + schedule_id(2) + sched_usage(32) + asn(8) +
// timer(4).
const GatewayInfoLen = 8 + 2 + 2 + schedUsageLen + 8 + 4

// GatewayInfo is sent every slotframe by the net core so the app core can
// report gateway status over its own uplink (spec §6).
type GatewayInfo struct {
	DeviceID   uint64
	NetID      uint16
	ScheduleID uint16
	SchedUsage [schedUsageLen]byte
	ASN        uint64
	Timer      uint32
}

// EncodeGatewayInfo serialises a GatewayInfo payload. The caller wraps the
// result in a bridge message with MsgGatewayInfo via EncodeMessage.
func EncodeGatewayInfo(gi GatewayInfo) []byte {
	buf := make([]byte, GatewayInfoLen)
	binary.LittleEndian.PutUint64(buf[0:8], gi.DeviceID)
	binary.LittleEndian.PutUint16(buf[8:10], gi.NetID)
	binary.LittleEndian.PutUint16(buf[10:12], gi.ScheduleID)
	copy(buf[12:12+schedUsageLen], gi.SchedUsage[:])
	off := 12 + schedUsageLen
	binary.LittleEndian.PutUint64(buf[off:off+8], gi.ASN)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], gi.Timer)
	return buf
}

// DecodeGatewayInfo parses a GATEWAY_INFO payload.
func DecodeGatewayInfo(b []byte) (GatewayInfo, error) {
	if len(b) < GatewayInfoLen {
		return GatewayInfo{}, ErrTooShort
	}
	var gi GatewayInfo
	gi.DeviceID = binary.LittleEndian.Uint64(b[0:8])
	gi.NetID = binary.LittleEndian.Uint16(b[8:10])
	gi.ScheduleID = binary.LittleEndian.Uint16(b[10:12])
	copy(gi.SchedUsage[:], b[12:12+schedUsageLen])
	off := 12 + schedUsageLen
	gi.ASN = binary.LittleEndian.Uint64(b[off : off+8])
	gi.Timer = binary.LittleEndian.Uint32(b[off+8 : off+12])
	return gi, nil
}

// NodeEventLen is the wire size of a NODE_JOINED/NODE_LEFT payload: just
// the node's id.
const NodeEventLen = 8

// EncodeNodeEvent serialises the 8-byte node id carried by NODE_JOINED and
// NODE_LEFT messages.
func EncodeNodeEvent(nodeID uint64) []byte {
	buf := make([]byte, NodeEventLen)
	binary.LittleEndian.PutUint64(buf, nodeID)
	return buf
}

// DecodeNodeEvent parses a NODE_JOINED/NODE_LEFT payload.
func DecodeNodeEvent(b []byte) (uint64, error) {
	if len(b) < NodeEventLen {
		return 0, ErrTooShort
	}
	return binary.LittleEndian.Uint64(b), nil
}

// EncodeMessage wraps msgType and payload in a one-byte-type-prefixed
// bridge message, then HDLC-frames the result. This is what actually goes
// out over the UART (spec §6: "HDLC-framed ... messages over UART").
func EncodeMessage(msgType MessageType, payload []byte) []byte {
	body := make([]byte, 1+len(payload))
	body[0] = byte(msgType)
	copy(body[1:], payload)
	return Encode(body)
}

// DecodeMessage reverses EncodeMessage: HDLC-decodes frame, verifies the
// CRC, and splits off the message type byte.
func DecodeMessage(frame []byte) (MessageType, []byte, error) {
	body, err := Decode(frame)
	if err != nil {
		return 0, nil, err
	}
	if len(body) < 1 {
		return 0, nil, ErrTooShort
	}
	return MessageType(body[0]), body[1:], nil
}
