package proto

import (
	"encoding/binary"
	"errors"
)

var (
	ErrNilBuf         = errors.New("Nil buffer.")
	ErrBufferTooShort = errors.New("Buffer is too short.")
	ErrPayloadTooLong = errors.New("Payload exceeds packet capacity.")
)

const (
	MSG_DUMMY        = uint8(0)
	MSG_TEXT         = uint8(1)
	MSG_JOIN_GROUP   = uint8(2)
	MSG_LEAVE_GROUP  = uint8(3)
	MSG_CREATE_GROUP = uint8(4)
	MSG_LIST_GROUPS  = uint8(5)
	MSG_HISTORY      = uint8(6)
	MSG_AUDIO        = uint8(7) // Reserved.
	MSG_VIDEO        = uint8(8) // Reserved.
	MSG_ACK          = uint8(9)
	MSG_ERROR        = uint8(10)
)

// Sender ID 0 is reserved for frames originated by the server itself.
const ServerID = uint32(0)

// PayloadCap is the fixed payload slot size carried by every packet.
const PayloadCap = 256

// PacketSize is the exact wire length of one packet.
//
//	+------+---------+-----------+----------+-------------+----...----+
//	| Type | GroupID | Timestamp | SenderID | PayloadSize |  Payload  |
//	| (1B) |  (2B)   |   (4B)    |   (4B)   |    (2B)     |  (256B)   |
//	+------+---------+-----------+----------+-------------+----...----+
//
// Multi-byte fields are big-endian on the wire.
const PacketSize = 1 + 2 + 4 + 4 + 2 + PayloadCap

// Packet is one fixed-layout protocol frame. Payload is a raw slot; only the
// leading PayloadSize bytes are meaningful and no terminator is implied.
type Packet struct {
	Type        uint8
	GroupID     uint16
	Timestamp   uint32
	SenderID    uint32
	PayloadSize uint16
	Payload     [PayloadCap]byte
}

// SetPayload copies raw into the payload slot and adjusts PayloadSize.
func (p *Packet) SetPayload(raw []byte) error {
	if len(raw) > PayloadCap {
		return ErrPayloadTooLong
	}
	copy(p.Payload[:], raw)
	for i := len(raw); i < PayloadCap; i++ {
		p.Payload[i] = 0
	}
	p.PayloadSize = uint16(len(raw))
	return nil
}

// SetText is SetPayload for string content.
func (p *Packet) SetText(text string) error {
	return p.SetPayload([]byte(text))
}

// Text interprets the valid payload bytes as a string. The conversion is
// bounded by PayloadSize; trailing slot bytes are never touched.
func (p *Packet) Text() string {
	size := p.PayloadSize
	if size > PayloadCap {
		size = PayloadCap
	}
	return string(p.Payload[:size])
}

func (p *Packet) Len() int {
	return PacketSize
}

// Marshal writes the packet into buf in wire order. buf must hold at least
// PacketSize bytes.
func (p *Packet) Marshal(buf []byte) error {
	if buf == nil {
		return ErrNilBuf
	}
	if len(buf) < PacketSize {
		return ErrBufferTooShort
	}
	buf[0] = p.Type
	binary.BigEndian.PutUint16(buf[1:3], p.GroupID)
	binary.BigEndian.PutUint32(buf[3:7], p.Timestamp)
	binary.BigEndian.PutUint32(buf[7:11], p.SenderID)
	binary.BigEndian.PutUint16(buf[11:13], p.PayloadSize)
	copy(buf[13:PacketSize], p.Payload[:])
	return nil
}

// Unmarshal parses one wire frame. raw must hold a complete packet; short
// input is the caller's transport problem, not a protocol state.
func (p *Packet) Unmarshal(raw []byte) (uint, error) {
	if raw == nil {
		return 0, ErrNilBuf
	}
	if len(raw) < PacketSize {
		return 0, ErrBufferTooShort
	}
	p.Type = raw[0]
	p.GroupID = binary.BigEndian.Uint16(raw[1:3])
	p.Timestamp = binary.BigEndian.Uint32(raw[3:7])
	p.SenderID = binary.BigEndian.Uint32(raw[7:11])
	p.PayloadSize = binary.BigEndian.Uint16(raw[11:13])
	copy(p.Payload[:], raw[13:PacketSize])
	return PacketSize, nil
}
