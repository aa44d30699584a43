package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MessageID identifies the type of a message inside a frame
type MessageID uint16

const (
	MsgLogin        MessageID = 100
	MsgLoginReply   MessageID = 101
	MsgClientJoined MessageID = 102
	MsgClientLeft   MessageID = 103
)

// SessionIDSize is the fixed width of the session identifier on the wire
const SessionIDSize = 4

// FrameHeaderSize is the size of the packet id and message id prefix
const FrameHeaderSize = 6

var (
	ErrShortBuffer  = errors.New("short buffer")
	ErrFieldTooLong = errors.New("field too long")
)

// String returns a readable name for known message ids
func (id MessageID) String() string {
	switch id {
	case MsgLogin:
		return "Login"
	case MsgLoginReply:
		return "LoginReply"
	case MsgClientJoined:
		return "ClientJoined"
	case MsgClientLeft:
		return "ClientLeft"
	default:
		return fmt.Sprintf("Message(%d)", uint16(id))
	}
}

// Message is implemented by every server-encodable message
type Message interface {
	MessageID() MessageID
	MarshalBinary() ([]byte, error)
}

// Frame is a single transport unit carrying one message
type Frame struct {
	PacketID  uint32
	MessageID MessageID
	Payload   []byte
}

// EncodeFrame serializes f
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, FrameHeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], f.PacketID)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(f.MessageID))
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// DecodeFrame parses a frame. The payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameHeaderSize {
		return Frame{}, fmt.Errorf("frame header: %w", ErrShortBuffer)
	}
	return Frame{
		PacketID:  binary.LittleEndian.Uint32(data[0:4]),
		MessageID: MessageID(binary.LittleEndian.Uint16(data[4:6])),
		Payload:   data[FrameHeaderSize:],
	}, nil
}

// Login is sent by a client to start the handshake
type Login struct {
	LoginData []byte
}

func (m *Login) MessageID() MessageID { return MsgLogin }

func (m *Login) MarshalBinary() ([]byte, error) {
	if len(m.LoginData) > math.MaxUint16 {
		return nil, fmt.Errorf("login data: %w", ErrFieldTooLong)
	}
	buf := make([]byte, 2+len(m.LoginData))
	binary.LittleEndian.PutUint16(buf, uint16(len(m.LoginData)))
	copy(buf[2:], m.LoginData)
	return buf, nil
}

func (m *Login) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("login length: %w", ErrShortBuffer)
	}
	n := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+n {
		return fmt.Errorf("login data: %w", ErrShortBuffer)
	}
	m.LoginData = append([]byte(nil), data[2:2+n]...)
	return nil
}

// LoginReply answers a Login. On failure ReplyData holds the rejection reason.
type LoginReply struct {
	Success   bool
	UserID    uint32
	SessionID string
	ReplyData []byte
}

func (m *LoginReply) MessageID() MessageID { return MsgLoginReply }

func (m *LoginReply) MarshalBinary() ([]byte, error) {
	if len(m.SessionID) > SessionIDSize {
		return nil, fmt.Errorf("session id %q: %w", m.SessionID, ErrFieldTooLong)
	}
	if len(m.ReplyData) > math.MaxUint16 {
		return nil, fmt.Errorf("reply data: %w", ErrFieldTooLong)
	}

	buf := make([]byte, 1+4+SessionIDSize+2+len(m.ReplyData))
	if m.Success {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], m.UserID)
	copy(buf[5:5+SessionIDSize], m.SessionID)
	off := 5 + SessionIDSize
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(m.ReplyData)))
	copy(buf[off+2:], m.ReplyData)
	return buf, nil
}

func (m *LoginReply) UnmarshalBinary(data []byte) error {
	fixed := 1 + 4 + SessionIDSize + 2
	if len(data) < fixed {
		return fmt.Errorf("login reply: %w", ErrShortBuffer)
	}
	m.Success = data[0] != 0
	m.UserID = binary.LittleEndian.Uint32(data[1:5])

	sid := data[5 : 5+SessionIDSize]
	end := len(sid)
	for end > 0 && sid[end-1] == 0 {
		end--
	}
	m.SessionID = string(sid[:end])

	n := int(binary.LittleEndian.Uint16(data[fixed-2 : fixed]))
	if len(data) < fixed+n {
		return fmt.Errorf("login reply data: %w", ErrShortBuffer)
	}
	m.ReplyData = append([]byte(nil), data[fixed:fixed+n]...)
	return nil
}

// ClientJoined announces an authenticated user
type ClientJoined struct {
	UserID uint32
}

func (m *ClientJoined) MessageID() MessageID { return MsgClientJoined }

func (m *ClientJoined) MarshalBinary() ([]byte, error) {
	return marshalUserID(m.UserID), nil
}

func (m *ClientJoined) UnmarshalBinary(data []byte) error {
	id, err := unmarshalUserID(data)
	m.UserID = id
	return err
}

// ClientLeft announces a departed user
type ClientLeft struct {
	UserID uint32
}

func (m *ClientLeft) MessageID() MessageID { return MsgClientLeft }

func (m *ClientLeft) MarshalBinary() ([]byte, error) {
	return marshalUserID(m.UserID), nil
}

func (m *ClientLeft) UnmarshalBinary(data []byte) error {
	id, err := unmarshalUserID(data)
	m.UserID = id
	return err
}

func marshalUserID(id uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, id)
	return buf
}

func unmarshalUserID(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("user id: %w", ErrShortBuffer)
	}
	return binary.LittleEndian.Uint32(data), nil
}
