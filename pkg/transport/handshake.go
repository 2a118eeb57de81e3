package transport

import (
	"fmt"
	"net"
)

// Unconnected packet IDs, exchanged before a session exists.
const (
	idUnconnectedPing                  byte = 0x01
	idUnconnectedPingOpenConnections   byte = 0x02
	idOpenConnectionRequest1           byte = 0x05
	idOpenConnectionReply1             byte = 0x06
	idOpenConnectionRequest2           byte = 0x07
	idOpenConnectionReply2             byte = 0x08
	idIncompatibleProtocolVersion      byte = 0x19
	idUnconnectedPong                  byte = 0x1C
)

// Magic is the fixed 16-byte constant shared with all clients of this
// protocol family.
var Magic = [16]byte{0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE, 0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78}

func writeMagic(bs *BitStream) { bs.WriteBytes(Magic[:]) }

func readMagic(bs *BitStream) error {
	got, err := bs.ReadBytes(16)
	if err != nil {
		return err
	}
	for i, b := range Magic {
		if got[i] != b {
			return fmt.Errorf("%w: bad magic", ErrMalformedDatagram)
		}
	}
	return nil
}

// UnconnectedPing is the client's discovery probe.
type UnconnectedPing struct {
	Time      uint64
	ClientGUID uint64
}

func DecodeUnconnectedPing(data []byte) (*UnconnectedPing, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	t, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	if err := readMagic(bs); err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &UnconnectedPing{Time: t, ClientGUID: guid}, nil
}

// UnconnectedPong echoes the ping timestamp and reports the server
// metadata string.
type UnconnectedPong struct {
	Time       uint64
	ServerGUID uint64
	Metadata   string
}

func (p *UnconnectedPong) Encode() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(idUnconnectedPong)
	bs.WriteUint64(p.Time)
	bs.WriteUint64(p.ServerGUID)
	writeMagic(bs)
	bs.WriteString(p.Metadata)
	return bs.Bytes()
}

// OpenConnectionRequest1 probes MTU via padding and announces protocol
// version.
type OpenConnectionRequest1 struct {
	ProtocolVersion byte
	PaddingLength   int
}

func DecodeOpenConnectionRequest1(data []byte) (*OpenConnectionRequest1, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := readMagic(bs); err != nil {
		return nil, err
	}
	version, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionRequest1{ProtocolVersion: version, PaddingLength: bs.Remaining()}, nil
}

// OpenConnectionReply1 echoes the requested MTU.
type OpenConnectionReply1 struct {
	ServerGUID uint64
	MTU        uint16
}

func (r *OpenConnectionReply1) Encode() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(idOpenConnectionReply1)
	writeMagic(bs)
	bs.WriteUint64(r.ServerGUID)
	bs.WriteByte(0) // use security = 0
	bs.WriteUint16(r.MTU)
	return bs.Bytes()
}

// IncompatibleProtocol rejects a mismatched client protocol version.
type IncompatibleProtocol struct {
	ServerProtocol byte
	ServerGUID     uint64
}

func (r *IncompatibleProtocol) Encode() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(idIncompatibleProtocolVersion)
	bs.WriteByte(r.ServerProtocol)
	writeMagic(bs)
	bs.WriteUint64(r.ServerGUID)
	return bs.Bytes()
}

// OpenConnectionRequest2 finalizes the handshake with the negotiated MTU
// and client GUID.
type OpenConnectionRequest2 struct {
	ServerAddress *net.UDPAddr
	MTU           uint16
	ClientGUID    uint64
}

func DecodeOpenConnectionRequest2(data []byte) (*OpenConnectionRequest2, error) {
	bs := NewBitStream(data)
	if _, err := bs.ReadByte(); err != nil {
		return nil, err
	}
	if err := readMagic(bs); err != nil {
		return nil, err
	}
	addr, err := bs.ReadAddress()
	if err != nil {
		return nil, err
	}
	mtu, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	guid, err := bs.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionRequest2{ServerAddress: addr, MTU: mtu, ClientGUID: guid}, nil
}

// OpenConnectionReply2 admits the client; a session is inserted into the
// registry's Handshaking partition the moment this is sent.
type OpenConnectionReply2 struct {
	ServerGUID    uint64
	ClientAddress *net.UDPAddr
	MTU           uint16
}

func (r *OpenConnectionReply2) Encode() []byte {
	bs := NewEmptyBitStream()
	bs.WriteByte(idOpenConnectionReply2)
	writeMagic(bs)
	bs.WriteUint64(r.ServerGUID)
	bs.WriteAddress(r.ClientAddress)
	bs.WriteUint16(r.MTU)
	bs.WriteByte(0) // encryption = 0
	return bs.Bytes()
}

// FormatMetadata builds the semicolon-delimited metadata string advertised
// in an unconnected pong.
func FormatMetadata(description string, protocolVersion byte, clientVersion string, online, max int, serverGUID uint64, ipv4Port, ipv6Port int) string {
	return fmt.Sprintf("MCPE;%s;%d;%s;%d;%d;%d;Survival;1;%d;%d;",
		description, protocolVersion, clientVersion, online, max, serverGUID, ipv4Port, ipv6Port)
}
