package transport

import (
	"encoding/binary"
	"fmt"
	"net"
)

// BitStream is a byte cursor used to read and write the frame wire format.
// Despite the name it operates on whole bytes; the name is kept from the
// RakNet-family protocols this transport descends from, where field sizes
// are conventionally expressed in bits.
type BitStream struct {
	data   []byte
	offset int
}

// NewBitStream wraps data for reading.
func NewBitStream(data []byte) *BitStream {
	return &BitStream{data: data}
}

// NewEmptyBitStream creates a stream for writing.
func NewEmptyBitStream() *BitStream {
	return &BitStream{data: make([]byte, 0, 64)}
}

func (bs *BitStream) ReadByte() (byte, error) {
	if bs.offset >= len(bs.data) {
		return 0, fmt.Errorf("transport: bitstream overflow reading byte")
	}
	b := bs.data[bs.offset]
	bs.offset++
	return b, nil
}

func (bs *BitStream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || bs.offset+n > len(bs.data) {
		return nil, fmt.Errorf("transport: bitstream overflow reading %d bytes", n)
	}
	result := bs.data[bs.offset : bs.offset+n]
	bs.offset += n
	return result, nil
}

func (bs *BitStream) ReadUint16() (uint16, error) {
	data, err := bs.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

func (bs *BitStream) ReadUint32() (uint32, error) {
	data, err := bs.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

func (bs *BitStream) ReadUint64() (uint64, error) {
	data, err := bs.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// ReadUint24 reads a 24-bit little-endian integer — the encoding used for
// every sequence/index field in the frame wire format.
func (bs *BitStream) ReadUint24() (uint32, error) {
	b, err := bs.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

func (bs *BitStream) ReadString() (string, error) {
	length, err := bs.ReadUint16()
	if err != nil {
		return "", err
	}
	data, err := bs.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadAddress reads an IPv4 address in the wire's inverted-byte form.
func (bs *BitStream) ReadAddress() (*net.UDPAddr, error) {
	version, err := bs.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != 4 {
		return nil, fmt.Errorf("transport: unsupported address version %d", version)
	}
	ipBytes, err := bs.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	ip := net.IPv4(^ipBytes[0], ^ipBytes[1], ^ipBytes[2], ^ipBytes[3])
	port, err := bs.ReadUint16()
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

func (bs *BitStream) WriteByte(b byte) {
	bs.data = append(bs.data, b)
}

func (bs *BitStream) WriteBytes(data []byte) {
	bs.data = append(bs.data, data...)
}

func (bs *BitStream) WriteUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

func (bs *BitStream) WriteUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

func (bs *BitStream) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	bs.data = append(bs.data, buf[:]...)
}

// WriteUint24 writes a 24-bit little-endian integer.
func (bs *BitStream) WriteUint24(v uint32) {
	bs.data = append(bs.data, byte(v), byte(v>>8), byte(v>>16))
}

func (bs *BitStream) WriteString(s string) {
	bs.WriteUint16(uint16(len(s)))
	bs.data = append(bs.data, s...)
}

// WriteAddress writes an IPv4 address in the wire's inverted-byte form.
func (bs *BitStream) WriteAddress(addr *net.UDPAddr) {
	ip := addr.IP.To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	bs.WriteByte(4)
	for i := 0; i < 4; i++ {
		bs.WriteByte(^ip[i])
	}
	bs.WriteUint16(uint16(addr.Port))
}

func (bs *BitStream) Bytes() []byte {
	return bs.data
}

func (bs *BitStream) Remaining() int {
	return len(bs.data) - bs.offset
}
