package transport

import "testing"

func TestBitStreamWriteRead(t *testing.T) {
	bs := NewEmptyBitStream()

	bs.WriteByte(0x42)
	bs.WriteUint16(1234)
	bs.WriteUint32(567890)
	bs.WriteUint24(0x0A0B0C)
	bs.WriteString("hello world")

	readBS := NewBitStream(bs.Bytes())

	b, err := readBS.ReadByte()
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte = %v, %v; want 0x42, nil", b, err)
	}

	u16, err := readBS.ReadUint16()
	if err != nil || u16 != 1234 {
		t.Fatalf("ReadUint16 = %v, %v; want 1234, nil", u16, err)
	}

	u32, err := readBS.ReadUint32()
	if err != nil || u32 != 567890 {
		t.Fatalf("ReadUint32 = %v, %v; want 567890, nil", u32, err)
	}

	u24, err := readBS.ReadUint24()
	if err != nil || u24 != 0x0A0B0C {
		t.Fatalf("ReadUint24 = %#x, %v; want 0xa0b0c, nil", u24, err)
	}

	str, err := readBS.ReadString()
	if err != nil || str != "hello world" {
		t.Fatalf("ReadString = %q, %v; want %q, nil", str, err, "hello world")
	}
}

func TestBitStreamOverflow(t *testing.T) {
	bs := NewBitStream([]byte{0x01})
	if _, err := bs.ReadByte(); err != nil {
		t.Fatalf("first ReadByte: %v", err)
	}
	if _, err := bs.ReadByte(); err == nil {
		t.Fatal("expected overflow error reading past end of stream")
	}
}

func TestBitStreamAddressRoundTrip(t *testing.T) {
	bs := NewEmptyBitStream()
	want := mustAddr(t, "192.168.1.7:19132")
	bs.WriteAddress(want)

	readBS := NewBitStream(bs.Bytes())
	got, err := readBS.ReadAddress()
	if err != nil {
		t.Fatalf("ReadAddress: %v", err)
	}
	if got.Port != want.Port || !got.IP.Equal(want.IP) {
		t.Fatalf("ReadAddress = %v; want %v", got, want)
	}
}
