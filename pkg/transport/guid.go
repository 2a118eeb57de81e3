package transport

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewServerGUID generates a random 64-bit server GUID. The wire format
// fixes this field at 64 bits; a UUIDv4 is only the entropy source, folded
// down to 64 bits by XOR-ing its two halves.
func NewServerGUID() uint64 {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return hi ^ lo
}
