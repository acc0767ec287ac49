package flatcore

import (
	"encoding/binary"

	"github.com/rawbytedev/flatcore/internal/common"
)

// Read decodes a little-endian T from the front of buf.
func Read[T Scalar](buf []byte) T { return common.Get[T](buf) }

// Write encodes x little-endian into the front of buf.
func Write[T Scalar](buf []byte, x T) { common.Put(buf, x) }

func GetUOffsetT(buf []byte) UOffsetT { return UOffsetT(binary.LittleEndian.Uint32(buf)) }
func GetSOffsetT(buf []byte) SOffsetT { return SOffsetT(binary.LittleEndian.Uint32(buf)) }
func GetVOffsetT(buf []byte) VOffsetT { return VOffsetT(binary.LittleEndian.Uint16(buf)) }

func WriteUOffsetT(buf []byte, n UOffsetT) { binary.LittleEndian.PutUint32(buf, uint32(n)) }
func WriteSOffsetT(buf []byte, n SOffsetT) { binary.LittleEndian.PutUint32(buf, uint32(n)) }
func WriteVOffsetT(buf []byte, n VOffsetT) { binary.LittleEndian.PutUint16(buf, uint16(n)) }
