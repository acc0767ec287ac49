package flatcore

import "github.com/rawbytedev/flatcore/internal/common"

type (
	// UOffsetT is an unsigned forward offset, resolved relative to the
	// position it is stored at.
	UOffsetT uint32
	// SOffsetT is the signed back-pointer from a table to its vtable.
	SOffsetT int32
	// VOffsetT is a field offset stored in a vtable.
	VOffsetT uint16
)

// Scalar is the set of fixed-width values that can be stored inline.
type Scalar = common.Scalar

const (
	SizeUOffsetT = 4
	SizeSOffsetT = 4
	SizeVOffsetT = 2
	SizeUint32   = 4

	// VtableMetadataFields is the number of header entries (vtable size and
	// object size) that precede the field entries of a vtable.
	VtableMetadataFields = 2

	FileIdentifierLength = 4
	SizePrefixLength     = 4

	// MaxBufferSize is the largest buffer a Builder can produce.
	MaxBufferSize = 1<<31 - 1
)

// SlotOffset converts a field slot number into its byte offset inside a vtable.
func SlotOffset(slot int) VOffsetT {
	return VOffsetT((VtableMetadataFields + slot) * SizeVOffsetT)
}
