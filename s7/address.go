package s7

import "fmt"

// Area identifies an S7 memory area. Values are the canonical S7 area
// codes used on the wire — NOT the order in which they are declared here.
//
// The vendor documentation this package was built against lists PA and MK
// both as 0x84, which is a documentation error: the S7ANY addressing
// scheme only has one object for each area code, and using 0x84 for both
// process outputs and merkers would make every PA access silently target
// the merker area instead. The canonical mapping (confirmed against wire
// captures) is used here regardless of what any prose says.
type Area uint8

// Canonical S7 area codes.
const (
	AreaPE Area = 0x81 // Process image inputs
	AreaPA Area = 0x82 // Process image outputs
	AreaMK Area = 0x83 // Merkers / flags
	AreaDB Area = 0x84 // Data blocks
)

// String returns the area's short mnemonic.
func (a Area) String() string {
	switch a {
	case AreaPE:
		return "PE"
	case AreaPA:
		return "PA"
	case AreaMK:
		return "MK"
	case AreaDB:
		return "DB"
	default:
		return fmt.Sprintf("Area(0x%02X)", uint8(a))
	}
}

// WordLen selects whether an access is addressed in bits or bytes.
type WordLen uint8

const (
	WordLenBit  WordLen = 0x01
	WordLenByte WordLen = 0x02
)

func (w WordLen) String() string {
	switch w {
	case WordLenBit:
		return "Bit"
	case WordLenByte:
		return "Byte"
	default:
		return fmt.Sprintf("WordLen(0x%02X)", uint8(w))
	}
}

// ConnectionType selects the PG/OP/S7Basic connection profile, which sets
// the high byte of the local TSAP on the rack/slot connect variants.
type ConnectionType uint8

const (
	ConnectionTypePG      ConnectionType = 0x01
	ConnectionTypeOP      ConnectionType = 0x02
	ConnectionTypeS7Basic ConnectionType = 0x03
)

// Address is a fully-resolved S7 memory reference: one area, one
// DB number (meaningful only when Area == AreaDB), a start offset
// (bits when WordLen == WordLenBit, bytes otherwise), the word length,
// and the number of WordLen-sized elements.
type Address struct {
	Area     Area
	DBNumber uint16
	Start    uint32
	WordLen  WordLen
	Count    uint16
}

// byteOffset returns the Address's Start expressed as a byte offset,
// valid only when WordLen == WordLenByte.
func (a Address) byteOffset() uint32 {
	return a.Start
}
