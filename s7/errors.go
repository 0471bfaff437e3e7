package s7

import (
	"errors"
	"fmt"
)

// Low-level errors. Any of these causes the Client to latch Connected to
// false before returning, since they indicate the session state and the
// PLC's view of it may have diverged.
var (
	ErrNotConnected         = errors.New("s7: not connected")
	ErrTcpConnectionFailed  = errors.New("s7: tcp connection failed")
	ErrIsoConnectionFailed  = errors.New("s7: iso connection failed")
	ErrPduNegotiationFailed = errors.New("s7: pdu negotiation failed")
	ErrIsoInvalidHeader     = errors.New("s7: invalid iso/tpkt header")
	ErrIsoInvalidTelegram   = errors.New("s7: invalid telegram")
	ErrIsoFragmentedPacket  = errors.New("s7: fragmented packet")
	ErrS7Unspecified        = errors.New("s7: unspecified plc error")
	ErrIo                   = errors.New("s7: io error")
)

// High-level errors. The session is left intact; the caller decides what
// to do about the addressed resource.
var (
	ErrNotFound        = errors.New("s7: object does not exist")
	ErrS7InvalidAddress = errors.New("s7: invalid address")
)

// S7 error classes, from the S7 header's error-class byte.
const (
	errClassNoError    byte = 0x00
	errClassAppReloc   byte = 0x81
	errClassObjDef     byte = 0x82
	errClassNoResource byte = 0x83
	errClassService    byte = 0x84
	errClassNoRes85    byte = 0x85
	errClassAccess     byte = 0x87
)

// S7 data-item return codes, from the first byte of a ReadVar/WriteVar
// response data item.
const (
	itemReturnSuccess     byte = 0xFF
	itemReturnAddrInvalid byte = 0x05
	itemReturnNotExist    byte = 0x0A
)

// classifyHeaderError maps an S7 header error class/code pair (bytes
// 10-11 of an Ack-Data header) to an error: (0,0) is success and every
// other pair collapses to ErrS7Unspecified, per this module's pinned
// Open-Question resolution (service error pairings vary by CPU family).
// No header pair is mapped to a high-level error; ErrNotFound and
// ErrS7InvalidAddress come only from item return codes.
func classifyHeaderError(class, code byte) error {
	if class == errClassNoError && code == 0 {
		return nil
	}
	return fmt.Errorf("%w: class=0x%02X code=0x%02X", ErrS7Unspecified, class, code)
}

// classifyItemError maps a ReadVar/WriteVar data-item return code to the
// pinned high-level errors, or ErrS7Unspecified for anything else.
func classifyItemError(code byte) error {
	switch code {
	case itemReturnSuccess:
		return nil
	case itemReturnAddrInvalid:
		return ErrS7InvalidAddress
	case itemReturnNotExist:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: item return code 0x%02X", ErrS7Unspecified, code)
	}
}

// isFatal reports whether err should latch Client.Connected to false.
// High-level errors (ErrNotFound, ErrS7InvalidAddress) are the only
// recoverable kind; everything else — including errors this package did
// not originate — is treated as fatal by default.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrS7InvalidAddress)
}
