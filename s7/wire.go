package s7

import (
	"encoding/binary"
	"fmt"
)

// Wire-level constants for TPKT (RFC 1006), COTP (ISO 8073), and the S7
// protocol header/parameter/data layers. All multi-byte integers on the
// wire are big-endian.
const (
	tpktVersion    = 0x03
	tpktHeaderSize = 4

	minTelegramLen = 7
	maxTelegramLen = 2048

	cotpCR = 0xE0 // Connection Request
	cotpCC = 0xD0 // Connection Confirm
	cotpDT = 0xF0 // Data Transfer

	cotpParamSrcTSAP  = 0xC1
	cotpParamDstTSAP  = 0xC2
	cotpParamTPDUSize = 0xC0
	cotpTPDUSize1024  = 0x0A // 2^10

	s7ProtocolID = 0x32

	s7MsgJob      = 0x01
	s7MsgAckData  = 0x03
	s7MsgUserData = 0x07

	s7FuncSetupComm = 0xF0
	s7FuncReadVar   = 0x04
	s7FuncWriteVar  = 0x05

	s7AnySpecType = 0x12
	s7AnyLen      = 0x0A
	s7AnySyntaxID = 0x10

	// Item transport-size codes used in ReadVar/WriteVar request items.
	tsReqBit  = 0x01
	tsReqByte = 0x02

	// Data-item transport-size codes used in the data section that
	// accompanies a WriteVar request or a ReadVar reply.
	tsDataBit  = 0x03
	tsDataByte = 0x04
)

// --- TPKT -------------------------------------------------------------

// encodeTPKT prepends a TPKT header to payload.
func encodeTPKT(payload []byte) []byte {
	total := tpktHeaderSize + len(payload)
	frame := make([]byte, 0, total)
	frame = append(frame, tpktVersion, 0x00, byte(total>>8), byte(total))
	frame = append(frame, payload...)
	return frame
}

// decodeTPKTHeader validates a 4-byte TPKT header and returns the total
// frame length it declares.
func decodeTPKTHeader(header []byte) (int, error) {
	if len(header) != tpktHeaderSize {
		return 0, fmt.Errorf("%w: short tpkt header", ErrIsoInvalidHeader)
	}
	if header[0] != tpktVersion || header[1] != 0x00 {
		return 0, fmt.Errorf("%w: version=%d reserved=%d", ErrIsoInvalidHeader, header[0], header[1])
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < minTelegramLen || length > maxTelegramLen {
		return 0, fmt.Errorf("%w: tpkt length %d out of range", ErrIsoInvalidTelegram, length)
	}
	return length, nil
}

// --- COTP ---------------------------------------------------------------

// encodeCOTPConnectionRequest builds a COTP Connection Request PDU
// (without the TPKT header) carrying the given source/destination TSAPs.
func encodeCOTPConnectionRequest(srcTSAP, dstTSAP uint16) []byte {
	cr := []byte{
		0x00,       // length, filled in below
		cotpCR,     // PDU type
		0x00, 0x00, // destination reference
		0x00, 0x01, // source reference
		0x00, // class 0 / options
	}
	cr = append(cr, cotpParamSrcTSAP, 0x02, byte(srcTSAP>>8), byte(srcTSAP))
	cr = append(cr, cotpParamDstTSAP, 0x02, byte(dstTSAP>>8), byte(dstTSAP))
	cr = append(cr, cotpParamTPDUSize, 0x01, cotpTPDUSize1024)
	cr[0] = byte(len(cr) - 1)
	return cr
}

// decodeCOTPConnectionConfirm validates that payload is a COTP CC PDU.
func decodeCOTPConnectionConfirm(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: short cotp cc", ErrIsoConnectionFailed)
	}
	if payload[1] != cotpCC {
		return fmt.Errorf("%w: expected cotp cc (0x%02X), got 0x%02X", ErrIsoConnectionFailed, cotpCC, payload[1])
	}
	return nil
}

// wrapCOTPData wraps an S7 telegram in a 3-byte COTP Data (DT) header
// with the EOT bit set — every S7 PDU in this client fits in one TPDU.
func wrapCOTPData(s7Telegram []byte) []byte {
	out := make([]byte, 0, 3+len(s7Telegram))
	out = append(out, 0x02, cotpDT, 0x80)
	out = append(out, s7Telegram...)
	return out
}

// unwrapCOTPData validates and strips a COTP Data header, returning the
// S7 telegram it carries.
func unwrapCOTPData(payload []byte) ([]byte, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: short cotp dt", ErrIsoInvalidTelegram)
	}
	if payload[1] != cotpDT {
		return nil, fmt.Errorf("%w: expected cotp dt (0x%02X), got 0x%02X", ErrIsoInvalidTelegram, cotpDT, payload[1])
	}
	return payload[3:], nil
}

// --- S7 header ------------------------------------------------------

// encodeS7JobHeader builds the 10-byte S7 header for a Job message.
func encodeS7JobHeader(pduRef uint16, paramLen, dataLen int) []byte {
	return []byte{
		s7ProtocolID,
		s7MsgJob,
		0x00, 0x00,
		byte(pduRef >> 8), byte(pduRef),
		byte(paramLen >> 8), byte(paramLen),
		byte(dataLen >> 8), byte(dataLen),
	}
}

// s7AckHeader is a parsed 12-byte S7 Ack-Data header.
type s7AckHeader struct {
	PduRef   uint16
	ParamLen int
	DataLen  int
	ErrClass byte
	ErrCode  byte
}

// decodeS7AckHeader parses and validates the 12-byte Ack-Data header at
// the start of telegram.
func decodeS7AckHeader(telegram []byte) (s7AckHeader, []byte, error) {
	if len(telegram) < 12 {
		return s7AckHeader{}, nil, fmt.Errorf("%w: short s7 header", ErrIsoInvalidTelegram)
	}
	if telegram[0] != s7ProtocolID {
		return s7AckHeader{}, nil, fmt.Errorf("%w: bad s7 magic 0x%02X", ErrIsoInvalidHeader, telegram[0])
	}
	if telegram[1] != s7MsgAckData {
		return s7AckHeader{}, nil, fmt.Errorf("%w: expected ack-data (0x%02X), got 0x%02X", ErrIsoInvalidTelegram, s7MsgAckData, telegram[1])
	}
	h := s7AckHeader{
		PduRef:   binary.BigEndian.Uint16(telegram[4:6]),
		ParamLen: int(binary.BigEndian.Uint16(telegram[6:8])),
		DataLen:  int(binary.BigEndian.Uint16(telegram[8:10])),
		ErrClass: telegram[10],
		ErrCode:  telegram[11],
	}
	return h, telegram[12:], nil
}

// --- Setup Communication ------------------------------------------------

// encodeSetupCommRequest builds a complete S7 Setup Communication Job
// telegram (header + parameters) proposing pduSize.
func encodeSetupCommRequest(pduRef uint16, pduSize uint16) []byte {
	params := []byte{
		s7FuncSetupComm,
		0x00,
		0x00, 0x01, // max AmQ calling
		0x00, 0x01, // max AmQ called
		byte(pduSize >> 8), byte(pduSize),
	}
	header := encodeS7JobHeader(pduRef, len(params), 0)
	return append(header, params...)
}

// decodeSetupCommResponse parses an S7 Setup Communication Ack-Data
// telegram and returns the negotiated PDU length.
func decodeSetupCommResponse(telegram []byte, wantRef uint16) (uint16, error) {
	h, rest, err := decodeS7AckHeader(telegram)
	if err != nil {
		return 0, err
	}
	if h.PduRef != wantRef {
		return 0, fmt.Errorf("%w: pdu-ref mismatch", ErrIsoInvalidTelegram)
	}
	if err := classifyHeaderError(h.ErrClass, h.ErrCode); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPduNegotiationFailed, err)
	}
	if h.ParamLen < 8 || len(rest) < h.ParamLen {
		return 0, fmt.Errorf("%w: short setup params", ErrPduNegotiationFailed)
	}
	params := rest[:h.ParamLen]
	if params[0] != s7FuncSetupComm {
		return 0, fmt.Errorf("%w: unexpected function 0x%02X", ErrPduNegotiationFailed, params[0])
	}
	pduLength := binary.BigEndian.Uint16(params[6:8])
	if pduLength < 16 || pduLength > 960 {
		return 0, fmt.Errorf("%w: negotiated pdu length %d out of range", ErrPduNegotiationFailed, pduLength)
	}
	return pduLength, nil
}

// --- ReadVar / WriteVar item descriptors --------------------------------

// transportSizeCode returns the request-item transport-size code for a
// word length.
func transportSizeCode(w WordLen) byte {
	if w == WordLenBit {
		return tsReqBit
	}
	return tsReqByte
}

// encodeS7AnyItem encodes a single S7ANY request item descriptor.
func encodeS7AnyItem(addr Address) []byte {
	bitAddr := addr.Start
	if addr.WordLen == WordLenByte {
		bitAddr = addr.byteOffset() * 8
	}

	dbNumber := addr.DBNumber
	if addr.Area != AreaDB {
		dbNumber = 0
	}

	return []byte{
		s7AnySpecType,
		s7AnyLen,
		s7AnySyntaxID,
		transportSizeCode(addr.WordLen),
		byte(addr.Count >> 8), byte(addr.Count),
		byte(dbNumber >> 8), byte(dbNumber),
		byte(addr.Area),
		byte(bitAddr >> 16), byte(bitAddr >> 8), byte(bitAddr),
	}
}

// encodeDataItem encodes one data item (payload + header) as it appears
// in a WriteVar request or a ReadVar reply. The first byte is the
// return-code slot, written as 0x00 as in a WriteVar request; a ReadVar
// reply carries its return code (0xFF on success) there instead. Per this
// protocol's pinned convention, the length field is in bits for
// WordLenBit and in bytes for WordLenByte.
func encodeDataItem(wordLen WordLen, payload []byte) []byte {
	tsCode := byte(tsDataByte)
	length := len(payload)
	if wordLen == WordLenBit {
		tsCode = tsDataBit
		length = len(payload) * 8
	}
	item := []byte{0x00, tsCode, byte(length >> 8), byte(length)}
	item = append(item, payload...)
	if len(payload)%2 == 1 {
		item = append(item, 0x00) // pad to even boundary
	}
	return item
}

// decodeDataItem decodes one data item from data, returning the payload,
// the return code, and the number of bytes (including any pad byte)
// consumed from data.
func decodeDataItem(data []byte) (payload []byte, returnCode byte, consumed int, err error) {
	if len(data) < 1 {
		return nil, 0, 0, fmt.Errorf("%w: empty data item", ErrIsoInvalidTelegram)
	}
	returnCode = data[0]
	if returnCode != itemReturnSuccess {
		return nil, returnCode, 1, nil
	}
	if len(data) < 4 {
		return nil, 0, 0, fmt.Errorf("%w: short data item header", ErrIsoInvalidTelegram)
	}
	tsCode := data[1]
	length := int(binary.BigEndian.Uint16(data[2:4]))

	byteLen := length
	if tsCode == tsDataBit {
		byteLen = (length + 7) / 8
	}

	if 4+byteLen > len(data) {
		return nil, 0, 0, fmt.Errorf("%w: truncated data item", ErrIsoInvalidTelegram)
	}
	payload = make([]byte, byteLen)
	copy(payload, data[4:4+byteLen])

	consumed = 4 + byteLen
	if byteLen%2 == 1 {
		consumed++
	}
	return payload, returnCode, consumed, nil
}

// --- ReadVar request/response -------------------------------------------

// encodeReadVarRequest builds a complete ReadVar Job telegram for the
// given items.
func encodeReadVarRequest(pduRef uint16, items []Address) []byte {
	params := []byte{s7FuncReadVar, byte(len(items))}
	for _, it := range items {
		params = append(params, encodeS7AnyItem(it)...)
	}
	header := encodeS7JobHeader(pduRef, len(params), 0)
	return append(header, params...)
}

// decodeReadVarResponse parses a ReadVar Ack-Data telegram carrying
// itemCount items and returns each item's payload (nil on a per-item
// error) and per-item errors.
func decodeReadVarResponse(telegram []byte, wantRef uint16, itemCount int) ([][]byte, []error, error) {
	h, rest, err := decodeS7AckHeader(telegram)
	if err != nil {
		return nil, nil, err
	}
	if h.PduRef != wantRef {
		return nil, nil, fmt.Errorf("%w: pdu-ref mismatch", ErrIsoInvalidTelegram)
	}
	if err := classifyHeaderError(h.ErrClass, h.ErrCode); err != nil {
		return nil, nil, err
	}
	if len(rest) < h.ParamLen {
		return nil, nil, fmt.Errorf("%w: short param block", ErrIsoInvalidTelegram)
	}
	data := rest[h.ParamLen:]
	if len(data) < h.DataLen {
		return nil, nil, fmt.Errorf("%w: short data block", ErrIsoInvalidTelegram)
	}
	data = data[:h.DataLen]

	payloads := make([][]byte, itemCount)
	errs := make([]error, itemCount)
	pos := 0
	for i := 0; i < itemCount; i++ {
		if pos >= len(data) {
			errs[i] = fmt.Errorf("%w: missing item %d", ErrIsoInvalidTelegram, i)
			continue
		}
		payload, returnCode, consumed, err := decodeDataItem(data[pos:])
		if err != nil {
			return nil, nil, err
		}
		pos += consumed
		if returnCode != itemReturnSuccess {
			errs[i] = classifyItemError(returnCode)
			continue
		}
		payloads[i] = payload
	}
	return payloads, errs, nil
}

// --- WriteVar request/response -------------------------------------------

// encodeWriteVarRequest builds a complete WriteVar Job telegram for a
// single item carrying payload.
func encodeWriteVarRequest(pduRef uint16, item Address, payload []byte) []byte {
	params := []byte{s7FuncWriteVar, 0x01}
	params = append(params, encodeS7AnyItem(item)...)
	dataSection := encodeDataItem(item.WordLen, payload)
	header := encodeS7JobHeader(pduRef, len(params), len(dataSection))
	out := append(header, params...)
	out = append(out, dataSection...)
	return out
}

// decodeWriteVarResponse parses a WriteVar Ack-Data telegram for a single
// item and returns the item's error, if any.
func decodeWriteVarResponse(telegram []byte, wantRef uint16) error {
	h, rest, err := decodeS7AckHeader(telegram)
	if err != nil {
		return err
	}
	if h.PduRef != wantRef {
		return fmt.Errorf("%w: pdu-ref mismatch", ErrIsoInvalidTelegram)
	}
	if err := classifyHeaderError(h.ErrClass, h.ErrCode); err != nil {
		return err
	}
	if len(rest) < h.ParamLen {
		return fmt.Errorf("%w: short param block", ErrIsoInvalidTelegram)
	}
	data := rest[h.ParamLen:]
	if len(data) < 1 {
		return fmt.Errorf("%w: missing write response item", ErrIsoInvalidTelegram)
	}
	if data[0] != itemReturnSuccess {
		return classifyItemError(data[0])
	}
	return nil
}
