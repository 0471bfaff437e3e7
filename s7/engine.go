package s7

import "fmt"

// readCapacity returns the maximum per-chunk payload size (bytes, or
// bits when wordLen is WordLenBit) that fits in one ReadVar reply for
// the negotiated PDU length.
func readCapacity(pduLength uint16, wordLen WordLen) int {
	if wordLen == WordLenBit {
		return 1
	}
	c := int(pduLength) - 18
	if c < 1 {
		c = 1
	}
	return c
}

// writeCapacity is readCapacity's counterpart for WriteVar requests,
// which carry a larger header/parameter overhead.
func writeCapacity(pduLength uint16, wordLen WordLen) int {
	if wordLen == WordLenBit {
		return 1
	}
	c := int(pduLength) - 28
	if c < 1 {
		c = 1
	}
	return c
}

// readChunk sends one ReadVar Job for a single item and returns its
// payload.
func readChunk(t *transport, pduRef *uint16, addr Address) ([]byte, error) {
	ref := *pduRef
	*pduRef++

	req := wrapCOTPData(encodeReadVarRequest(ref, []Address{addr}))
	if err := t.sendFrame(req); err != nil {
		return nil, err
	}
	resp, err := t.recvFrame()
	if err != nil {
		return nil, err
	}
	telegram, err := unwrapCOTPData(resp)
	if err != nil {
		return nil, err
	}
	payloads, errs, err := decodeReadVarResponse(telegram, ref, 1)
	if err != nil {
		return nil, err
	}
	if errs[0] != nil {
		return nil, errs[0]
	}
	return payloads[0], nil
}

// writeChunk sends one WriteVar Job for a single item carrying payload.
func writeChunk(t *transport, pduRef *uint16, addr Address, payload []byte) error {
	ref := *pduRef
	*pduRef++

	req := wrapCOTPData(encodeWriteVarRequest(ref, addr, payload))
	if err := t.sendFrame(req); err != nil {
		return err
	}
	resp, err := t.recvFrame()
	if err != nil {
		return err
	}
	telegram, err := unwrapCOTPData(resp)
	if err != nil {
		return err
	}
	return decodeWriteVarResponse(telegram, ref)
}

// readArea reads len(buf) bytes (or, for WordLenBit, len(buf) individual
// bits) starting at start, splitting the transfer into as many chunks as
// the negotiated PDU length requires. It returns the number of chunks
// used.
func readArea(t *transport, pduLength uint16, pduRef *uint16, area Area, db uint16, start uint32, wordLen WordLen, buf []byte) (int, error) {
	capacity := readCapacity(pduLength, wordLen)
	n := len(buf)
	chunks := 0
	offset := 0
	for offset < n {
		chunkLen := capacity
		if n-offset < chunkLen {
			chunkLen = n - offset
		}

		addr := Address{
			Area:     area,
			DBNumber: db,
			Start:    start + uint32(offset),
			WordLen:  wordLen,
			Count:    1,
		}
		if wordLen != WordLenBit {
			addr.Count = uint16(chunkLen)
		}

		payload, err := readChunk(t, pduRef, addr)
		if err != nil {
			return 0, err
		}
		if len(payload) != chunkLen {
			return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrIsoInvalidTelegram, chunkLen, len(payload))
		}
		copy(buf[offset:offset+chunkLen], payload)
		offset += chunkLen
		chunks++
	}
	return chunks, nil
}

// writeArea writes data starting at start, splitting the transfer into
// as many chunks as the negotiated PDU length requires. It returns the
// number of chunks used.
func writeArea(t *transport, pduLength uint16, pduRef *uint16, area Area, db uint16, start uint32, wordLen WordLen, data []byte) (int, error) {
	capacity := writeCapacity(pduLength, wordLen)
	n := len(data)
	chunks := 0
	offset := 0
	for offset < n {
		chunkLen := capacity
		if n-offset < chunkLen {
			chunkLen = n - offset
		}

		addr := Address{
			Area:     area,
			DBNumber: db,
			Start:    start + uint32(offset),
			WordLen:  wordLen,
			Count:    1,
		}
		if wordLen != WordLenBit {
			addr.Count = uint16(chunkLen)
		}

		if err := writeChunk(t, pduRef, addr, data[offset:offset+chunkLen]); err != nil {
			return 0, err
		}
		offset += chunkLen
		chunks++
	}
	return chunks, nil
}
