package s7

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// newTestTransport wires a transport to one end of an in-process pipe and
// returns the other end for a fake-PLC goroutine to drive.
func newTestTransport(t *testing.T) (*transport, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	tr := &transport{
		conn:           clientConn,
		connectTimeout: time.Second,
		readTimeout:    2 * time.Second,
		writeTimeout:   2 * time.Second,
	}
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return tr, serverConn
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// fakeReadVarServer answers every ReadVar Job it receives on conn with a
// success reply carrying seq bytes (0, 1, 2, ...) of the requested
// count, and records the PDU-references it saw.
func fakeReadVarServer(t *testing.T, conn net.Conn, seen *[]uint16) {
	t.Helper()
	for {
		payload, err := readOneFrame(conn)
		if err != nil {
			return
		}
		s7Telegram := payload[3:] // strip COTP DT header
		ref := binary.BigEndian.Uint16(s7Telegram[4:6])
		*seen = append(*seen, ref)

		params := s7Telegram[10:]
		// params[0] = function code, params[1] = item count, then the
		// S7ANY item; count field is at offset 4:6 within the item.
		count := binary.BigEndian.Uint16(params[2+4 : 2+6])

		respPayload := make([]byte, count)
		for i := range respPayload {
			respPayload[i] = byte(i)
		}
		data := encodeDataItem(WordLenByte, respPayload)
		data[0] = itemReturnSuccess

		respParams := []byte{s7FuncReadVar, 0x01}
		ack := encodeS7AckHeader(ref, len(respParams), len(data))
		ack = append(ack, respParams...)
		ack = append(ack, data...)

		writeFrame(conn, wrapCOTPData(ack))
	}
}

func readOneFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, tpktHeaderSize)
	if _, err := readFull(conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(header[2:4])
	payload := make([]byte, int(length)-tpktHeaderSize)
	if _, err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(conn net.Conn, payload []byte) {
	conn.Write(encodeTPKT(payload))
}

// encodeS7AckHeader builds a 12-byte Ack-Data header with no error.
func encodeS7AckHeader(pduRef uint16, paramLen, dataLen int) []byte {
	return []byte{
		s7ProtocolID,
		s7MsgAckData,
		0x00, 0x00,
		byte(pduRef >> 8), byte(pduRef),
		byte(paramLen >> 8), byte(paramLen),
		byte(dataLen >> 8), byte(dataLen),
		0x00, 0x00,
	}
}

func TestReadAreaChunksAcrossPduBudget(t *testing.T) {
	tr, server := newTestTransport(t)
	var seenRefs []uint16
	go fakeReadVarServer(t, server, &seenRefs)

	const pduLength = uint16(222 + 18) // rMax = 222
	buf := make([]byte, 500)           // 222 + 222 + 56 = 500, three chunks
	pduRef := uint16(1)

	chunks, err := readArea(tr, pduLength, &pduRef, AreaDB, 1, 0, WordLenByte, buf)
	if err != nil {
		t.Fatalf("readArea: %v", err)
	}
	if chunks != 3 {
		t.Fatalf("chunks = %d, want 3", chunks)
	}
	if len(seenRefs) != 3 {
		t.Fatalf("server saw %d requests, want 3", len(seenRefs))
	}
	for i, ref := range seenRefs {
		if ref != uint16(1+i) {
			t.Errorf("request %d used pdu-ref %d, want %d", i, ref, 1+i)
		}
	}
	if pduRef != 4 {
		t.Errorf("pduRef counter ended at %d, want 4", pduRef)
	}
}

func TestReadAreaSingleChunk(t *testing.T) {
	tr, server := newTestTransport(t)
	var seenRefs []uint16
	go fakeReadVarServer(t, server, &seenRefs)

	buf := make([]byte, 10)
	pduRef := uint16(1)

	chunks, err := readArea(tr, 960, &pduRef, AreaMK, 0, 0, WordLenByte, buf)
	if err != nil {
		t.Fatalf("readArea: %v", err)
	}
	if chunks != 1 {
		t.Fatalf("chunks = %d, want 1", chunks)
	}
}

// fakeWriteVarServer answers every WriteVar Job with success and records
// each item's address/word-length/payload for the test to inspect.
type writeObservation struct {
	area    Area
	wordLen WordLen
	start   uint32
	payload []byte
}

func fakeWriteVarServer(t *testing.T, conn net.Conn, seen *[]writeObservation) {
	t.Helper()
	for {
		payload, err := readOneFrame(conn)
		if err != nil {
			return
		}
		s7Telegram := payload[3:]
		ref := binary.BigEndian.Uint16(s7Telegram[4:6])
		paramLen := int(binary.BigEndian.Uint16(s7Telegram[6:8]))

		params := s7Telegram[10 : 10+paramLen]
		item := params[2:]
		area := Area(item[8])
		bitAddr := uint32(item[9])<<16 | uint32(item[10])<<8 | uint32(item[11])
		wordLenCode := item[3]

		data := s7Telegram[10+paramLen:]
		tsCode := data[1]
		wordLen := WordLenByte
		start := bitAddr / 8
		if wordLenCode == tsReqBit || tsCode == tsDataBit {
			wordLen = WordLenBit
			start = bitAddr
		}

		length := int(binary.BigEndian.Uint16(data[2:4]))
		byteLen := length
		if tsCode == tsDataBit {
			byteLen = (length + 7) / 8
		}
		observedPayload := append([]byte(nil), data[4:4+byteLen]...)

		*seen = append(*seen, writeObservation{area: area, wordLen: wordLen, start: start, payload: observedPayload})

		respParams := []byte{s7FuncWriteVar, 0x01}
		ack := encodeS7AckHeader(ref, len(respParams), 1)
		ack = append(ack, respParams...)
		ack = append(ack, itemReturnSuccess)
		writeFrame(conn, wrapCOTPData(ack))
	}
}

func TestWriteBitWireShape(t *testing.T) {
	tr, server := newTestTransport(t)
	var seen []writeObservation
	go fakeWriteVarServer(t, server, &seen)

	pduRef := uint16(1)
	chunks, err := writeArea(tr, 960, &pduRef, AreaMK, 0, 3*8+5, WordLenBit, []byte{0x01})
	if err != nil {
		t.Fatalf("writeArea: %v", err)
	}
	if chunks != 1 {
		t.Fatalf("chunks = %d, want 1", chunks)
	}
	if len(seen) != 1 {
		t.Fatalf("server saw %d writes, want 1", len(seen))
	}
	obs := seen[0]
	if obs.wordLen != WordLenBit {
		t.Errorf("wordLen = %v, want WordLenBit", obs.wordLen)
	}
	if obs.start != 3*8+5 {
		t.Errorf("bit address = %d, want %d", obs.start, 3*8+5)
	}
	if len(obs.payload) != 1 || obs.payload[0] != 0x01 {
		t.Errorf("payload = %x, want [01]", obs.payload)
	}
}

func TestWriteAreaChunksAcrossPduBudget(t *testing.T) {
	tr, server := newTestTransport(t)
	var seen []writeObservation
	go fakeWriteVarServer(t, server, &seen)

	const pduLength = uint16(10 + 28) // wMax = 10
	data := make([]byte, 25)          // 10 + 10 + 5 = 25, three chunks
	pduRef := uint16(1)

	chunks, err := writeArea(tr, pduLength, &pduRef, AreaDB, 1, 100, WordLenByte, data)
	if err != nil {
		t.Fatalf("writeArea: %v", err)
	}
	if chunks != 3 {
		t.Fatalf("chunks = %d, want 3", chunks)
	}
	if len(seen) != 3 {
		t.Fatalf("server saw %d writes, want 3", len(seen))
	}
	wantStarts := []uint32{100, 110, 120}
	wantLens := []int{10, 10, 5}
	for i, obs := range seen {
		if obs.start != wantStarts[i] {
			t.Errorf("chunk %d start = %d, want %d", i, obs.start, wantStarts[i])
		}
		if len(obs.payload) != wantLens[i] {
			t.Errorf("chunk %d payload len = %d, want %d", i, len(obs.payload), wantLens[i])
		}
	}
}
