package s7

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestSessionHandshakeSuccess(t *testing.T) {
	tr, server := newTestTransport(t)
	go func() {
		if _, err := readOneFrame(server); err != nil {
			return
		}
		writeFrame(server, []byte{0x06, cotpCC, 0x00, 0x00, 0x00, 0x01, 0x00})

		payload, err := readOneFrame(server)
		if err != nil {
			return
		}
		s7Telegram := payload[3:]
		ref := binary.BigEndian.Uint16(s7Telegram[4:6])
		params := []byte{s7FuncSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0xF0}
		ack := encodeS7AckHeader(ref, len(params), 0)
		ack = append(ack, params...)
		writeFrame(server, wrapCOTPData(ack))
	}()

	var s session
	pduRef := uint16(1)
	if err := s.handshake(tr, 0x0100, 0x0102, &pduRef); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if s.state != stateReady {
		t.Errorf("state = %v, want stateReady", s.state)
	}
	if s.pduLength != 0x00F0 {
		t.Errorf("pduLength = %d, want %d", s.pduLength, 0x00F0)
	}
	if pduRef != 2 {
		t.Errorf("pduRef = %d, want 2 (incremented once for setup comm)", pduRef)
	}
}

func TestSessionHandshakeCotpRejected(t *testing.T) {
	tr, server := newTestTransport(t)
	go func() {
		if _, err := readOneFrame(server); err != nil {
			return
		}
		// Wrong PDU type: not a Connection Confirm.
		writeFrame(server, []byte{0x02, 0x00, 0x00})
	}()

	var s session
	pduRef := uint16(1)
	err := s.handshake(tr, 0x0100, 0x0102, &pduRef)
	if !errors.Is(err, ErrIsoConnectionFailed) {
		t.Fatalf("err = %v, want ErrIsoConnectionFailed", err)
	}
	if s.state != stateDisconnected {
		t.Errorf("state = %v, want stateDisconnected", s.state)
	}
}

func TestSessionHandshakeSetupCommFailure(t *testing.T) {
	tr, server := newTestTransport(t)
	go func() {
		if _, err := readOneFrame(server); err != nil {
			return
		}
		writeFrame(server, []byte{0x06, cotpCC, 0x00, 0x00, 0x00, 0x01, 0x00})

		payload, err := readOneFrame(server)
		if err != nil {
			return
		}
		s7Telegram := payload[3:]
		ref := binary.BigEndian.Uint16(s7Telegram[4:6])
		params := []byte{s7FuncSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0xF0}
		ack := make([]byte, 12)
		ack[0] = s7ProtocolID
		ack[1] = s7MsgAckData
		ack[4] = byte(ref >> 8)
		ack[5] = byte(ref)
		ack[6] = byte(len(params) >> 8)
		ack[7] = byte(len(params))
		ack[10] = errClassService // non-zero error class
		ack[11] = 0x01
		ack = append(ack, params...)
		writeFrame(server, wrapCOTPData(ack))
	}()

	var s session
	pduRef := uint16(1)
	err := s.handshake(tr, 0x0100, 0x0102, &pduRef)
	if !errors.Is(err, ErrPduNegotiationFailed) {
		t.Fatalf("err = %v, want ErrPduNegotiationFailed", err)
	}
	if s.state != stateDisconnected {
		t.Errorf("state = %v, want stateDisconnected", s.state)
	}
}

func TestConnStateString(t *testing.T) {
	tests := []struct {
		s    connState
		want string
	}{
		{stateDisconnected, "Disconnected"},
		{stateTCPOpen, "TcpOpen"},
		{stateIsoConnected, "IsoConnected"},
		{stateReady, "Ready"},
		{connState(99), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
