package s7

import "fmt"

// connState is the handshake state machine's current phase.
type connState int

const (
	stateDisconnected connState = iota
	stateTCPOpen
	stateIsoConnected
	stateReady
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "Disconnected"
	case stateTCPOpen:
		return "TcpOpen"
	case stateIsoConnected:
		return "IsoConnected"
	case stateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// session drives the three-phase handshake over an already-constructed
// transport and records the resulting negotiated PDU length. It owns no
// socket itself — transport does — so a failed handshake simply leaves
// the transport to be closed by the caller.
type session struct {
	state     connState
	pduLength uint16
}

// handshake runs TcpOpen -> IsoConnected -> Ready over t, using
// localTSAP/remoteTSAP for the COTP connection request and proposing a
// PDU size of 960 for Setup Communication. pduRef is the shared
// PDU-reference counter; it is incremented once, for the Setup
// Communication request (the COTP request uses no S7 reference).
func (s *session) handshake(t *transport, localTSAP, remoteTSAP uint16, pduRef *uint16) error {
	s.state = stateTCPOpen

	if err := s.cotpConnect(t, localTSAP, remoteTSAP); err != nil {
		s.state = stateDisconnected
		return err
	}
	s.state = stateIsoConnected

	pduLength, err := s.setupComm(t, pduRef)
	if err != nil {
		s.state = stateDisconnected
		return err
	}

	s.pduLength = pduLength
	s.state = stateReady
	return nil
}

// cotpConnect performs the COTP Connection Request / Connection Confirm
// exchange. It does not consume a PDU-reference — COTP has its own
// TPDU numbering, outside the S7 layer's reference space.
func (s *session) cotpConnect(t *transport, localTSAP, remoteTSAP uint16) error {
	cr := encodeCOTPConnectionRequest(localTSAP, remoteTSAP)
	if err := t.sendFrame(cr); err != nil {
		return fmt.Errorf("%w: %v", ErrIsoConnectionFailed, err)
	}

	cc, err := t.recvFrame()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIsoConnectionFailed, err)
	}

	if err := decodeCOTPConnectionConfirm(cc); err != nil {
		return err
	}
	return nil
}

// setupComm performs the S7 Setup Communication exchange, proposing the
// maximum PDU size this client supports, and returns the value the PLC
// actually negotiated.
func (s *session) setupComm(t *transport, pduRef *uint16) (uint16, error) {
	const proposedPDUSize = 960

	ref := *pduRef
	*pduRef++

	req := wrapCOTPData(encodeSetupCommRequest(ref, proposedPDUSize))
	if err := t.sendFrame(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPduNegotiationFailed, err)
	}

	resp, err := t.recvFrame()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPduNegotiationFailed, err)
	}

	s7Telegram, err := unwrapCOTPData(resp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPduNegotiationFailed, err)
	}

	return decodeSetupCommResponse(s7Telegram, ref)
}
