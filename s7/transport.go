package s7

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lupaulus/s7link/logging"
)

// transport owns the TCP socket and speaks whole ISO-on-TCP frames. It
// has no knowledge of COTP or S7 semantics — callers hand it already
// framed payloads and get back whole payloads with the TPKT header
// stripped.
type transport struct {
	conn           net.Conn
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	address        string
}

// newTransport creates an unconnected transport with the given
// per-operation timeouts.
func newTransport(connectTimeout, readTimeout, writeTimeout time.Duration) *transport {
	return &transport{
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		writeTimeout:   writeTimeout,
	}
}

// dial opens the TCP connection. It does not perform any ISO or S7
// handshake.
func (t *transport) dial(ip string, port int) error {
	addr := fmt.Sprintf("%s:%d", ip, port)
	logging.DebugConnect("s7", addr)

	conn, err := net.DialTimeout("tcp", addr, t.connectTimeout)
	if err != nil {
		logging.DebugConnectError("s7", addr, err)
		return fmt.Errorf("%w: %v", ErrTcpConnectionFailed, err)
	}
	t.conn = conn
	t.address = addr
	return nil
}

// close closes the underlying socket. Safe to call on an already-closed
// or never-dialed transport.
func (t *transport) close() {
	if t.conn != nil {
		logging.DebugDisconnect("s7", t.address, "close requested")
		t.conn.Close()
		t.conn = nil
	}
}

// sendFrame writes payload with a TPKT header, under the write timeout.
func (t *transport) sendFrame(payload []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrIo, err)
	}
	frame := encodeTPKT(payload)
	logging.DebugTX("s7", frame)
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrIo, err)
	}
	return nil
}

// recvFrame reads one whole TPKT-framed payload under the read timeout,
// stripping the TPKT header.
func (t *transport) recvFrame() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	header := make([]byte, tpktHeaderSize)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrIsoFragmentedPacket, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	length, err := decodeTPKTHeader(header)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length-tpktHeaderSize)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrIsoFragmentedPacket, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	full := append(header, payload...)
	logging.DebugRX("s7", full)
	return payload, nil
}
