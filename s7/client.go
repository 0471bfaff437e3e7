package s7

import (
	"fmt"
	"time"
)

// Client is a blocking, single-threaded S7 protocol client. It is not
// safe for concurrent use — callers must serialize their own access.
type Client struct {
	params ConnectionParams

	transport *transport
	session   session
	pduRef    uint16

	// Connected is a latch, not a live probe: it is set by a successful
	// handshake and cleared by Disconnect or by a fatal (low-level)
	// error; high-level errors leave it set. It does not track the
	// socket's current liveness. A PLC-side disconnect is only discovered
	// on the next operation.
	Connected bool
	// LastTimeMs is the wall-clock duration, in fractional
	// milliseconds, of the last completed ReadArea/WriteArea-family
	// call. Reset to 0 on failure.
	LastTimeMs float64
	// Chunks is the number of on-wire PDUs the last operation used.
	// Reset to 0 on failure.
	Chunks int
}

// ConnectionParams holds a PLC connection profile.
type ConnectionParams struct {
	IP             string
	TCPPort        int
	ConnectionType ConnectionType
	LocalTSAP      uint16
	RemoteTSAP     uint16

	ConnectTimeoutMs int
	ReadTimeoutMs    int
	WriteTimeoutMs   int
}

// NewClient returns a disconnected client with default timeouts, default
// TCP port 102, and connection type PG.
func NewClient() *Client {
	return &Client{
		params: ConnectionParams{
			TCPPort:          102,
			ConnectionType:   ConnectionTypePG,
			ConnectTimeoutMs: 3000,
			ReadTimeoutMs:    1000,
			WriteTimeoutMs:   500,
		},
	}
}

// SetConnectionType sets the PG/OP/S7Basic profile used by the
// rack/slot connect variants. Ignored if kind is 0, or while connected.
func (c *Client) SetConnectionType(kind ConnectionType) {
	if c.Connected {
		return
	}
	if kind == 0 {
		return
	}
	c.params.ConnectionType = kind
}

// SetTimeouts sets the connect/read/write timeouts, in milliseconds.
// Any non-positive value is left unchanged. Ignored while connected.
func (c *Client) SetTimeouts(connectMs, readMs, writeMs int) {
	if c.Connected {
		return
	}
	if connectMs > 0 {
		c.params.ConnectTimeoutMs = connectMs
	}
	if readMs > 0 {
		c.params.ReadTimeoutMs = readMs
	}
	if writeMs > 0 {
		c.params.WriteTimeoutMs = writeMs
	}
}

// SetConnectionPort sets the TCP port used by subsequent connect calls.
// Ignored if port is not in 1-65535, or while connected.
func (c *Client) SetConnectionPort(port int) {
	if c.Connected {
		return
	}
	if port < 1 || port > 65535 {
		return
	}
	c.params.TCPPort = port
}

// ConnectS71200_1500 connects using rack 0, slot 0 — the conventional
// addressing for S7-1200/1500 CPUs.
func (c *Client) ConnectS71200_1500(ip string) error {
	return c.ConnectRackSlot(ip, 0, 0)
}

// ConnectS7300 connects using rack 0, slot 2 — the conventional
// addressing for S7-300/400 CPUs.
func (c *Client) ConnectS7300(ip string) error {
	return c.ConnectRackSlot(ip, 0, 2)
}

// ConnectRackSlot derives local/remote TSAPs from rack/slot and the
// currently configured ConnectionType, then connects.
func (c *Client) ConnectRackSlot(ip string, rack, slot int) error {
	localTSAP := uint16(c.params.ConnectionType)<<8 | 0x00
	remoteTSAP := uint16(0x0100) | uint16((rack<<5)|slot)
	return c.connect(ip, localTSAP, remoteTSAP)
}

// ConnectTSAP connects using the given TSAPs verbatim. ConnectionType is
// ignored here since the caller has already embedded it (if desired) in
// localTSAP.
func (c *Client) ConnectTSAP(ip string, localTSAP, remoteTSAP uint16) error {
	return c.connect(ip, localTSAP, remoteTSAP)
}

func (c *Client) connect(ip string, localTSAP, remoteTSAP uint16) error {
	c.params.IP = ip
	c.params.LocalTSAP = localTSAP
	c.params.RemoteTSAP = remoteTSAP

	t := newTransport(
		time.Duration(c.params.ConnectTimeoutMs)*time.Millisecond,
		time.Duration(c.params.ReadTimeoutMs)*time.Millisecond,
		time.Duration(c.params.WriteTimeoutMs)*time.Millisecond,
	)
	if err := t.dial(ip, c.params.TCPPort); err != nil {
		c.Connected = false
		return err
	}

	var s session
	c.pduRef = 1
	if err := s.handshake(t, localTSAP, remoteTSAP, &c.pduRef); err != nil {
		t.close()
		c.Connected = false
		return err
	}

	c.transport = t
	c.session = s
	c.Connected = true
	return nil
}

// Disconnect closes the underlying socket and clears connection state.
// It is idempotent and never fails.
func (c *Client) Disconnect() {
	if c.transport != nil {
		c.transport.close()
		c.transport = nil
	}
	c.session = session{}
	c.Connected = false
}

// ReadArea reads len(buf) bytes (or, for WordLenBit, len(buf) consecutive
// bits, one per byte of buf and one chunk each) from area starting at
// start, chunked to the negotiated PDU size.
func (c *Client) ReadArea(area Area, db uint16, start uint32, wordLen WordLen, buf []byte) error {
	if !c.Connected {
		return ErrNotConnected
	}
	begin := time.Now()

	chunks, err := readArea(c.transport, c.session.pduLength, &c.pduRef, area, db, start, wordLen, buf)
	return c.finish(begin, chunks, err)
}

// WriteArea writes data to area starting at start, chunked to the
// negotiated PDU size.
func (c *Client) WriteArea(area Area, db uint16, start uint32, wordLen WordLen, data []byte) error {
	if !c.Connected {
		return ErrNotConnected
	}
	begin := time.Now()

	chunks, err := writeArea(c.transport, c.session.pduLength, &c.pduRef, area, db, start, wordLen, data)
	return c.finish(begin, chunks, err)
}

// ReadDB reads len(buf) bytes from data block db starting at byte
// offset start.
func (c *Client) ReadDB(db uint16, start uint32, buf []byte) error {
	return c.ReadArea(AreaDB, db, start, WordLenByte, buf)
}

// WriteDB writes data to data block db starting at byte offset start.
func (c *Client) WriteDB(db uint16, start uint32, data []byte) error {
	return c.WriteArea(AreaDB, db, start, WordLenByte, data)
}

// ReadBit reads a single bit at byteOffset.bit in area (db is only
// meaningful when area is AreaDB).
func (c *Client) ReadBit(area Area, db uint16, byteOffset uint32, bit uint8) (bool, error) {
	if bit > 7 {
		return false, fmt.Errorf("%w: bit %d out of range", ErrS7InvalidAddress, bit)
	}
	if !c.Connected {
		return false, ErrNotConnected
	}
	begin := time.Now()

	bitAddr := byteOffset*8 + uint32(bit)
	buf := make([]byte, 1)
	chunks, err := readArea(c.transport, c.session.pduLength, &c.pduRef, area, db, bitAddr, WordLenBit, buf)
	if err := c.finish(begin, chunks, err); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// WriteBit writes a single bit at byteOffset.bit in area (db is only
// meaningful when area is AreaDB). The PLC performs the read-modify-
// write of the containing byte; this client never reads it itself.
func (c *Client) WriteBit(area Area, db uint16, byteOffset uint32, bit uint8, value bool) error {
	if bit > 7 {
		return fmt.Errorf("%w: bit %d out of range", ErrS7InvalidAddress, bit)
	}
	if !c.Connected {
		return ErrNotConnected
	}
	begin := time.Now()

	bitAddr := byteOffset*8 + uint32(bit)
	payload := []byte{0x00}
	if value {
		payload[0] = 0x01
	}
	chunks, err := writeArea(c.transport, c.session.pduLength, &c.pduRef, area, db, bitAddr, WordLenBit, payload)
	return c.finish(begin, chunks, err)
}

// finish records timing/chunk observables on success and resets them on
// failure, latching Connected false when err is fatal.
func (c *Client) finish(begin time.Time, chunks int, err error) error {
	if err != nil {
		c.LastTimeMs = 0
		c.Chunks = 0
		if isFatal(err) {
			c.Disconnect()
		}
		return err
	}
	c.LastTimeMs = float64(time.Since(begin)) / float64(time.Millisecond)
	c.Chunks = chunks
	return nil
}
