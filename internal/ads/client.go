// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package ads is a minimal AMS/ADS client for the TwinCAT system service.
// It speaks the AMS/TCP framing directly, enough for the file and process
// operations a trust bootstrap needs. It is not a general purpose ADS
// library.
package ads

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/plcforge/pkgbridge/internal/logging"
)

// TCPPort is the AMS router's TCP port.
const TCPPort = 48898

// AMS command ids.
const (
	cmdRead      = 2
	cmdWrite     = 3
	cmdReadState = 4
	cmdReadWrite = 9
)

// stateFlagsRequest marks an ADS command request over TCP.
const stateFlagsRequest = 0x0004

const amsHeaderLen = 32

// Error is a non-zero ADS result code.
type Error struct {
	Code uint32
}

func (e *Error) Error() string {
	switch e.Code {
	case 0x6:
		return "ads error 0x6: target port not found"
	case 0x7:
		return "ads error 0x7: target machine not found"
	case 0x701:
		return "ads error 0x701: service is not supported by server"
	case 0x70C:
		return "ads error 0x70c: not found (file or registry entry)"
	case 0x716:
		return "ads error 0x716: device has a real time violation"
	case 0x745:
		return "ads error 0x745: timeout elapsed"
	default:
		return fmt.Sprintf("ads error 0x%x", e.Code)
	}
}

// Client is one AMS/TCP connection to a target router. Calls are
// synchronous request/response; the client is not safe for concurrent use.
type Client struct {
	conn     net.Conn
	target   Addr
	source   Addr
	invokeID uint32
}

// DialTimeout bounds the TCP connect and each round trip.
const DialTimeout = 10 * time.Second

// Dial connects to the AMS router at host (the target's IP) and addresses
// packets to target. The source net id is derived from the connection's
// local address.
func Dial(ctx context.Context, host string, target Addr) (*Client, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(TCPPort)))
	if err != nil {
		return nil, fmt.Errorf("ads: dial %s: %w", host, err)
	}

	local := conn.LocalAddr().(*net.TCPAddr)
	sourceID, err := NetIDFromIP(local.IP)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ads: derive source net id: %w", err)
	}

	logging.Debugf("ads: connected to %s as %s", target, sourceID)
	return &Client{
		conn:   conn,
		target: target,
		source: Addr{NetID: sourceID, Port: uint16(local.Port)},
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ReadState queries the target's ADS and device state. A nil error means
// the system service answered, i.e. the target is reachable over ADS.
func (c *Client) ReadState(ctx context.Context) (adsState, deviceState uint16, err error) {
	resp, err := c.roundTrip(ctx, cmdReadState, nil)
	if err != nil {
		return 0, 0, err
	}
	if len(resp) < 8 {
		return 0, 0, fmt.Errorf("ads: short read state response (%d bytes)", len(resp))
	}
	if code := binary.LittleEndian.Uint32(resp); code != 0 {
		return 0, 0, &Error{Code: code}
	}
	return binary.LittleEndian.Uint16(resp[4:]), binary.LittleEndian.Uint16(resp[6:]), nil
}

// Write issues an ADS write to the given index group and offset.
func (c *Client) Write(ctx context.Context, group, offset uint32, data []byte) error {
	req := make([]byte, 12+len(data))
	binary.LittleEndian.PutUint32(req, group)
	binary.LittleEndian.PutUint32(req[4:], offset)
	binary.LittleEndian.PutUint32(req[8:], uint32(len(data)))
	copy(req[12:], data)

	resp, err := c.roundTrip(ctx, cmdWrite, req)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("ads: short write response (%d bytes)", len(resp))
	}
	if code := binary.LittleEndian.Uint32(resp); code != 0 {
		return &Error{Code: code}
	}
	return nil
}

// ReadWrite issues an ADS read/write: writeData goes to the given index
// group and offset, up to readLen bytes come back.
func (c *Client) ReadWrite(ctx context.Context, group, offset uint32, readLen int, writeData []byte) ([]byte, error) {
	req := make([]byte, 16+len(writeData))
	binary.LittleEndian.PutUint32(req, group)
	binary.LittleEndian.PutUint32(req[4:], offset)
	binary.LittleEndian.PutUint32(req[8:], uint32(readLen))
	binary.LittleEndian.PutUint32(req[12:], uint32(len(writeData)))
	copy(req[16:], writeData)

	resp, err := c.roundTrip(ctx, cmdReadWrite, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 8 {
		return nil, fmt.Errorf("ads: short read/write response (%d bytes)", len(resp))
	}
	if code := binary.LittleEndian.Uint32(resp); code != 0 {
		return nil, &Error{Code: code}
	}
	n := binary.LittleEndian.Uint32(resp[4:])
	if int(n) > len(resp)-8 {
		return nil, fmt.Errorf("ads: response claims %d bytes, carries %d", n, len(resp)-8)
	}
	return resp[8 : 8+n], nil
}

// roundTrip frames one AMS request, sends it, and returns the matching
// response payload.
func (c *Client) roundTrip(ctx context.Context, command uint16, data []byte) ([]byte, error) {
	c.invokeID++
	id := c.invokeID

	frame := make([]byte, 6+amsHeaderLen+len(data))
	// AMS/TCP header: 2 reserved bytes, then the length of what follows.
	binary.LittleEndian.PutUint32(frame[2:], uint32(amsHeaderLen+len(data)))

	h := frame[6:]
	copy(h[0:6], c.target.NetID[:])
	binary.LittleEndian.PutUint16(h[6:], c.target.Port)
	copy(h[8:14], c.source.NetID[:])
	binary.LittleEndian.PutUint16(h[14:], c.source.Port)
	binary.LittleEndian.PutUint16(h[16:], command)
	binary.LittleEndian.PutUint16(h[18:], stateFlagsRequest)
	binary.LittleEndian.PutUint32(h[20:], uint32(len(data)))
	// error code (24:28) zero on requests
	binary.LittleEndian.PutUint32(h[28:], id)
	copy(h[amsHeaderLen:], data)

	deadline := time.Now().Add(DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("ads: send command %d: %w", command, err)
	}

	for {
		var tcpHeader [6]byte
		if _, err := io.ReadFull(c.conn, tcpHeader[:]); err != nil {
			return nil, fmt.Errorf("ads: read response: %w", err)
		}
		n := binary.LittleEndian.Uint32(tcpHeader[2:])
		if n < amsHeaderLen || n > 1<<24 {
			return nil, fmt.Errorf("ads: implausible response length %d", n)
		}
		packet := make([]byte, n)
		if _, err := io.ReadFull(c.conn, packet); err != nil {
			return nil, fmt.Errorf("ads: read response: %w", err)
		}

		// Skip unrelated traffic, e.g. responses to a timed-out
		// earlier request.
		if binary.LittleEndian.Uint32(packet[28:]) != id {
			continue
		}
		if code := binary.LittleEndian.Uint32(packet[24:]); code != 0 {
			return nil, &Error{Code: code}
		}
		return packet[amsHeaderLen:], nil
	}
}
