// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package ads

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
)

func TestParseNetID(t *testing.T) {
	id, err := ParseNetID("192.168.1.100.1.1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := id.String(); got != "192.168.1.100.1.1" {
		t.Fatalf("round trip = %q", got)
	}

	for _, bad := range []string{"", "1.2.3.4", "1.2.3.4.5.6.7", "a.b.c.d.e.f", "1.2.3.4.5.300"} {
		if _, err := ParseNetID(bad); err == nil {
			t.Fatalf("ParseNetID(%q) accepted", bad)
		}
	}
}

// amsHandler services one decoded request and returns the response payload.
type amsHandler func(command uint16, data []byte) []byte

// startAMSServer runs a one-connection AMS/TCP responder on loopback.
func startAMSServer(t *testing.T, handle amsHandler) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var tcpHeader [6]byte
			if _, err := io.ReadFull(conn, tcpHeader[:]); err != nil {
				return
			}
			packet := make([]byte, binary.LittleEndian.Uint32(tcpHeader[2:]))
			if _, err := io.ReadFull(conn, packet); err != nil {
				return
			}

			command := binary.LittleEndian.Uint16(packet[16:])
			invokeID := binary.LittleEndian.Uint32(packet[28:])
			respData := handle(command, packet[amsHeaderLen:])

			resp := make([]byte, 6+amsHeaderLen+len(respData))
			binary.LittleEndian.PutUint32(resp[2:], uint32(amsHeaderLen+len(respData)))
			h := resp[6:]
			// Swap source and target.
			copy(h[0:8], packet[8:16])
			copy(h[8:16], packet[0:8])
			binary.LittleEndian.PutUint16(h[16:], command)
			binary.LittleEndian.PutUint16(h[18:], 0x0005)
			binary.LittleEndian.PutUint32(h[20:], uint32(len(respData)))
			binary.LittleEndian.PutUint32(h[28:], invokeID)
			copy(h[amsHeaderLen:], respData)
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
	return listener.Addr().String()
}

// dialTest connects a Client to the test server, bypassing the fixed AMS
// port.
func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	local := conn.LocalAddr().(*net.TCPAddr)
	sourceID, err := NetIDFromIP(local.IP)
	if err != nil {
		t.Fatalf("source net id: %v", err)
	}
	target, _ := ParseNetID("192.168.1.50.1.1")
	return &Client{
		conn:   conn,
		target: Addr{NetID: target, Port: SystemServicePort},
		source: Addr{NetID: sourceID, Port: uint16(local.Port)},
	}
}

func TestReadState(t *testing.T) {
	addr := startAMSServer(t, func(command uint16, data []byte) []byte {
		if command != cmdReadState {
			t.Errorf("command = %d, want %d", command, cmdReadState)
		}
		resp := make([]byte, 8)
		binary.LittleEndian.PutUint16(resp[4:], 5) // ads state RUN
		binary.LittleEndian.PutUint16(resp[6:], 1)
		return resp
	})

	c := dialTest(t, addr)
	adsState, deviceState, err := c.ReadState(context.Background())
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if adsState != 5 || deviceState != 1 {
		t.Fatalf("state = %d/%d, want 5/1", adsState, deviceState)
	}
}

func TestReadWriteFrames(t *testing.T) {
	var gotGroup, gotOffset, gotReadLen uint32
	var gotPayload []byte
	addr := startAMSServer(t, func(command uint16, data []byte) []byte {
		if command != cmdReadWrite {
			t.Errorf("command = %d, want %d", command, cmdReadWrite)
		}
		gotGroup = binary.LittleEndian.Uint32(data)
		gotOffset = binary.LittleEndian.Uint32(data[4:])
		gotReadLen = binary.LittleEndian.Uint32(data[8:])
		writeLen := binary.LittleEndian.Uint32(data[12:])
		gotPayload = data[16 : 16+writeLen]

		resp := make([]byte, 8, 12)
		binary.LittleEndian.PutUint32(resp[4:], 4)
		return append(resp, 0xEF, 0xBE, 0xAD, 0xDE)
	})

	c := dialTest(t, addr)
	out, err := c.ReadWrite(context.Background(), groupFileOpen, fopenRead, 4, []byte("C:/test\x00"))
	if err != nil {
		t.Fatalf("read/write: %v", err)
	}
	if gotGroup != groupFileOpen || gotOffset != fopenRead || gotReadLen != 4 {
		t.Fatalf("request fields = %d/%d/%d", gotGroup, gotOffset, gotReadLen)
	}
	if string(gotPayload) != "C:/test\x00" {
		t.Fatalf("payload = %q", gotPayload)
	}
	if binary.LittleEndian.Uint32(out) != 0xDEADBEEF {
		t.Fatalf("response = %x", out)
	}
}

func TestResultCodeBecomesError(t *testing.T) {
	addr := startAMSServer(t, func(command uint16, data []byte) []byte {
		resp := make([]byte, 4)
		binary.LittleEndian.PutUint32(resp, 0x70C)
		return resp
	})

	c := dialTest(t, addr)
	err := c.Write(context.Background(), groupStartProcess, 0, []byte("x"))
	var adsErr *Error
	if !errors.As(err, &adsErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if adsErr.Code != 0x70C {
		t.Fatalf("code = %x, want 0x70c", adsErr.Code)
	}
	if !strings.Contains(adsErr.Error(), "not found") {
		t.Fatalf("message = %q", adsErr.Error())
	}
}
