// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package ads

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NetID is a 6-byte AMS net id, conventionally the device's IPv4 address
// followed by ".1.1".
type NetID [6]byte

// ParseNetID parses the dotted form, e.g. "192.168.1.100.1.1".
func ParseNetID(s string) (NetID, error) {
	var id NetID
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return id, fmt.Errorf("invalid ams net id %q: want 6 octets", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return id, fmt.Errorf("invalid ams net id %q: %w", s, err)
		}
		id[i] = byte(v)
	}
	return id, nil
}

// NetIDFromIP derives the conventional net id for an IPv4 address.
func NetIDFromIP(ip net.IP) (NetID, error) {
	var id NetID
	v4 := ip.To4()
	if v4 == nil {
		return id, fmt.Errorf("no ipv4 address in %s", ip)
	}
	copy(id[:4], v4)
	id[4] = 1
	id[5] = 1
	return id, nil
}

func (n NetID) String() string {
	parts := make([]string, len(n))
	for i, b := range n {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}

// Addr is an AMS endpoint: net id plus AMS port.
type Addr struct {
	NetID NetID
	Port  uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.NetID, a.Port)
}
