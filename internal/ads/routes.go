// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package ads

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Route is one configured static route to a target.
type Route struct {
	Name    string
	NetID   string
	Address string
}

type staticRoutesFile struct {
	Routes []struct {
		Name    string `xml:"Name"`
		NetID   string `xml:"NetId"`
		Address string `xml:"Address"`
	} `xml:"RemoteConnections>Route"`
}

// StaticRoutesPath returns the router's StaticRoutes.xml location, derived
// from the TWINCAT3DIR environment variable. Empty when no router is
// installed.
func StaticRoutesPath() string {
	dir := os.Getenv("TWINCAT3DIR")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "Target", "StaticRoutes.xml")
}

// LoadStaticRoutes parses the static route list at path. Routes missing a
// name, net id or address are skipped.
func LoadStaticRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed staticRoutesFile
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var routes []Route
	for _, r := range parsed.Routes {
		if r.Name == "" || r.NetID == "" || r.Address == "" {
			continue
		}
		routes = append(routes, Route{Name: r.Name, NetID: r.NetID, Address: r.Address})
	}
	return routes, nil
}

// FindRoute returns the static route whose name or address matches host.
func FindRoute(routes []Route, host string) (Route, bool) {
	for _, r := range routes {
		if r.Name == host || r.Address == host {
			return r, true
		}
	}
	return Route{}, false
}
