// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/plcforge/pkgbridge/internal/ads"
)

// ErrUnavailable indicates no out-of-band route to the target exists, so a
// bootstrap cannot even be attempted.
var ErrUnavailable = errors.New("no out-of-band channel to target")

// ErrRejected indicates the target (or the operator) denied the bootstrap.
var ErrRejected = errors.New("bootstrap rejected")

// Channel is the out-of-band surface a bootstrap needs on the target.
// The production implementation rides the ADS system service; tests script
// a fake.
type Channel interface {
	CheckConnection(ctx context.Context) error
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	FileExists(ctx context.Context, path string) bool
	StartProcess(ctx context.Context, command, workingDir string, timeoutMs int) error
	Close() error
}

type adsChannel struct {
	client *ads.Client
	svc    *ads.SystemService
}

// OpenADSChannel connects to host's system service. netID may be empty, in
// which case the locally configured static routes are consulted; a host
// with no route yields ErrUnavailable.
func OpenADSChannel(ctx context.Context, host, netID string) (Channel, error) {
	if netID == "" {
		path := ads.StaticRoutesPath()
		if path == "" {
			return nil, fmt.Errorf("%w: no router installed (TWINCAT3DIR unset)", ErrUnavailable)
		}
		routes, err := ads.LoadStaticRoutes(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		route, ok := ads.FindRoute(routes, host)
		if !ok {
			return nil, fmt.Errorf("%w: no static route for %s", ErrUnavailable, host)
		}
		netID = route.NetID
	}

	id, err := ads.ParseNetID(netID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	client, err := ads.Dial(ctx, host, ads.Addr{NetID: id, Port: ads.SystemServicePort})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &adsChannel{client: client, svc: ads.NewSystemService(client)}, nil
}

func (c *adsChannel) CheckConnection(ctx context.Context) error {
	return c.svc.CheckConnection(ctx)
}

func (c *adsChannel) ReadFile(ctx context.Context, path string) (string, error) {
	return c.svc.ReadFile(ctx, path)
}

func (c *adsChannel) WriteFile(ctx context.Context, path, content string) error {
	return c.svc.WriteFile(ctx, path, content)
}

func (c *adsChannel) FileExists(ctx context.Context, path string) bool {
	return c.svc.FileExists(ctx, path)
}

func (c *adsChannel) StartProcess(ctx context.Context, command, workingDir string, timeoutMs int) error {
	return c.svc.StartProcess(ctx, command, workingDir, timeoutMs)
}

func (c *adsChannel) Close() error {
	return c.client.Close()
}
