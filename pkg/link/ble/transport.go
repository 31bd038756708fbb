// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ble implements link.Transport over a host Bluetooth LE adapter.
package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/imulink/imulink/pkg/link"
)

// DefaultScanTimeout bounds device selection in Open.
const DefaultScanTimeout = 10 * time.Second

// readBufferSize is larger than any register value the module exposes.
const readBufferSize = 512

// Options configures a BLE Transport.
type Options struct {
	// Address selects a specific device. Empty picks the first module
	// advertising the service.
	Address     string
	ScanTimeout time.Duration
}

// Transport talks GATT to one module.
type Transport struct {
	adapter *bluetooth.Adapter
	opts    Options

	mu        sync.Mutex
	device    bluetooth.Device
	address   string
	connected bool
	closing   bool
	chars     map[link.Register]bluetooth.DeviceCharacteristic
	onLost    func(error)
}

var (
	enableOnce sync.Once
	enableErr  error

	// the adapter has a single connect handler; it fans out to live transports
	handlerMu sync.Mutex
	live      = make(map[*Transport]struct{})
)

func enable(adapter *bluetooth.Adapter) error {
	enableOnce.Do(func() {
		adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			handlerMu.Lock()
			targets := make([]*Transport, 0, len(live))
			for t := range live {
				targets = append(targets, t)
			}
			handlerMu.Unlock()
			for _, t := range targets {
				t.handleDisconnect(device)
			}
		})
		enableErr = adapter.Enable()
	})
	return enableErr
}

// New creates a transport on adapter, usually bluetooth.DefaultAdapter.
func New(adapter *bluetooth.Adapter, opts Options) *Transport {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	return &Transport{
		adapter: adapter,
		opts:    opts,
		chars:   make(map[link.Register]bluetooth.DeviceCharacteristic),
	}
}

// Name implements link.Transport.
func (t *Transport) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.address != "" {
		return "BLE " + t.address
	}
	if t.opts.Address != "" {
		return "BLE " + t.opts.Address
	}
	return "BLE"
}

// Open scans for the module, connects and discovers its registers.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := enable(t.adapter); err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}

	adv, err := t.find(ctx)
	if err != nil {
		return err
	}

	log.WithField("address", adv.Address).Debugf("connecting to %q", adv.Name)
	device, err := t.adapter.Connect(adv.address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("BLE connect %s: %w", adv.Address, err)
	}

	chars, err := discover(device)
	if err != nil {
		device.Disconnect()
		return err
	}
	if err := link.CheckRequired(func(r link.Register) bool { _, ok := chars[r]; return ok }); err != nil {
		device.Disconnect()
		return err
	}

	t.mu.Lock()
	t.device = device
	t.address = adv.Address
	t.chars = chars
	t.connected = true
	t.closing = false
	t.mu.Unlock()

	handlerMu.Lock()
	live[t] = struct{}{}
	handlerMu.Unlock()
	return nil
}

func (t *Transport) find(ctx context.Context) (Advertisement, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.ScanTimeout)
	defer cancel()

	found, err := scan(ctx, t.adapter, func(a Advertisement) bool {
		return t.opts.Address == "" || strings.EqualFold(a.Address, t.opts.Address)
	}, true)
	if err != nil {
		return Advertisement{}, err
	}
	if len(found) == 0 {
		if t.opts.Address != "" {
			return Advertisement{}, fmt.Errorf("%w: %s", link.ErrDeviceNotFound, t.opts.Address)
		}
		return Advertisement{}, link.ErrDeviceNotFound
	}
	return found[0], nil
}

// discover maps every catalog register found on the device.
func discover(device bluetooth.Device) (map[link.Register]bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("service discovery: %w", err)
	}

	chars := make(map[link.Register]bluetooth.DeviceCharacteristic)
	primary := false
	for _, service := range services {
		uuid := strings.ToLower(service.UUID().String())
		if uuid == link.ServiceUUID {
			primary = true
		}
		if uuid != link.ServiceUUID && uuid != link.BatteryServiceUUID {
			continue
		}

		discovered, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("characteristic discovery on %s: %w", uuid, err)
		}
		for _, char := range discovered {
			if reg, ok := link.LookupUUID(char.UUID().String()); ok {
				chars[reg] = char
			}
		}
	}
	if !primary {
		return nil, fmt.Errorf("%w: %s", link.ErrServiceMissing, link.ServiceUUID)
	}
	return chars, nil
}

// Has implements link.Transport.
func (t *Transport) Has(reg link.Register) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.chars[reg]
	return ok
}

func (t *Transport) char(reg link.Register) (bluetooth.DeviceCharacteristic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return bluetooth.DeviceCharacteristic{}, link.ErrClosed
	}
	c, ok := t.chars[reg]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, &link.MissingRegisterError{Register: reg}
	}
	return c, nil
}

// Read implements link.Transport. GATT reads are not cancellable; ctx is
// only checked before the read starts.
func (t *Transport) Read(ctx context.Context, reg link.Register) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := t.char(reg)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reg, err)
	}
	return buf[:n], nil
}

// Write implements link.Transport with an acknowledged GATT write.
func (t *Transport) Write(ctx context.Context, reg link.Register, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := t.char(reg)
	if err != nil {
		return err
	}
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", reg, err)
	}
	return nil
}

// Subscribe implements link.Transport.
func (t *Transport) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := t.char(reg)
	if err != nil {
		return err
	}
	err = c.EnableNotifications(func(buf []byte) {
		// the stack may reuse buf after the callback returns
		data := make([]byte, len(buf))
		copy(data, buf)
		fn(data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", reg, err)
	}
	return nil
}

// OnDisconnect implements link.Transport.
func (t *Transport) OnDisconnect(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = fn
}

func (t *Transport) handleDisconnect(device bluetooth.Device) {
	t.mu.Lock()
	if !t.connected || t.closing {
		t.mu.Unlock()
		return
	}
	if addr := device.Address.String(); !strings.EqualFold(addr, t.address) {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.chars = make(map[link.Register]bluetooth.DeviceCharacteristic)
	fn := t.onLost
	addr := t.address
	t.mu.Unlock()

	handlerMu.Lock()
	delete(live, t)
	handlerMu.Unlock()

	log.WithField("address", addr).Warn("BLE link lost")
	if fn != nil {
		fn(fmt.Errorf("BLE device %s disconnected", addr))
	}
}

// Close implements link.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.connected = false
	device := t.device
	t.chars = make(map[link.Register]bluetooth.DeviceCharacteristic)
	t.mu.Unlock()

	handlerMu.Lock()
	delete(live, t)
	handlerMu.Unlock()

	return device.Disconnect()
}
