// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/imulink/imulink/pkg/link"
)

// Advertisement describes a module seen while scanning.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16

	address bluetooth.Address
}

var serviceUUID = mustParseUUID(link.ServiceUUID)

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("ble: bad UUID %q: %v", s, err))
	}
	return uuid
}

// Scan lists modules advertising the service until ctx is done.
func Scan(ctx context.Context, adapter *bluetooth.Adapter) ([]Advertisement, error) {
	if err := enable(adapter); err != nil {
		return nil, fmt.Errorf("enable BLE adapter: %w", err)
	}
	return scan(ctx, adapter, nil, false)
}

// scan collects matching advertisements, deduplicated by address. With first
// set it stops at the first match.
func scan(ctx context.Context, adapter *bluetooth.Adapter, match func(Advertisement) bool, first bool) ([]Advertisement, error) {
	var (
		mu    sync.Mutex
		found []Advertisement
		seen  = make(map[string]bool)
	)

	errc := make(chan error, 1)
	go func() {
		errc <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(serviceUUID) {
				return
			}
			adv := Advertisement{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
				address: result.Address,
			}
			if match != nil && !match(adv) {
				return
			}

			mu.Lock()
			if !seen[adv.Address] {
				seen[adv.Address] = true
				found = append(found, adv)
			}
			done := first && len(found) > 0
			mu.Unlock()

			if done {
				a.StopScan()
			}
		})
	}()

	select {
	case err := <-errc:
		if err != nil {
			return nil, fmt.Errorf("BLE scan: %w", err)
		}
	case <-ctx.Done():
		adapter.StopScan()
		<-errc
	}

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}
