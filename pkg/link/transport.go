// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
)

// Connection-time errors
var (
	ErrDeviceNotFound        = errors.New("device not found")
	ErrServiceMissing        = errors.New("service missing")
	ErrCharacteristicMissing = errors.New("characteristic missing")
	ErrClosed                = errors.New("transport closed")
)

// MissingRegisterError reports a required register absent from the device.
// It unwraps to ErrCharacteristicMissing.
type MissingRegisterError struct {
	Register Register
}

func (e *MissingRegisterError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrCharacteristicMissing, e.Register, e.Register.UUID())
}

func (e *MissingRegisterError) Unwrap() error {
	return ErrCharacteristicMissing
}

// NotifyHandler receives the raw value of a register notification. Handlers
// run on the transport's goroutine and must not block.
type NotifyHandler func(data []byte)

// Transport provides register-level access to one device.
//
// Operations against the same register complete in issue order; there is no
// ordering guarantee across registers. Every call may fail independently.
type Transport interface {
	// Open selects the device, establishes the link and discovers registers.
	// It fails with ErrDeviceNotFound, ErrServiceMissing or a
	// *MissingRegisterError.
	Open(ctx context.Context) error

	// Has reports whether the device exposes the register. Valid after Open.
	Has(reg Register) bool

	Read(ctx context.Context, reg Register) ([]byte, error)
	Write(ctx context.Context, reg Register, data []byte) error

	// Subscribe enables notifications on reg. A later Subscribe on the same
	// register replaces the handler.
	Subscribe(ctx context.Context, reg Register, fn NotifyHandler) error

	// OnDisconnect registers a callback invoked once per unexpected link loss.
	// It is not invoked for Close.
	OnDisconnect(fn func(err error))

	// Close tears down the link. It is safe to call more than once.
	Close() error

	// Name describes the link for logs, e.g. "BLE AA:BB:..".
	Name() string
}

// CheckRequired returns a *MissingRegisterError for the first required
// register that has reports missing.
func CheckRequired(has func(Register) bool) error {
	for _, r := range AllRegisters() {
		if r.Optional() {
			continue
		}
		if !has(r) {
			return &MissingRegisterError{Register: r}
		}
	}
	return nil
}
