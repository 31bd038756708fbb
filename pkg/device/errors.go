// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"errors"
	"fmt"

	"github.com/imulink/imulink/pkg/link"
)

// Session and transfer errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrDisconnected       = errors.New("disconnected")
	ErrTransferInProgress = errors.New("transfer already in progress")
	ErrTransferCancelled  = errors.New("transfer cancelled")
	ErrNoTransfer         = errors.New("no transfer in progress")
	ErrStatusTimeout      = errors.New("timed out waiting for transfer status")
	ErrUnsupported        = errors.New("not supported by device firmware")
)

// WriteError reports a rejected register write.
type WriteError struct {
	Register link.Register
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s failed: %v", e.Register, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FileTooLargeError is returned before a transfer starts when the payload
// exceeds the device-reported maximum.
type FileTooLargeError struct {
	Size int
	Max  int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes (device maximum %d)", e.Size, e.Max)
}

// DeviceTransferError carries the device's error-message text verbatim.
type DeviceTransferError struct {
	Message string
}

func (e *DeviceTransferError) Error() string {
	if e.Message == "" {
		return "device reported transfer error"
	}
	return "device reported transfer error: " + e.Message
}
