// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link defines the register-level transport used to talk to the IMU
// module, plus the catalog of registers the module exposes.
//
// A Transport is anything that can read, write and subscribe to named
// registers. The ble subpackage talks GATT directly; the bridge subpackage
// tunnels the same operations through a serial or WebSocket dongle.
package link

import (
	"fmt"
	"strings"
)

// Register identifies one addressable register (GATT characteristic).
type Register uint8

// Register catalog
const (
	RegIdentity Register = iota
	RegIMUCalibration
	RegIMUConfiguration
	RegIMUData
	RegFileBlock
	RegFileLength
	RegFileMaxLength
	RegFileTransferType
	RegFileChecksum
	RegFileCommand
	RegFileStatus
	RegFileErrorMessage
	RegInferenceEnabled
	RegInferenceType
	RegInferenceClassCount
	RegInferenceDataTypes
	RegInferenceSampleRate
	RegInferenceSampleCount
	RegInferenceThresholds
	RegInferenceCaptureDelay
	RegMakeInference
	RegInferenceResult
	RegBatteryLevel

	NumRegisters
)

// ServiceUUID is the primary service advertised by the module.
const ServiceUUID = "ca51b65e-1c92-4e54-9bd7-fc1088f48832"

// BatteryServiceUUID is the standard GATT battery service.
const BatteryServiceUUID = "0000180f-0000-1000-8000-00805f9b34fb"

type registerInfo struct {
	name     string
	uuid     string
	notify   bool
	optional bool
}

// Registers that are not in the original two-characteristic firmware live in
// the vendor range derived from the service UUID.
func vendorUUID(id uint16) string {
	return fmt.Sprintf("ca51%04x-1c92-4e54-9bd7-fc1088f48832", id)
}

var registers = [NumRegisters]registerInfo{
	RegIdentity:              {name: "identity", uuid: vendorUUID(0x0001)},
	RegIMUCalibration:        {name: "imu-calibration", uuid: vendorUUID(0x0101), notify: true},
	RegIMUConfiguration:      {name: "imu-configuration", uuid: "816ad53c-29df-4699-b25a-4acdf89699d6"},
	RegIMUData:               {name: "imu-data", uuid: "bb52dc35-1a47-41c1-ae97-ce138dbf2cab", notify: true},
	RegFileBlock:             {name: "file-block", uuid: vendorUUID(0x0201)},
	RegFileLength:            {name: "file-length", uuid: vendorUUID(0x0202)},
	RegFileMaxLength:         {name: "file-max-length", uuid: vendorUUID(0x0203)},
	RegFileTransferType:      {name: "file-transfer-type", uuid: vendorUUID(0x0204)},
	RegFileChecksum:          {name: "file-checksum", uuid: vendorUUID(0x0205)},
	RegFileCommand:           {name: "file-command", uuid: vendorUUID(0x0206)},
	RegFileStatus:            {name: "file-status", uuid: vendorUUID(0x0207), notify: true},
	RegFileErrorMessage:      {name: "file-error-message", uuid: vendorUUID(0x0208), notify: true},
	RegInferenceEnabled:      {name: "inference-enabled", uuid: vendorUUID(0x0301), optional: true},
	RegInferenceType:         {name: "inference-type", uuid: vendorUUID(0x0302), optional: true},
	RegInferenceClassCount:   {name: "inference-class-count", uuid: vendorUUID(0x0303), optional: true},
	RegInferenceDataTypes:    {name: "inference-data-types", uuid: vendorUUID(0x0304), optional: true},
	RegInferenceSampleRate:   {name: "inference-sample-rate", uuid: vendorUUID(0x0305), optional: true},
	RegInferenceSampleCount:  {name: "inference-sample-count", uuid: vendorUUID(0x0306), optional: true},
	RegInferenceThresholds:   {name: "inference-thresholds", uuid: vendorUUID(0x0307), optional: true},
	RegInferenceCaptureDelay: {name: "inference-capture-delay", uuid: vendorUUID(0x0308), optional: true},
	RegMakeInference:         {name: "make-inference", uuid: vendorUUID(0x0309), optional: true},
	RegInferenceResult:       {name: "inference-result", uuid: vendorUUID(0x030a), notify: true, optional: true},
	RegBatteryLevel:          {name: "battery-level", uuid: "00002a19-0000-1000-8000-00805f9b34fb", notify: true},
}

// String returns the register's catalog name.
func (r Register) String() string {
	if r < NumRegisters {
		return registers[r].name
	}
	return fmt.Sprintf("register(%d)", uint8(r))
}

// UUID returns the register's characteristic UUID in canonical lowercase form.
func (r Register) UUID() string {
	if r < NumRegisters {
		return registers[r].uuid
	}
	return ""
}

// Notifies reports whether the register pushes notifications that a session
// subscribes to on connect.
func (r Register) Notifies() bool {
	return r < NumRegisters && registers[r].notify
}

// Optional reports whether a device may legitimately lack the register.
// Only inference registers are optional; older firmware has no model support.
func (r Register) Optional() bool {
	return r < NumRegisters && registers[r].optional
}

// Service returns the UUID of the service that owns the register.
func (r Register) Service() string {
	if r == RegBatteryLevel {
		return BatteryServiceUUID
	}
	return ServiceUUID
}

// AllRegisters returns the full catalog in declaration order.
func AllRegisters() []Register {
	regs := make([]Register, NumRegisters)
	for i := range regs {
		regs[i] = Register(i)
	}
	return regs
}

// NotifyRegisters returns the registers a session subscribes to on connect.
func NotifyRegisters() []Register {
	var regs []Register
	for _, r := range AllRegisters() {
		if r.Notifies() {
			regs = append(regs, r)
		}
	}
	return regs
}

// LookupUUID resolves a characteristic UUID to its register.
func LookupUUID(uuid string) (Register, bool) {
	uuid = strings.ToLower(uuid)
	for i, info := range registers {
		if info.uuid == uuid {
			return Register(i), true
		}
	}
	return 0, false
}

// ParseRegister resolves a register by catalog name.
func ParseRegister(name string) (Register, error) {
	for i, info := range registers {
		if info.name == name {
			return Register(i), nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", name)
}
