// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"testing"
)

func TestRegisterCatalog(t *testing.T) {
	names := make(map[string]bool)
	uuids := make(map[string]bool)
	for _, r := range AllRegisters() {
		if names[r.String()] {
			t.Errorf("duplicate register name %q", r)
		}
		if uuids[r.UUID()] {
			t.Errorf("duplicate UUID %s on %s", r.UUID(), r)
		}
		names[r.String()] = true
		uuids[r.UUID()] = true

		parsed, err := ParseRegister(r.String())
		if err != nil || parsed != r {
			t.Errorf("ParseRegister(%q) = %v, %v", r, parsed, err)
		}
	}
}

func TestRegisterUUIDs(t *testing.T) {
	tests := []struct {
		reg  Register
		uuid string
	}{
		{RegIMUConfiguration, "816ad53c-29df-4699-b25a-4acdf89699d6"},
		{RegIMUData, "bb52dc35-1a47-41c1-ae97-ce138dbf2cab"},
		{RegBatteryLevel, "00002a19-0000-1000-8000-00805f9b34fb"},
	}
	for _, tt := range tests {
		if got := tt.reg.UUID(); got != tt.uuid {
			t.Errorf("%s UUID = %s, want %s", tt.reg, got, tt.uuid)
		}
		if got, ok := LookupUUID(tt.uuid); !ok || got != tt.reg {
			t.Errorf("LookupUUID(%s) = %v, %v", tt.uuid, got, ok)
		}
	}
	if _, ok := LookupUUID("BB52DC35-1A47-41C1-AE97-CE138DBF2CAB"); !ok {
		t.Error("LookupUUID should be case-insensitive")
	}
	if RegBatteryLevel.Service() != BatteryServiceUUID || RegIMUData.Service() != ServiceUUID {
		t.Error("wrong owning service")
	}
}

func TestNotifyRegisters(t *testing.T) {
	want := map[Register]bool{
		RegIMUCalibration:   true,
		RegIMUData:          true,
		RegFileStatus:       true,
		RegFileErrorMessage: true,
		RegInferenceResult:  true,
		RegBatteryLevel:     true,
	}
	got := NotifyRegisters()
	if len(got) != len(want) {
		t.Fatalf("NotifyRegisters = %v", got)
	}
	for _, r := range got {
		if !want[r] {
			t.Errorf("unexpected notify register %s", r)
		}
	}
}

func TestCheckRequired(t *testing.T) {
	all := func(Register) bool { return true }
	if err := CheckRequired(all); err != nil {
		t.Fatalf("CheckRequired(all) = %v", err)
	}

	noInference := func(r Register) bool { return !r.Optional() }
	if err := CheckRequired(noInference); err != nil {
		t.Errorf("optional registers should not be required: %v", err)
	}

	noStatus := func(r Register) bool { return r != RegFileStatus }
	err := CheckRequired(noStatus)
	if !errors.Is(err, ErrCharacteristicMissing) {
		t.Fatalf("expected ErrCharacteristicMissing, got %v", err)
	}
	var missing *MissingRegisterError
	if !errors.As(err, &missing) || missing.Register != RegFileStatus {
		t.Errorf("missing register = %v", err)
	}
}
