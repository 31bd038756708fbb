// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/imuwire"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("port", "", "")
	cmd.Flags().Int("baud", DefaultBaudRate, "")
	cmd.Flags().String("url", "", "")
	cmd.Flags().Bool("debug", false, "")
	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse_File(t *testing.T) {
	path := writeConfig(t, `
link:
  serial:
    port: /dev/ttyACM0
    baud: 921600
reconnect:
  maxAttempts: 2
  initialDelay: 500ms
transfer:
  statusTimeout: 3s
sensors:
  enabled: [gravity, rotationRate]
  rate: 100
influx:
  enabled: true
  url: http://influx:8086
  org: lab
debug: true
`)
	cmd := testCommand()
	cmd.Flags().Set("config", path)

	desc := NewImulinkDesc()
	if err := desc.Parse(cmd); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opt := desc.Opt

	if opt.Link.Kind() != LinkSerial || opt.Link.Serial.Port != "/dev/ttyACM0" || opt.Link.Serial.Baud != 921600 {
		t.Errorf("link = %+v", opt.Link)
	}
	if opt.Reconnect.MaxAttempts != 2 || opt.Reconnect.InitialDelay != 500*time.Millisecond {
		t.Errorf("reconnect = %+v", opt.Reconnect)
	}
	if opt.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("unset maxDelay = %v, want default", opt.Reconnect.MaxDelay)
	}
	if opt.Transfer.StatusTimeout != 3*time.Second {
		t.Errorf("statusTimeout = %v", opt.Transfer.StatusTimeout)
	}
	if !opt.Influx.Enabled || opt.Influx.URL != "http://influx:8086" || opt.Influx.Org != "lab" || opt.Influx.Bucket != DefaultAppName {
		t.Errorf("influx = %+v", opt.Influx)
	}

	requested, err := opt.Sensors.Requested()
	if err != nil {
		t.Fatal(err)
	}
	if len(requested) != 2 || !requested[imuwire.Gravity] || !requested[imuwire.RotationRate] {
		t.Errorf("requested = %v", requested)
	}

	dev := opt.DeviceOptions()
	if dev.Reconnect.MaxAttempts != 2 || dev.StatusTimeout != 3*time.Second {
		t.Errorf("device options = %+v", dev)
	}

	desc.PostParse()
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("log level = %s, want debug", log.GetLevel())
	}
	log.SetLevel(log.InfoLevel)
}

func TestParse_Precedence(t *testing.T) {
	path := writeConfig(t, "link:\n  serial:\n    port: /dev/from-file\n    baud: 9600\n")
	t.Setenv("IMULINK_LINK_SERIAL_BAUD", "57600")

	cmd := testCommand()
	cmd.Flags().Set("config", path)
	cmd.Flags().Set("port", "/dev/from-flag")

	desc := NewImulinkDesc()
	if err := desc.Parse(cmd); err != nil {
		t.Fatal(err)
	}
	if got := desc.Opt.Link.Serial.Port; got != "/dev/from-flag" {
		t.Errorf("port = %q, want flag value", got)
	}
	if got := desc.Opt.Link.Serial.Baud; got != 57600 {
		t.Errorf("baud = %d, want env value", got)
	}
}

func TestParse_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "link:\n  websocket:\n    url: ws://bridge.local/ws\n")
	t.Setenv("IMULINK_CONFIG", path)

	desc := NewImulinkDesc()
	if err := desc.Parse(testCommand()); err != nil {
		t.Fatal(err)
	}
	if desc.Opt.Link.Kind() != LinkWebSocket {
		t.Errorf("kind = %s, want websocket", desc.Opt.Link.Kind())
	}
}

func TestParse_MissingExplicitFile(t *testing.T) {
	cmd := testCommand()
	cmd.Flags().Set("config", filepath.Join(t.TempDir(), "absent.yaml"))

	desc := NewImulinkDesc()
	if err := desc.Parse(cmd); err == nil {
		t.Error("expected error for a missing --config file")
	}
}

func TestLinkKind(t *testing.T) {
	tests := []struct {
		name string
		opt  LinkOpt
		want string
	}{
		{"default", LinkOpt{}, LinkBLE},
		{"ble address", LinkOpt{BLE: BLEOpt{Address: "AA:BB:CC:DD:EE:FF"}}, LinkBLE},
		{"serial", LinkOpt{Serial: SerialOpt{Port: "/dev/ttyUSB0"}}, LinkSerial},
		{"websocket wins", LinkOpt{Serial: SerialOpt{Port: "/dev/ttyUSB0"}, WebSocket: WebSocketOpt{URL: "ws://x"}}, LinkWebSocket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opt.Kind(); got != tt.want {
				t.Errorf("Kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSensorOpt_UnknownName(t *testing.T) {
	_, err := SensorOpt{Enabled: []string{"acceleration", "barometer"}}.Requested()
	if err == nil {
		t.Error("expected error for unknown sensor")
	}
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	opt := NewImulinkOpt()

	if err := Dump(opt, path, false); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := Dump(opt, path, false); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second Dump = %v, want ErrConfigExists", err)
	}
	if err := Dump(opt, path, true); err != nil {
		t.Errorf("overwrite Dump: %v", err)
	}

	// the dump must load back to the same settings
	cmd := testCommand()
	cmd.Flags().Set("config", path)
	desc := NewImulinkDesc()
	if err := desc.Parse(cmd); err != nil {
		t.Fatalf("Parse dumped config: %v", err)
	}
	if desc.Opt.Reconnect != opt.Reconnect || desc.Opt.Link.Serial != opt.Link.Serial {
		t.Errorf("round trip = %+v, want %+v", desc.Opt, opt)
	}
	if desc.Opt.Influx.FlushInterval != opt.Influx.FlushInterval {
		t.Errorf("flush interval = %v", desc.Opt.Influx.FlushInterval)
	}
}
