// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imulink/imulink/pkg/link"
	"github.com/imulink/imulink/pkg/link/linktest"
)

func TestReconnectPolicy_Delay(t *testing.T) {
	p := DefaultReconnectPolicy()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSession_ConnectIsIdempotent(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if fake.Opens() != 1 {
		t.Errorf("transport opened %d times, want 1", fake.Opens())
	}
	if !c.IsConnected() {
		t.Error("IsConnected = false")
	}
}

func TestSession_SubscribesNotifyRegisters(t *testing.T) {
	_, fake := newConnectedClient(t, testOptions(), nil)
	for _, reg := range link.NotifyRegisters() {
		if !fake.Subscribed(reg) {
			t.Errorf("%s not subscribed", reg)
		}
	}
}

func TestSession_ConnectErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fake *linktest.Transport)
		want  error
	}{
		{"device not found", func(f *linktest.Transport) { f.FailOpen(link.ErrDeviceNotFound) }, link.ErrDeviceNotFound},
		{"service missing", func(f *linktest.Transport) { f.FailOpen(link.ErrServiceMissing) }, link.ErrServiceMissing},
		{"characteristic missing", func(f *linktest.Transport) { f.Remove(link.RegFileStatus) }, link.ErrCharacteristicMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeTransport()
			tt.setup(fake)
			c := NewClient(fake, testOptions())
			events := record(c.Bus)

			err := c.Connect(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Connect error = %v, want %v", err, tt.want)
			}
			if c.Session.State() != StateDisconnected {
				t.Errorf("state = %s, want disconnected", c.Session.State())
			}
			conn := eventsOf[ConnectionEvent](events)
			if len(conn) != 2 || conn[0].State != StateConnecting || conn[1].State != StateDisconnected {
				t.Errorf("connection events = %+v", conn)
			}
		})
	}
}

func TestSession_OptionalRegisterAbsent(t *testing.T) {
	_, fake := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Remove(link.RegInferenceResult)
	})
	if fake.Subscribed(link.RegInferenceResult) {
		t.Error("absent register should not be subscribed")
	}
}

func TestSession_NotConnected(t *testing.T) {
	c := NewClient(newFakeTransport(), testOptions())
	ctx := context.Background()

	if _, err := c.Session.Read(ctx, link.RegIdentity); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read = %v, want ErrNotConnected", err)
	}
	if err := c.Session.Write(ctx, link.RegFileCommand, []byte{0}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write = %v, want ErrNotConnected", err)
	}
	if _, err := c.Configure(ctx, nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Configure = %v, want ErrNotConnected", err)
	}
}

func TestSession_WriteErrorWrapsRegister(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	boom := errors.New("att error 0x03")
	fake.FailWrite(link.RegFileCommand, boom)

	err := c.Session.Write(context.Background(), link.RegFileCommand, []byte{0})
	var we *WriteError
	if !errors.As(err, &we) || we.Register != link.RegFileCommand {
		t.Fatalf("expected *WriteError on file-command, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("WriteError should unwrap to the transport error")
	}
}

func TestSession_ReconnectsAfterLinkLoss(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	events := record(c.Bus)

	fake.Drop(errors.New("supervision timeout"))

	waitFor(t, "reconnect", func() bool { return c.IsConnected() && fake.Opens() == 2 })
	if !fake.Subscribed(link.RegIMUData) {
		t.Error("telemetry not re-subscribed after reconnect")
	}

	conn := eventsOf[ConnectionEvent](events)
	if len(conn) == 0 || conn[0].State != StateReconnecting || conn[0].Err == nil {
		t.Fatalf("first event = %+v, want reconnecting with cause", conn)
	}
	if last := conn[len(conn)-1]; last.State != StateConnected {
		t.Errorf("last event = %+v, want connected", last)
	}
}

func TestSession_ReconnectGivesUp(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	events := record(c.Bus)
	fake.FailOpen(link.ErrDeviceNotFound, link.ErrDeviceNotFound, link.ErrDeviceNotFound)

	fake.Drop(errors.New("out of range"))

	waitFor(t, "give up", func() bool { return c.Session.State() == StateDisconnected })

	attempts := 0
	for _, e := range eventsOf[ConnectionEvent](events) {
		if e.State == StateReconnecting && e.Attempt > 0 {
			attempts++
		}
	}
	if attempts != 3 {
		t.Errorf("reconnect attempts = %d, want 3", attempts)
	}
	if fake.Opens() != 1 {
		t.Errorf("opens = %d, want 1", fake.Opens())
	}
}

func TestSession_DisconnectStopsReconnect(t *testing.T) {
	opts := testOptions()
	opts.Reconnect.InitialDelay = time.Hour
	opts.Reconnect.MaxDelay = time.Hour
	c, fake := newConnectedClient(t, opts, nil)

	fake.Drop(errors.New("gone"))
	waitFor(t, "reconnecting", func() bool { return c.Session.State() == StateReconnecting })

	if err := c.Session.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.Session.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.Session.State())
	}
	if fake.Opens() != 1 {
		t.Errorf("opens = %d, want 1", fake.Opens())
	}
}

func TestSession_DisconnectIsNotLinkLoss(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	events := record(c.Bus)

	if err := c.Session.Disconnect(); err != nil {
		t.Fatal(err)
	}
	fake.Drop(errors.New("late callback"))

	for _, e := range eventsOf[ConnectionEvent](events) {
		if e.State == StateReconnecting {
			t.Fatalf("unexpected reconnect after Disconnect: %+v", e)
		}
	}
}

func TestClient_CloseDisablesSensors(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Set(link.RegIMUConfiguration, []byte{0x21, 60, 0})
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	writes := fake.WritesTo(link.RegIMUConfiguration)
	if len(writes) != 1 {
		t.Fatalf("configuration writes = %d, want 1", len(writes))
	}
	if writes[0][0] != 0x00 {
		t.Errorf("mask after close = 0x%02X, want 0x00", writes[0][0])
	}
	if c.IsConnected() || fake.Closes() == 0 {
		t.Error("client still connected after Close")
	}
}

func TestClient_CloseDisconnectsWhenDisableFails(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	fake.FailWrite(link.RegIMUConfiguration, errors.New("busy"))

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsConnected() {
		t.Error("client still connected")
	}
}

func TestClient_IdentityAndBattery(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	ctx := context.Background()
	events := record(c.Bus)

	id, err := c.Identity(ctx)
	if err != nil || id != "imu-test" {
		t.Errorf("Identity = %q, %v", id, err)
	}

	level, err := c.Battery(ctx)
	if err != nil || level != 87 {
		t.Errorf("Battery = %d, %v", level, err)
	}

	fake.Notify(link.RegBatteryLevel, []byte{42})
	batt := eventsOf[BatteryEvent](events)
	if len(batt) != 1 || batt[0].Level != 42 {
		t.Errorf("battery events = %+v", batt)
	}
	if last, ok := c.LastBattery(); !ok || last != 42 {
		t.Errorf("LastBattery = %d, %v", last, ok)
	}
}

func TestClient_Inference(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	ctx := context.Background()
	events := record(c.Bus)

	if err := c.SetInferenceEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := c.MakeInference(ctx); err != nil {
		t.Fatal(err)
	}
	if got := fake.Value(link.RegInferenceEnabled); len(got) != 1 || got[0] != 1 {
		t.Errorf("inference-enabled = % X", got)
	}

	fake.Notify(link.RegInferenceResult, []byte{2})
	inf := eventsOf[InferenceEvent](events)
	if len(inf) != 1 || inf[0].Result[0] != 2 {
		t.Errorf("inference events = %+v", inf)
	}
}

func TestClient_InferenceUnsupported(t *testing.T) {
	c, _ := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Remove(link.RegInferenceEnabled)
	})
	if err := c.MakeInference(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("MakeInference = %v, want ErrUnsupported", err)
	}
}
