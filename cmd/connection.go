// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
	"tinygo.org/x/bluetooth"

	"github.com/imulink/imulink/internal/config"
	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/link"
	"github.com/imulink/imulink/pkg/link/ble"
	"github.com/imulink/imulink/pkg/link/bridge"
	"github.com/imulink/imulink/pkg/record"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.DefaultEnvPrefix + "_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenTransport builds the link selected by the configuration. Nothing is
// opened until the session connects.
func OpenTransport(opt config.LinkOpt) (link.Transport, error) {
	switch opt.Kind() {
	case config.LinkWebSocket:
		password := ""
		if opt.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return bridge.New(bridge.Options{
			Dial: bridge.WebSocketDialer(bridge.WebSocketOptions{
				URL:           opt.WebSocket.URL,
				Username:      opt.WebSocket.Username,
				Password:      password,
				SkipSSLVerify: opt.WebSocket.NoSSLVerify,
			}),
			Name:           fmt.Sprintf("WebSocket: %s", opt.WebSocket.URL),
			Device:         opt.BLE.Address,
			RequestTimeout: opt.RequestTimeout,
		}), nil

	case config.LinkSerial:
		return bridge.New(bridge.Options{
			Dial:           bridge.SerialDialer(opt.Serial.Port, opt.Serial.Baud),
			Name:           fmt.Sprintf("Serial: %s @ %d baud", opt.Serial.Port, opt.Serial.Baud),
			Device:         opt.BLE.Address,
			RequestTimeout: opt.RequestTimeout,
		}), nil
	}

	return ble.New(bluetooth.DefaultAdapter, ble.Options{
		Address:     opt.BLE.Address,
		ScanTimeout: opt.BLE.ScanTimeout,
	}), nil
}

// session bundles a connected client with its teardown.
type session struct {
	client  *device.Client
	capture *record.Writer
}

// connect opens the configured link and connects a client. A non-empty
// capturePath records every notification to that file.
func connect(ctx context.Context, capturePath string) (*session, error) {
	transport, err := OpenTransport(opts.Link)
	if err != nil {
		return nil, err
	}

	s := &session{}
	if capturePath != "" {
		s.capture, err = record.Create(capturePath)
		if err != nil {
			return nil, err
		}
		transport = record.Tap(transport, s.capture)
	}

	s.client = device.NewClient(transport, opts.DeviceOptions())
	s.client.Bus.Subscribe(logConnectionEvents)

	fmt.Printf("Connecting: %s\n", transport.Name())
	if err := s.client.Connect(ctx); err != nil {
		s.closeCapture()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return s, nil
}

func (s *session) closeCapture() {
	if s.capture == nil {
		return
	}
	if err := s.capture.Close(); err != nil {
		log.Warnf("closing capture: %v", err)
		return
	}
	log.Infof("captured %d notifications", s.capture.Count())
}

// Close disables the sensors and disconnects.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Close(ctx); err != nil {
		log.Warnf("disconnect: %v", err)
	}
	s.closeCapture()
}

func logConnectionEvents(e device.Event) {
	ev, ok := e.(device.ConnectionEvent)
	if !ok {
		return
	}
	entry := log.WithField("state", ev.State)
	if ev.Attempt > 0 {
		entry = entry.WithField("attempt", ev.Attempt)
	}
	if ev.Err != nil {
		entry.Warn(ev.Err)
		return
	}
	entry.Debug("connection state changed")
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
