// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/imulink/imulink/pkg/link"
)

// Op is a bridge message operation.
type Op uint8

// Operations. Requests (open through subscribe) are answered by a response or
// error carrying the same sequence number. Notify and link-lost are
// unsolicited and carry sequence 0.
const (
	OpOpen      Op = 1
	OpRead      Op = 2
	OpWrite     Op = 3
	OpSubscribe Op = 4
	OpResponse  Op = 5
	OpNotify    Op = 6
	OpError     Op = 7
	OpLinkLost  Op = 8
	OpClose     Op = 9
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "OPEN"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpSubscribe:
		return "SUBSCRIBE"
	case OpResponse:
		return "RESPONSE"
	case OpNotify:
		return "NOTIFY"
	case OpError:
		return "ERROR"
	case OpLinkLost:
		return "LINK_LOST"
	case OpClose:
		return "CLOSE"
	}
	return fmt.Sprintf("OP(%d)", uint8(o))
}

// Message is one bridge message, serialized as a CBOR array.
//
// For OpOpen requests Data holds the device address filter (may be empty);
// the response lists the discovered registers, one register id per byte.
// For OpError Data holds the error text.
type Message struct {
	_        struct{} `cbor:",toarray"`
	Op       Op
	Seq      uint32
	Register link.Register
	Data     []byte
}

// Marshal encodes the message as CBOR.
func (m *Message) Marshal() ([]byte, error) {
	return cbor.Marshal(m)
}

// ParseMessage decodes a CBOR message payload.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var m Message
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return &m, nil
}

// EncodeMessage marshals and frames a message.
func EncodeMessage(m *Message) ([]byte, error) {
	payload, err := m.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	return EncodeFrame(payload)
}

// Error texts the dongle uses for connection-time failures.
const (
	textDeviceNotFound        = "device not found"
	textServiceMissing        = "service missing"
	textCharacteristicMissing = "characteristic missing"
)

// RemoteError is an error reported by the bridge that maps to no sentinel.
type RemoteError struct {
	Op      Op
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge %s failed: %s", e.Op, e.Message)
}

// errorFromMessage converts an OpError reply into a Go error.
func errorFromMessage(req Op, reg link.Register, m *Message) error {
	text := string(m.Data)
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, textDeviceNotFound):
		return fmt.Errorf("%w: %s", link.ErrDeviceNotFound, text)
	case strings.Contains(lower, textServiceMissing):
		return fmt.Errorf("%w: %s", link.ErrServiceMissing, text)
	case strings.Contains(lower, textCharacteristicMissing):
		return &link.MissingRegisterError{Register: reg}
	}
	return &RemoteError{Op: req, Message: text}
}

// IsRemote reports whether err was reported by the bridge itself.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
