// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package record captures raw register notifications to disk, replays them
// through the regular decoding pipeline, and exports decoded events to
// InfluxDB.
package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/link"
)

// Record is one captured notification. A capture file is a CBOR sequence of
// records in arrival order.
type Record struct {
	_        struct{} `cbor:",toarray"`
	Time     int64    // host receive time, unix nanoseconds
	Register string   // catalog name
	Data     []byte
}

// At returns the receive time.
func (r Record) At() time.Time {
	return time.Unix(0, r.Time)
}

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closer io.Closer
	count  int
	now    func() time.Time
}

// NewWriter writes records to w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: cbor.NewEncoder(buf), now: time.Now}
}

// Create creates or truncates a capture file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Write appends a notification on reg, stamped with the current time.
func (w *Writer) Write(reg link.Register, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{Time: w.now().UnixNano(), Register: reg.String(), Data: data}
	if err := w.enc.Encode(rec); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Close flushes and closes the capture file, if the writer owns one.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads records from a capture stream.
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode capture record: %w", err)
	}
	return rec, nil
}

// Close closes the capture file, if the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// tap records every notification before passing it on.
type tap struct {
	link.Transport
	w *Writer
}

// Tap wraps transport so that every notification delivered to a subscriber
// is first appended to w.
func Tap(transport link.Transport, w *Writer) link.Transport {
	return &tap{Transport: transport, w: w}
}

func (t *tap) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	return t.Transport.Subscribe(ctx, reg, func(data []byte) {
		if err := t.w.Write(reg, data); err != nil {
			log.WithField("register", reg).Warnf("capture write failed: %v", err)
		}
		fn(data)
	})
}

func (t *tap) Name() string {
	return t.Transport.Name() + " (recording)"
}
