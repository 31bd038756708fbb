// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

// Phase is the transfer engine state.
type Phase int

// Transfer engine phases
const (
	PhaseIdle Phase = iota
	PhaseNegotiating
	PhaseTransmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseTransmitting:
		return "transmitting"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Transfer timing defaults
const (
	DefaultStatusTimeout = 10 * time.Second
	// errorMessageGrace is how long an Error status waits for the
	// error-message notification, which may arrive second.
	errorMessageGrace = 250 * time.Millisecond
	statusQueueSize   = 16
)

// TransferJob describes the current or most recent transfer.
type TransferJob struct {
	FileType    imuwire.FileType
	Checksum    uint32
	Length      int
	Sent        int
	Status      imuwire.TransferStatus
	Abandoned   bool
	DeviceError string
	Cancelled   bool
	StartedAt   time.Time
}

// Progress returns Sent/Length, or 1 for an empty payload.
func (j TransferJob) Progress() float64 {
	if j.Length == 0 {
		return 1
	}
	return float64(j.Sent) / float64(j.Length)
}

// Transfer runs the chunked file-upload protocol. One job runs at a time.
type Transfer struct {
	session       *Session
	bus           *Bus
	crc           *imuwire.CRC32
	statusTimeout time.Duration

	statusCh chan imuwire.TransferStatus
	errMsgCh chan string
	lostCh   chan error

	mu        sync.Mutex
	phase     Phase
	job       *TransferJob
	cancelled bool
}

// NewTransfer creates a transfer engine on session. A zero statusTimeout
// selects DefaultStatusTimeout.
func NewTransfer(session *Session, statusTimeout time.Duration) *Transfer {
	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}
	return &Transfer{
		session:       session,
		bus:           session.Bus(),
		crc:           imuwire.NewCRC32(),
		statusTimeout: statusTimeout,
		statusCh:      make(chan imuwire.TransferStatus, statusQueueSize),
		errMsgCh:      make(chan string, statusQueueSize),
		lostCh:        make(chan error, 1),
	}
}

// HandleStatus queues a file-status notification for the running job.
func (e *Transfer) HandleStatus(data []byte) {
	status, err := imuwire.DecodeTransferStatus(data)
	if err != nil {
		log.Debugf("dropping transfer status: %v", err)
		return
	}
	select {
	case e.statusCh <- status:
	default:
		log.Warnf("transfer status queue full, dropping %s", imuwire.FormatTransferStatus(status))
	}
}

// HandleErrorMessage records the device's error text and publishes it verbatim.
func (e *Transfer) HandleErrorMessage(data []byte) {
	msg := imuwire.DecodeErrorMessage(data)
	select {
	case e.errMsgCh <- msg:
	default:
	}
	e.bus.Publish(TransferErrorEvent{Message: msg})
}

// HandleLinkLost abandons the running job, if any.
func (e *Transfer) HandleLinkLost(err error) {
	select {
	case e.lostCh <- err:
	default:
	}
}

// Phase returns the engine state.
func (e *Transfer) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Job returns a copy of the current or most recent job.
func (e *Transfer) Job() (TransferJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return TransferJob{}, false
	}
	return *e.job, true
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (e *Transfer) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseIdle {
		return ErrTransferInProgress
	}
	e.phase = PhaseNegotiating
	e.cancelled = false
	drain(e.statusCh)
	drain(e.errMsgCh)
	drain(e.lostCh)
	return nil
}

func (e *Transfer) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = PhaseIdle
}

func (e *Transfer) update(fn func(j *TransferJob)) TransferJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.job)
	return *e.job
}

// Run uploads payload as a file of the given type and blocks until the device
// reports a terminal status. The payload is copied before any I/O.
//
// Each block write is followed by a wait for the next status notification;
// blocks are never pipelined. A failed write aborts the job without retry.
// On link loss the job is marked abandoned and ErrDisconnected is returned.
func (e *Transfer) Run(ctx context.Context, payload []byte, fileType imuwire.FileType) error {
	if !e.session.IsConnected() {
		return ErrNotConnected
	}
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	return e.run(ctx, payload, fileType)
}

// run performs a job on an engine already reserved by begin.
func (e *Transfer) run(ctx context.Context, payload []byte, fileType imuwire.FileType) error {
	data := make([]byte, len(payload))
	copy(data, payload)

	maxData, err := e.session.Read(ctx, link.RegFileMaxLength)
	if err != nil {
		return err
	}
	maxLen, err := imuwire.DecodeMaxFileLength(maxData)
	if err != nil {
		return fmt.Errorf("decode %s: %w", link.RegFileMaxLength, err)
	}
	if len(data) > maxLen {
		return &FileTooLargeError{Size: len(data), Max: maxLen}
	}
	lengthField, err := imuwire.EncodeFileLength(len(data))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.job = &TransferJob{
		FileType:  fileType,
		Checksum:  e.crc.Checksum(data),
		Length:    len(data),
		Status:    imuwire.StatusIdle,
		StartedAt: time.Now(),
	}
	job := *e.job
	e.mu.Unlock()

	logger := log.WithFields(log.Fields{
		"length":   job.Length,
		"checksum": fmt.Sprintf("0x%08X", job.Checksum),
	})
	logger.Info("starting file transfer")

	setup := []struct {
		reg  link.Register
		data []byte
	}{
		{link.RegFileTransferType, []byte{byte(fileType)}},
		{link.RegFileLength, lengthField},
		{link.RegFileChecksum, imuwire.EncodeChecksum(job.Checksum)},
		{link.RegFileCommand, []byte{byte(imuwire.CommandStart)}},
	}
	for _, w := range setup {
		// nothing has been started on the device yet
		if e.isCancelled() {
			return e.cancelBeforeStart(logger)
		}
		if err := e.session.Write(ctx, w.reg, w.data); err != nil {
			return e.fail(err)
		}
	}

	// A Cancel that arrived while the start command was in flight was
	// deferred; send it now that the device has a job to abort.
	e.mu.Lock()
	e.phase = PhaseTransmitting
	pending := e.cancelled
	e.mu.Unlock()
	e.update(func(j *TransferJob) { j.Status = imuwire.StatusInProgress })
	e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusInProgress})
	if pending {
		if err := e.session.Write(ctx, link.RegFileCommand, []byte{byte(imuwire.CommandCancel)}); err != nil {
			return e.fail(err)
		}
	}

	status, err := e.awaitStatus(ctx)
	for err == nil && !status.IsTerminal() && !e.isCancelled() {
		j, _ := e.Job()
		if j.Sent < j.Length {
			end := j.Sent + imuwire.BlockSize
			if end > j.Length {
				end = j.Length
			}
			if werr := e.session.Write(ctx, link.RegFileBlock, data[j.Sent:end]); werr != nil {
				return e.fail(werr)
			}
			j = e.update(func(j *TransferJob) { j.Sent = end })
			e.bus.Publish(TransferProgressEvent{Sent: j.Sent, Total: j.Length, Progress: j.Progress()})
		}
		status, err = e.awaitStatus(ctx)
	}
	if err != nil {
		return e.fail(err)
	}
	return e.settle(status, logger)
}

// cancelBeforeStart ends a job cancelled before the start command was written.
// The device never saw a start, so no cancel command is sent.
func (e *Transfer) cancelBeforeStart(logger log.FieldLogger) error {
	e.update(func(j *TransferJob) {
		j.Status = imuwire.StatusError
		j.Cancelled = true
	})
	e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusError})
	logger.Info("file transfer cancelled before start")
	return ErrTransferCancelled
}

// settle finishes the job on a status received after the start command.
func (e *Transfer) settle(status imuwire.TransferStatus, logger log.FieldLogger) error {
	if e.isCancelled() {
		e.update(func(j *TransferJob) {
			j.Status = imuwire.StatusError
			j.Cancelled = true
		})
		e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusError})
		logger.Info("file transfer cancelled")
		return ErrTransferCancelled
	}

	if status == imuwire.StatusSuccess {
		e.update(func(j *TransferJob) { j.Status = imuwire.StatusSuccess })
		e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusSuccess})
		logger.Info("file transfer complete")
		return nil
	}

	msg := e.errorMessage()
	e.update(func(j *TransferJob) {
		j.Status = imuwire.StatusError
		j.DeviceError = msg
	})
	e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusError})
	logger.WithField("device_error", msg).Warn("device rejected file transfer")
	return &DeviceTransferError{Message: msg}
}

// fail ends the job on a local error. Link loss abandons the job instead of
// failing it, so its status stays InProgress.
func (e *Transfer) fail(err error) error {
	if errors.Is(err, ErrDisconnected) || !e.session.IsConnected() {
		j := e.update(func(j *TransferJob) { j.Abandoned = true })
		e.bus.Publish(TransferStatusEvent{Status: j.Status, Abandoned: true})
		log.WithField("sent", j.Sent).Warn("file transfer abandoned on link loss")
		if errors.Is(err, ErrDisconnected) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// stop the device from waiting on blocks that will never come
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		e.session.Write(ctx, link.RegFileCommand, []byte{byte(imuwire.CommandCancel)})
		cancel()
	}

	e.update(func(j *TransferJob) { j.Status = imuwire.StatusError })
	e.bus.Publish(TransferStatusEvent{Status: imuwire.StatusError})
	log.Warnf("file transfer failed: %v", err)
	return err
}

func (e *Transfer) awaitStatus(ctx context.Context) (imuwire.TransferStatus, error) {
	timer := time.NewTimer(e.statusTimeout)
	defer timer.Stop()
	select {
	case s := <-e.statusCh:
		return s, nil
	case err := <-e.lostCh:
		return imuwire.StatusIdle, err
	case <-timer.C:
		return imuwire.StatusIdle, ErrStatusTimeout
	case <-ctx.Done():
		return imuwire.StatusIdle, ctx.Err()
	}
}

func (e *Transfer) errorMessage() string {
	var msg string
	timer := time.NewTimer(errorMessageGrace)
	defer timer.Stop()
	select {
	case msg = <-e.errMsgCh:
	case <-timer.C:
		return ""
	}
	// keep the most recent message
	for {
		select {
		case m := <-e.errMsgCh:
			msg = m
		default:
			return msg
		}
	}
}

func (e *Transfer) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Cancel asks the device to abort the running job. The next status
// notification settles the job and Run returns ErrTransferCancelled.
//
// Before the start command has been written the cancel only sets a flag: the
// job stops before reaching the device, or the cancel command follows the
// start command once it is out.
func (e *Transfer) Cancel(ctx context.Context) error {
	e.mu.Lock()
	switch e.phase {
	case PhaseIdle:
		e.mu.Unlock()
		return ErrNoTransfer
	case PhaseNegotiating:
		e.cancelled = true
		e.mu.Unlock()
		return nil
	}
	e.cancelled = true
	e.mu.Unlock()

	if err := e.session.Write(ctx, link.RegFileCommand, []byte{byte(imuwire.CommandCancel)}); err != nil {
		e.mu.Lock()
		e.cancelled = false
		e.mu.Unlock()
		return err
	}
	return nil
}
