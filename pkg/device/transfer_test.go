// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
	"github.com/imulink/imulink/pkg/link/linktest"
)

// ============================================================
// Device simulator
// ============================================================

// deviceSim answers the start command and every block with a file-status
// notification, reporting success once all bytes have arrived. onBlock runs
// after each block is stored; returning false suppresses the default reply.
type deviceSim struct {
	fake  *linktest.Transport
	total int

	mu       sync.Mutex
	received []byte
	blocks   int
	onBlock  func(n int) bool
}

func simulateDevice(fake *linktest.Transport, total int) *deviceSim {
	d := &deviceSim{fake: fake, total: total}
	fake.OnWrite(d.handle)
	return d
}

func (d *deviceSim) reply(status imuwire.TransferStatus) {
	d.fake.Notify(link.RegFileStatus, []byte{byte(status)})
}

func (d *deviceSim) handle(reg link.Register, data []byte) {
	switch reg {
	case link.RegFileCommand:
		switch imuwire.TransferCommand(data[0]) {
		case imuwire.CommandStart:
			d.reply(imuwire.StatusInProgress)
		case imuwire.CommandCancel:
			d.reply(imuwire.StatusError)
		}
	case link.RegFileBlock:
		d.mu.Lock()
		d.received = append(d.received, data...)
		d.blocks++
		n, got, hook := d.blocks, len(d.received), d.onBlock
		d.mu.Unlock()

		if hook != nil && !hook(n) {
			return
		}
		if got >= d.total {
			d.reply(imuwire.StatusSuccess)
		} else {
			d.reply(imuwire.StatusInProgress)
		}
	}
}

func (d *deviceSim) bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.received...)
}

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

// ============================================================
// Transfer engine
// ============================================================

func TestTransfer_BlocksAndProgress(t *testing.T) {
	sizes := []int{1, 127, 128, 129, 256, 300, 1000, 4096}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			c, fake := newConnectedClient(t, testOptions(), nil)
			dev := simulateDevice(fake, size)
			events := record(c.Bus)
			payload := testPayload(size)

			if err := c.Transfer.Run(context.Background(), payload, imuwire.FileTypeModel); err != nil {
				t.Fatalf("size %d: Run: %v", size, err)
			}

			wantBlocks := (size + imuwire.BlockSize - 1) / imuwire.BlockSize
			blocks := fake.WritesTo(link.RegFileBlock)
			if len(blocks) != wantBlocks {
				t.Errorf("size %d: %d block writes, want %d", size, len(blocks), wantBlocks)
			}
			for i, b := range blocks[:len(blocks)-1] {
				if len(b) != imuwire.BlockSize {
					t.Errorf("size %d: block %d is %d bytes", size, i, len(b))
				}
			}
			if !bytes.Equal(dev.bytes(), payload) {
				t.Errorf("size %d: device received different bytes", size)
			}

			progress := eventsOf[TransferProgressEvent](events)
			if len(progress) != wantBlocks {
				t.Fatalf("size %d: %d progress events, want %d", size, len(progress), wantBlocks)
			}
			complete := 0
			for i, p := range progress {
				if p.Total != size {
					t.Errorf("progress total = %d, want %d", p.Total, size)
				}
				if i > 0 && p.Sent <= progress[i-1].Sent {
					t.Errorf("progress not increasing: %d after %d", p.Sent, progress[i-1].Sent)
				}
				if p.Progress == 1.0 {
					complete++
				}
			}
			if complete != 1 || progress[len(progress)-1].Progress != 1.0 {
				t.Errorf("size %d: progress reached 1.0 %d times", size, complete)
			}

			job, ok := c.Transfer.Job()
			if !ok || job.Status != imuwire.StatusSuccess || job.Sent != size {
				t.Errorf("size %d: job = %+v", size, job)
			}
			if c.Transfer.Phase() != PhaseIdle {
				t.Errorf("phase = %s, want idle", c.Transfer.Phase())
			}
		})
	}
}

func TestTransfer_SetupWriteOrder(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	simulateDevice(fake, 300)
	payload := testPayload(300)

	if err := c.Transfer.Run(context.Background(), payload, imuwire.FileTypeModel); err != nil {
		t.Fatal(err)
	}

	writes := fake.Writes()
	want := []link.Register{
		link.RegFileTransferType,
		link.RegFileLength,
		link.RegFileChecksum,
		link.RegFileCommand,
		link.RegFileBlock,
		link.RegFileBlock,
		link.RegFileBlock,
	}
	if len(writes) != len(want) {
		t.Fatalf("%d writes, want %d", len(writes), len(want))
	}
	for i, reg := range want {
		if writes[i].Register != reg {
			t.Errorf("write %d = %s, want %s", i, writes[i].Register, reg)
		}
	}

	if writes[0].Data[0] != byte(imuwire.FileTypeModel) {
		t.Errorf("transfer type = 0x%02X", writes[0].Data[0])
	}
	if got := binary.LittleEndian.Uint32(writes[1].Data); got != 300 {
		t.Errorf("length = %d, want 300", got)
	}
	if got := binary.LittleEndian.Uint32(writes[2].Data); got != imuwire.CalculateCRC32(payload) {
		t.Errorf("checksum = 0x%08X, want 0x%08X", got, imuwire.CalculateCRC32(payload))
	}
	if writes[3].Data[0] != byte(imuwire.CommandStart) {
		t.Errorf("command = 0x%02X, want start", writes[3].Data[0])
	}
}

func TestTransfer_PayloadIsSnapshotted(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	payload := testPayload(400)
	want := append([]byte(nil), payload...)

	dev := simulateDevice(fake, len(payload))
	dev.onBlock = func(n int) bool {
		if n == 1 {
			for i := range payload {
				payload[i] = 0
			}
		}
		return true
	}

	if err := c.Transfer.Run(context.Background(), payload, imuwire.FileTypeModel); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dev.bytes(), want) {
		t.Error("caller mutation leaked into the transfer")
	}
}

func TestTransfer_FileTooLarge(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Set(link.RegFileMaxLength, []byte{100, 0, 0, 0})
	})

	err := c.Transfer.Run(context.Background(), testPayload(101), imuwire.FileTypeModel)
	var tooLarge *FileTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected FileTooLargeError, got %v", err)
	}
	if tooLarge.Size != 101 || tooLarge.Max != 100 {
		t.Errorf("error = %+v", tooLarge)
	}
	if len(fake.Writes()) != 0 {
		t.Errorf("writes before rejection: %+v", fake.Writes())
	}
	if c.Transfer.Phase() != PhaseIdle {
		t.Error("engine not idle after rejection")
	}
}

func TestTransfer_ExactlyMaxLength(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Set(link.RegFileMaxLength, []byte{0, 1, 0, 0})
	})
	simulateDevice(fake, 256)

	if err := c.Transfer.Run(context.Background(), testPayload(256), imuwire.FileTypeModel); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestTransfer_NotConnected(t *testing.T) {
	c := NewClient(newFakeTransport(), testOptions())
	err := c.Transfer.Run(context.Background(), testPayload(10), imuwire.FileTypeModel)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Run = %v, want ErrNotConnected", err)
	}
}

func TestTransfer_OneJobAtATime(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 300)

	var nested error
	dev.onBlock = func(n int) bool {
		if n == 1 {
			nested = c.Transfer.Run(context.Background(), testPayload(10), imuwire.FileTypeModel)
		}
		return true
	}

	if err := c.Transfer.Run(context.Background(), testPayload(300), imuwire.FileTypeModel); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(nested, ErrTransferInProgress) {
		t.Errorf("nested Run = %v, want ErrTransferInProgress", nested)
	}

	// idle again, so a second job can start
	dev2 := simulateDevice(fake, 10)
	if err := c.Transfer.Run(context.Background(), testPayload(10), imuwire.FileTypeModel); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(dev2.bytes()) != 10 {
		t.Errorf("second job sent %d bytes", len(dev2.bytes()))
	}
}

func TestTransfer_WriteFailureAborts(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	boom := errors.New("att write rejected")
	dev := simulateDevice(fake, 1000)
	dev.onBlock = func(n int) bool {
		if n == 1 {
			fake.FailWrite(link.RegFileBlock, boom)
		}
		return true
	}

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	var we *WriteError
	if !errors.As(err, &we) || we.Register != link.RegFileBlock {
		t.Fatalf("expected WriteError on file-block, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("error does not wrap the transport error")
	}
	if n := len(fake.WritesTo(link.RegFileBlock)); n != 1 {
		t.Errorf("%d blocks written, want 1 (no retry)", n)
	}
	job, _ := c.Transfer.Job()
	if job.Status != imuwire.StatusError || job.Sent != imuwire.BlockSize {
		t.Errorf("job = %+v", job)
	}
}

func TestTransfer_DeviceErrorVerbatim(t *testing.T) {
	const msg = "CRC mismatch: expected 0x1A2B3C4D"
	c, fake := newConnectedClient(t, testOptions(), nil)
	events := record(c.Bus)
	dev := simulateDevice(fake, 1000)
	dev.onBlock = func(n int) bool {
		if n < 2 {
			return true
		}
		fake.Notify(link.RegFileErrorMessage, append([]byte(msg), 0, 0, 0))
		dev.reply(imuwire.StatusError)
		return false
	}

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	var de *DeviceTransferError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeviceTransferError, got %v", err)
	}
	if de.Message != msg {
		t.Errorf("message = %q, want %q", de.Message, msg)
	}

	job, _ := c.Transfer.Job()
	if job.Status != imuwire.StatusError || job.DeviceError != msg {
		t.Errorf("job = %+v", job)
	}
	errs := eventsOf[TransferErrorEvent](events)
	if len(errs) != 1 || errs[0].Message != msg {
		t.Errorf("error events = %+v", errs)
	}
}

func TestTransfer_ErrorMessageAfterStatus(t *testing.T) {
	const msg = "flash write failed"
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 1000)
	dev.onBlock = func(n int) bool {
		dev.reply(imuwire.StatusError)
		go func() {
			time.Sleep(20 * time.Millisecond)
			fake.Notify(link.RegFileErrorMessage, []byte(msg))
		}()
		return false
	}

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	var de *DeviceTransferError
	if !errors.As(err, &de) || de.Message != msg {
		t.Fatalf("Run = %v, want device error %q", err, msg)
	}
}

func TestTransfer_Cancel(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 1000)

	var cancelErr error
	dev.onBlock = func(n int) bool {
		cancelErr = c.Transfer.Cancel(context.Background())
		return false
	}

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	if !errors.Is(err, ErrTransferCancelled) {
		t.Fatalf("Run = %v, want ErrTransferCancelled", err)
	}
	if cancelErr != nil {
		t.Errorf("Cancel: %v", cancelErr)
	}

	cmds := fake.WritesTo(link.RegFileCommand)
	if len(cmds) != 2 || cmds[1][0] != byte(imuwire.CommandCancel) {
		t.Errorf("commands = %v, want start then cancel", cmds)
	}
	job, _ := c.Transfer.Job()
	if job.Status != imuwire.StatusError || !job.Cancelled {
		t.Errorf("job = %+v", job)
	}
	if n := len(fake.WritesTo(link.RegFileBlock)); n != 1 {
		t.Errorf("%d blocks written after cancel", n)
	}
}

func TestTransfer_CancelBeforeStart(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 1000)

	var cancelErr error
	fake.OnWrite(func(reg link.Register, data []byte) {
		if reg == link.RegFileChecksum {
			cancelErr = c.Transfer.Cancel(context.Background())
		}
		dev.handle(reg, data)
	})

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	if !errors.Is(err, ErrTransferCancelled) {
		t.Fatalf("Run = %v, want ErrTransferCancelled", err)
	}
	if cancelErr != nil {
		t.Errorf("Cancel: %v", cancelErr)
	}
	if cmds := fake.WritesTo(link.RegFileCommand); len(cmds) != 0 {
		t.Errorf("commands = %v, want none before start", cmds)
	}
	if n := len(fake.WritesTo(link.RegFileBlock)); n != 0 {
		t.Errorf("%d blocks written", n)
	}
	job, _ := c.Transfer.Job()
	if job.Status != imuwire.StatusError || !job.Cancelled {
		t.Errorf("job = %+v", job)
	}
	if c.Transfer.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", c.Transfer.Phase())
	}
}

func TestTransfer_CancelDuringStartFollowsStart(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 1000)

	fake.OnWrite(func(reg link.Register, data []byte) {
		if reg == link.RegFileCommand && data[0] == byte(imuwire.CommandStart) {
			if err := c.Transfer.Cancel(context.Background()); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}
		dev.handle(reg, data)
	})

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	if !errors.Is(err, ErrTransferCancelled) {
		t.Fatalf("Run = %v, want ErrTransferCancelled", err)
	}
	cmds := fake.WritesTo(link.RegFileCommand)
	if len(cmds) != 2 || cmds[0][0] != byte(imuwire.CommandStart) || cmds[1][0] != byte(imuwire.CommandCancel) {
		t.Errorf("commands = %v, want start then cancel", cmds)
	}
	if n := len(fake.WritesTo(link.RegFileBlock)); n != 0 {
		t.Errorf("%d blocks written after cancel", n)
	}
}

func TestTransfer_CancelIdle(t *testing.T) {
	c, _ := newConnectedClient(t, testOptions(), nil)
	if err := c.Transfer.Cancel(context.Background()); !errors.Is(err, ErrNoTransfer) {
		t.Errorf("Cancel = %v, want ErrNoTransfer", err)
	}
}

func TestTransfer_LinkLossAbandons(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	events := record(c.Bus)
	dev := simulateDevice(fake, 1000)
	dev.onBlock = func(n int) bool {
		if n < 2 {
			return true
		}
		fake.Drop(errors.New("supervision timeout"))
		return false
	}

	err := c.Transfer.Run(context.Background(), testPayload(1000), imuwire.FileTypeModel)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Run = %v, want ErrDisconnected", err)
	}

	job, _ := c.Transfer.Job()
	if !job.Abandoned {
		t.Error("job not marked abandoned")
	}
	if job.Status == imuwire.StatusSuccess {
		t.Error("abandoned job reported success")
	}
	if job.Status != imuwire.StatusInProgress {
		t.Errorf("status = %s, want in-progress", imuwire.FormatTransferStatus(job.Status))
	}
	for _, e := range eventsOf[TransferStatusEvent](events) {
		if e.Status == imuwire.StatusSuccess {
			t.Error("success published for an abandoned job")
		}
	}
}

func TestTransfer_StatusTimeout(t *testing.T) {
	opts := testOptions()
	opts.StatusTimeout = 30 * time.Millisecond
	c, fake := newConnectedClient(t, opts, nil)

	err := c.Transfer.Run(context.Background(), testPayload(200), imuwire.FileTypeModel)
	if !errors.Is(err, ErrStatusTimeout) {
		t.Fatalf("Run = %v, want ErrStatusTimeout", err)
	}
	if n := len(fake.WritesTo(link.RegFileBlock)); n != 0 {
		t.Errorf("%d blocks written without a status", n)
	}
	job, _ := c.Transfer.Job()
	if job.Status != imuwire.StatusError {
		t.Errorf("status = %s, want error", imuwire.FormatTransferStatus(job.Status))
	}
}

func TestTransfer_ContextCancelled(t *testing.T) {
	opts := testOptions()
	opts.StatusTimeout = time.Minute
	c, fake := newConnectedClient(t, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Transfer.Run(ctx, testPayload(200), imuwire.FileTypeModel)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
	cmds := fake.WritesTo(link.RegFileCommand)
	if len(cmds) != 2 || cmds[1][0] != byte(imuwire.CommandCancel) {
		t.Errorf("commands = %v, want start then cancel", cmds)
	}
}

// ============================================================
// Model upload
// ============================================================

func testModelConfig() ModelConfig {
	return ModelConfig{
		Type:         imuwire.InferenceTypeClassification,
		ClassCount:   3,
		DataTypes:    imuwire.NewSensorSet(imuwire.Acceleration, imuwire.RotationRate),
		SampleRate:   100,
		SampleCount:  50,
		Thresholds:   map[string]float32{"linearAcceleration": 1.5},
		CaptureDelay: 250,
	}
}

func TestUploadModel_WriteSequence(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	simulateDevice(fake, 300)

	if err := c.UploadModel(context.Background(), testModelConfig(), testPayload(300)); err != nil {
		t.Fatalf("UploadModel: %v", err)
	}

	writes := fake.Writes()
	want := []link.Register{
		link.RegInferenceType,
		link.RegInferenceClassCount,
		link.RegInferenceDataTypes,
		link.RegInferenceSampleRate,
		link.RegInferenceSampleCount,
		link.RegInferenceThresholds,
		link.RegInferenceCaptureDelay,
		link.RegFileTransferType,
		link.RegFileLength,
		link.RegFileChecksum,
		link.RegFileCommand,
	}
	if len(writes) < len(want) {
		t.Fatalf("%d writes, want at least %d", len(writes), len(want))
	}
	for i, reg := range want {
		if writes[i].Register != reg {
			t.Errorf("write %d = %s, want %s", i, writes[i].Register, reg)
		}
	}

	if got := writes[2].Data[0]; got != 0x09 {
		t.Errorf("data types mask = 0x%02X, want 0x09", got)
	}
	if got := binary.LittleEndian.Uint16(writes[3].Data); got != 100 {
		t.Errorf("sample rate = %d", got)
	}
	thresholds := writes[5].Data
	if len(thresholds) != imuwire.NumThresholds*4 {
		t.Fatalf("thresholds are %d bytes", len(thresholds))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(thresholds)); got != 1.5 {
		t.Errorf("linear acceleration threshold = %v", got)
	}
	if got := binary.LittleEndian.Uint16(writes[6].Data); got != 250 {
		t.Errorf("capture delay = %d", got)
	}
}

func TestUploadModel_AbortsOnFirstFailure(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	boom := errors.New("write not permitted")
	fake.FailWrite(link.RegInferenceThresholds, boom)

	err := c.UploadModel(context.Background(), testModelConfig(), testPayload(300))
	var we *WriteError
	if !errors.As(err, &we) || we.Register != link.RegInferenceThresholds {
		t.Fatalf("expected WriteError on thresholds, got %v", err)
	}

	for _, w := range fake.Writes() {
		switch w.Register {
		case link.RegInferenceCaptureDelay, link.RegFileCommand, link.RegFileBlock:
			t.Errorf("unexpected write to %s after failure", w.Register)
		}
	}
	if _, started := c.Transfer.Job(); started {
		t.Error("transfer started after a failed configuration write")
	}
}

func TestUploadModel_RejectedWhileTransferActive(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	dev := simulateDevice(fake, 300)

	var nested error
	dev.onBlock = func(n int) bool {
		if n == 1 {
			nested = c.UploadModel(context.Background(), testModelConfig(), testPayload(10))
		}
		return true
	}

	if err := c.Transfer.Run(context.Background(), testPayload(300), imuwire.FileTypeModel); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(nested, ErrTransferInProgress) {
		t.Errorf("UploadModel = %v, want ErrTransferInProgress", nested)
	}
	for _, w := range fake.Writes() {
		switch w.Register {
		case link.RegInferenceType, link.RegInferenceClassCount, link.RegInferenceDataTypes,
			link.RegInferenceSampleRate, link.RegInferenceSampleCount,
			link.RegInferenceThresholds, link.RegInferenceCaptureDelay:
			t.Errorf("%s written during an active transfer", w.Register)
		}
	}
}

func TestUploadModel_CancelDuringConfiguration(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	fake.OnWrite(func(reg link.Register, data []byte) {
		if reg == link.RegInferenceClassCount {
			if err := c.Transfer.Cancel(context.Background()); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}
	})

	err := c.UploadModel(context.Background(), testModelConfig(), testPayload(300))
	if !errors.Is(err, ErrTransferCancelled) {
		t.Fatalf("UploadModel = %v, want ErrTransferCancelled", err)
	}
	writes := fake.Writes()
	if len(writes) != 2 || writes[1].Register != link.RegInferenceClassCount {
		t.Errorf("writes = %+v, want type and class count only", writes)
	}
	if c.Transfer.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", c.Transfer.Phase())
	}
}

func TestUploadModel_ContextCancelledDuringConfiguration(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.OnWrite(func(reg link.Register, data []byte) {
		if reg == link.RegInferenceType {
			cancel()
		}
	})

	err := c.UploadModel(ctx, testModelConfig(), testPayload(300))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("UploadModel = %v, want context.Canceled", err)
	}
	if n := len(fake.Writes()); n != 1 {
		t.Errorf("%d writes, want 1", n)
	}
}

func TestUploadModel_Unsupported(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), func(f *linktest.Transport) {
		f.Remove(link.RegInferenceType)
	})

	err := c.UploadModel(context.Background(), testModelConfig(), testPayload(10))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("UploadModel = %v, want ErrUnsupported", err)
	}
	if len(fake.Writes()) != 0 {
		t.Error("writes issued to a device without inference support")
	}
}

func TestUploadModel_UnknownThreshold(t *testing.T) {
	c, fake := newConnectedClient(t, testOptions(), nil)
	cfg := testModelConfig()
	cfg.Thresholds = map[string]float32{"magnetometer": 2}

	if err := c.UploadModel(context.Background(), cfg, testPayload(10)); err == nil {
		t.Fatal("expected error for unknown threshold")
	}
	if len(fake.Writes()) != 0 {
		t.Error("writes issued for an invalid model configuration")
	}
}
