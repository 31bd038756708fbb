// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
)

var (
	uploadType         string
	uploadClasses      uint8
	uploadDataTypes    []string
	uploadSampleRate   uint16
	uploadSampleCount  uint16
	uploadThresholds   map[string]string
	uploadCaptureDelay uint16
)

var uploadCmd = &cobra.Command{
	Use:   "upload MODEL",
	Short: "Upload an inference model",
	Long: `Write the model configuration registers and transfer the model file to the
module in 128-byte blocks.

The model file is checked against the module's maximum file length before
anything is written. Press Ctrl+C to cancel; the module confirms the
cancellation before the command exits.`,
	Example: `  imulink upload gesture.tflite --classes 4 --data-types linearAcceleration,rotationRate \
      --sample-rate 100 --samples 200 --threshold linearAcceleration=1.5`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	f := uploadCmd.Flags()
	f.StringVar(&uploadType, "type", "classification", "Inference type (classification, regression)")
	f.Uint8Var(&uploadClasses, "classes", 1, "Number of output classes")
	f.StringSliceVar(&uploadDataTypes, "data-types", []string{"linearAcceleration", "rotationRate"}, "Sensors the model consumes")
	f.Uint16Var(&uploadSampleRate, "sample-rate", 100, "Model input sample rate in Hz")
	f.Uint16Var(&uploadSampleCount, "samples", 100, "Samples per inference window")
	f.StringToStringVar(&uploadThresholds, "threshold", nil, "Motion thresholds (name=value)")
	f.Uint16Var(&uploadCaptureDelay, "capture-delay", 0, "Delay before capture in ms")
}

func modelConfigFromFlags() (device.ModelConfig, error) {
	cfg := device.ModelConfig{
		ClassCount:   uploadClasses,
		SampleRate:   uploadSampleRate,
		SampleCount:  uploadSampleCount,
		CaptureDelay: uploadCaptureDelay,
		Thresholds:   make(map[string]float32, len(uploadThresholds)),
	}

	switch uploadType {
	case "classification":
		cfg.Type = imuwire.InferenceTypeClassification
	case "regression":
		cfg.Type = imuwire.InferenceTypeRegression
	default:
		return cfg, fmt.Errorf("unknown inference type %q", uploadType)
	}

	for _, name := range uploadDataTypes {
		t, err := imuwire.ParseSensorType(name)
		if err != nil {
			return cfg, err
		}
		cfg.DataTypes = cfg.DataTypes.With(t)
	}

	for name, value := range uploadThresholds {
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return cfg, fmt.Errorf("threshold %s: %w", name, err)
		}
		cfg.Thresholds[name] = float32(v)
	}
	return cfg, nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	model, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}
	cfg, err := modelConfigFromFlags()
	if err != nil {
		return err
	}

	sigCtx, stop := signalContext()
	defer stop()

	s, err := connect(sigCtx, "")
	if err != nil {
		return err
	}
	defer s.Close()
	client := s.client

	fmt.Println(titleStyle.Render("imulink - Model Upload"))
	printField("Model", args[0])
	printField("Size", fmt.Sprintf("%d bytes", len(model)))
	printField("CRC32", fmt.Sprintf("0x%08X", imuwire.CalculateCRC32(model)))

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	unsubscribe := client.Bus.Subscribe(func(e device.Event) {
		switch ev := e.(type) {
		case device.TransferProgressEvent:
			fmt.Printf("\r%s %d/%d", bar.ViewAs(ev.Progress), ev.Sent, ev.Total)
		case device.TransferErrorEvent:
			fmt.Printf("\n%s %s\n", errorStyle.Render("DEVICE ERROR:"), ev.Message)
		}
	})
	defer unsubscribe()

	// The upload runs outside the signal context so Ctrl+C goes through the
	// device's cancel handshake instead of abandoning the job.
	uploadCtx, abortUpload := context.WithCancel(context.Background())
	defer abortUpload()
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- client.UploadModel(uploadCtx, cfg, model)
	}()

	select {
	case err = <-done:
	case <-sigCtx.Done():
		fmt.Printf("\n%s\n", warningStyle.Render("Cancelling..."))
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cerr := client.Transfer.Cancel(cancelCtx)
		cancel()
		switch {
		case errors.Is(cerr, device.ErrNoTransfer):
			// the engine is not reserved yet; stop before it is
			abortUpload()
		case cerr != nil:
			log.Warnf("cancel: %v", cerr)
			abortUpload()
		}
		err = <-done
		if errors.Is(err, context.Canceled) {
			err = device.ErrTransferCancelled
		}
	}
	fmt.Println()

	if job, ok := client.Transfer.Job(); ok {
		summary := fmt.Sprintf("Status:  %s\nSent:    %d/%d bytes\nElapsed: %s",
			imuwire.FormatTransferStatus(job.Status), job.Sent, job.Length, time.Since(start).Round(time.Millisecond))
		if job.DeviceError != "" {
			summary += "\nError:   " + job.DeviceError
		}
		fmt.Println(boxStyle.Render(summary))
	}

	switch {
	case err == nil:
		fmt.Println(valueStyle.Render("Upload complete"))
		return nil
	case errors.Is(err, device.ErrTransferCancelled):
		fmt.Println(warningStyle.Render("Upload cancelled"))
		return nil
	}
	return fmt.Errorf("upload failed: %w", err)
}
