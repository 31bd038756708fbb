// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"fmt"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

// ModelConfig describes an inference model's input parameters.
type ModelConfig struct {
	Type         imuwire.InferenceType
	ClassCount   uint8
	DataTypes    imuwire.SensorSet
	SampleRate   uint16
	SampleCount  uint16
	Thresholds   map[string]float32 // keyed by imuwire.ThresholdIndex names
	CaptureDelay uint16
}

type registerWrite struct {
	reg  link.Register
	data []byte
}

func (m ModelConfig) writes() ([]registerWrite, error) {
	thresholds, err := imuwire.EncodeThresholds(m.Thresholds)
	if err != nil {
		return nil, err
	}
	return []registerWrite{
		{link.RegInferenceType, []byte{byte(m.Type)}},
		{link.RegInferenceClassCount, []byte{m.ClassCount}},
		{link.RegInferenceDataTypes, []byte{imuwire.EncodeMask(m.DataTypes)}},
		{link.RegInferenceSampleRate, imuwire.EncodeUint16(m.SampleRate)},
		{link.RegInferenceSampleCount, imuwire.EncodeUint16(m.SampleCount)},
		{link.RegInferenceThresholds, thresholds},
		{link.RegInferenceCaptureDelay, imuwire.EncodeUint16(m.CaptureDelay)},
	}, nil
}

// UploadModel writes the model configuration registers in order, then
// transfers the model file. The engine is reserved before the first write, so
// a running job's configuration is never overwritten. The first failed write
// aborts the upload and is returned as is; no transfer is started. Cancel and
// ctx are honoured between configuration writes.
func (e *Transfer) UploadModel(ctx context.Context, cfg ModelConfig, model []byte) error {
	if !e.session.IsConnected() {
		return ErrNotConnected
	}
	if !e.session.Has(link.RegInferenceType) {
		return fmt.Errorf("model upload: %w", ErrUnsupported)
	}
	writes, err := cfg.writes()
	if err != nil {
		return err
	}
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	for _, w := range writes {
		if e.isCancelled() {
			return ErrTransferCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.session.Write(ctx, w.reg, w.data); err != nil {
			return err
		}
	}
	return e.run(ctx, model, imuwire.FileTypeModel)
}
