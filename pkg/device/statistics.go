// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/imulink/imulink/pkg/imuwire"
)

// Statistics tracks telemetry frame counts and rates.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	MalformedFrames uint64
	TotalSamples    uint64
	SamplesByType   [imuwire.Euler + 1]uint64

	// Rates (calculated)
	FrameRate  float64 // frames/sec
	SampleRate float64 // samples/sec
	ErrorRate  float64 // malformed frames/sec
}

// statsTracker guards a Statistics value shared between the notification
// goroutine and readers.
type statsTracker struct {
	mu sync.Mutex
	s  Statistics
}

func newStatsTracker() *statsTracker {
	now := time.Now()
	return &statsTracker{s: Statistics{StartTime: now, LastUpdateTime: now}}
}

func (t *statsTracker) record(samples []imuwire.Sample, decodeErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.TotalFrames++
	t.s.LastUpdateTime = time.Now()
	if decodeErr != nil {
		t.s.MalformedFrames++
		return
	}
	t.s.ValidFrames++
	for _, sample := range samples {
		t.s.TotalSamples++
		if int(sample.Type) < len(t.s.SamplesByType) {
			t.s.SamplesByType[sample.Type]++
		}
	}
}

func (t *statsTracker) snapshot() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	s.CalculateRates()
	return s
}

func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.s = Statistics{StartTime: now, LastUpdateTime: now}
}

// CalculateRates calculates frame, sample and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.SampleRate = float64(s.TotalSamples) / elapsed
		s.ErrorRate = float64(s.MalformedFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	s.CalculateRates()

	var validPercent, malformedPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		malformedPercent = float64(s.MalformedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, malformedPercent)
	}
	result += fmt.Sprintf("Total Samples:   %8d\n", s.TotalSamples)
	for i, n := range s.SamplesByType {
		if n > 0 {
			result += fmt.Sprintf("  %-18s %8d\n", imuwire.SensorType(i), n)
		}
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
