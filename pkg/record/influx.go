// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package record

import (
	"context"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/device"
	"github.com/imulink/imulink/pkg/imuwire"
)

// Measurement names
const (
	MeasurementSample      = "imu_sample"
	MeasurementCalibration = "imu_calibration"
	MeasurementBattery     = "battery"
)

// InfluxOptions configures an InfluxDB sink.
type InfluxOptions struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Token  string `yaml:"token" mapstructure:"token"`
	Org    string `yaml:"org" mapstructure:"org"`
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	// Device tags every point.
	Device string `yaml:"device" mapstructure:"device"`
	// BatchSize points are written per request.
	BatchSize int `yaml:"batchSize" mapstructure:"batchSize"`
	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration `yaml:"flushInterval" mapstructure:"flushInterval"`
}

// PointWriter is the part of the InfluxDB write API the sink uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink converts bus events into InfluxDB points. Handle never blocks;
// points are written in batches by Run, and dropped when the queue is full.
type InfluxSink struct {
	writer   PointWriter
	client   influxdb2.Client
	device   string
	batch    int
	interval time.Duration
	queue    chan *write.Point
	now      func() time.Time

	mu      sync.Mutex
	written int
	dropped int
	failed  int
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	influxQueueSize      = 4096
)

// NewInfluxSink connects a sink to an InfluxDB server.
func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	s := NewInfluxSinkWriter(client.WriteAPIBlocking(opts.Org, opts.Bucket), opts)
	s.client = client
	return s
}

// NewInfluxSinkWriter creates a sink writing through writer.
func NewInfluxSinkWriter(writer PointWriter, opts InfluxOptions) *InfluxSink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &InfluxSink{
		writer:   writer,
		device:   opts.Device,
		batch:    opts.BatchSize,
		interval: opts.FlushInterval,
		queue:    make(chan *write.Point, influxQueueSize),
		now:      time.Now,
	}
}

// Attach subscribes the sink to bus and returns the unsubscribe function.
func (s *InfluxSink) Attach(bus *device.Bus) func() {
	return bus.Subscribe(s.Handle)
}

// Handle queues a point for every event the sink exports.
func (s *InfluxSink) Handle(e device.Event) {
	p := s.point(e)
	if p == nil {
		return
	}
	select {
	case s.queue <- p:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

func (s *InfluxSink) tags(extra map[string]string) map[string]string {
	tags := map[string]string{}
	if s.device != "" {
		tags["device"] = s.device
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

func (s *InfluxSink) point(e device.Event) *write.Point {
	now := s.now()
	switch ev := e.(type) {
	case device.SampleEvent:
		return influxdb2.NewPoint(MeasurementSample,
			s.tags(map[string]string{"sensor": ev.Sample.Type.String()}),
			sampleFields(ev.Sample),
			now)
	case device.CalibrationEvent:
		return influxdb2.NewPoint(MeasurementCalibration,
			s.tags(nil),
			map[string]interface{}{
				"system":        ev.State.System,
				"gyroscope":     ev.State.Gyroscope,
				"accelerometer": ev.State.Accelerometer,
				"magnetometer":  ev.State.Magnetometer,
			},
			now)
	case device.BatteryEvent:
		return influxdb2.NewPoint(MeasurementBattery,
			s.tags(nil),
			map[string]interface{}{"level": ev.Level},
			now)
	}
	return nil
}

func sampleFields(sample imuwire.Sample) map[string]interface{} {
	fields := map[string]interface{}{"device_ms": sample.Timestamp}
	c := sample.Components()
	fields["x"], fields["y"], fields["z"] = c[0], c[1], c[2]
	if len(c) > 3 {
		fields["w"] = c[3]
	}
	return fields
}

// Run writes queued points until ctx is done, then flushes what is left.
func (s *InfluxSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	pending := make([]*write.Point, 0, s.batch)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := s.writer.WritePoint(ctx, pending...); err != nil {
			log.Warnf("influx write of %d points failed: %v", len(pending), err)
			s.mu.Lock()
			s.failed += len(pending)
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			s.written += len(pending)
			s.mu.Unlock()
		}
		pending = pending[:0]
	}

	for {
		select {
		case p := <-s.queue:
			pending = append(pending, p)
			if len(pending) >= s.batch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case p := <-s.queue:
					pending = append(pending, p)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return nil
		}
	}
}

// Counts returns how many points were written, dropped on a full queue, and
// lost to failed writes.
func (s *InfluxSink) Counts() (written, dropped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped, s.failed
}

// Close releases the InfluxDB client, if the sink owns one.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
