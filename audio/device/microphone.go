// Package device captures mono float samples from the default input device.
package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// Microphone is an audio.Source backed by the system's default capture
// device.
type Microphone struct {
	sampleRate int
	log        logrus.FieldLogger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	buf    []float32
}

func NewMicrophone(sampleRate int, log logrus.FieldLogger) *Microphone {
	return &Microphone{sampleRate: sampleRate, log: log}
}

// Start opens the device and begins delivering samples to onSamples from
// the device thread. The slice passed to onSamples is reused between calls.
func (m *Microphone) Start(onSamples func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return fmt.Errorf("microphone already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		m.log.WithField("component", "malgo").Debug(msg)
	})
	if err != nil {
		return fmt.Errorf("audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	onData := func(_, in []byte, frames uint32) {
		n := int(frames)
		if n == 0 || len(in) < n*4 {
			return
		}
		if cap(m.buf) < n {
			m.buf = make([]float32, n)
		}
		m.buf = m.buf[:n]
		for i := range m.buf {
			m.buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
		}
		onSamples(m.buf)
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("open capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	m.ctx, m.device = ctx, dev
	m.log.WithField("sample_rate", m.sampleRate).Info("microphone capture started")
	return nil
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	m.device.Uninit()
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx, m.device = nil, nil
	return err
}
