package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Capture streams audio from a malgo device as float32 frames.
// It backs both the microphone source and the system-audio loopback source.
type Capture struct {
	ctx        *malgo.AllocatedContext
	deviceType malgo.DeviceType
	sampleRate uint32
	channels   uint32

	mu      sync.Mutex
	device  *malgo.Device
	started bool
	stopped bool
	frames  chan []float32
}

// NewMicrophone creates a capture source for the default input device.
// Call Stop (or Close on shutdown) when done.
func NewMicrophone(sampleRate, channels uint32) (*Capture, error) {
	return newCapture(malgo.Capture, sampleRate, channels)
}

// NewLoopback creates a capture source for system audio output.
// Loopback capture is not supported by every backend; Start reports
// ErrUnavailable in that case.
func NewLoopback(sampleRate, channels uint32) (*Capture, error) {
	return newCapture(malgo.Loopback, sampleRate, channels)
}

func newCapture(deviceType malgo.DeviceType, sampleRate, channels uint32) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	return &Capture{
		ctx:        ctx,
		deviceType: deviceType,
		sampleRate: sampleRate,
		channels:   channels,
		frames:     make(chan []float32, 64),
	}, nil
}

// Start opens the device and begins delivering frames. Idempotent.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if c.stopped {
		return ErrUnavailable
	}

	deviceCfg := malgo.DefaultDeviceConfig(c.deviceType)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("%w: initializing device: %v", ErrUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: starting device: %v", ErrUnavailable, err)
	}

	c.device = device
	c.started = true
	return nil
}

// Frames returns the frame channel.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// Stop ends capture and closes the frame channel.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	close(c.frames)
}

// Close releases the audio context. Call once, after Stop.
func (c *Capture) Close() error {
	c.Stop()
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured frames as raw little-endian float32 bytes.
// The frame is dropped if the consumer has fallen behind; the device
// callback must never block.
func (c *Capture) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * c.channels
	samples := bytesToFloat32(pSample, sampleCount)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	select {
	case c.frames <- samples:
	default:
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
