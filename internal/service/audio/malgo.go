package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes an available capture device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// MalgoDevice captures from a system microphone through miniaudio.
type MalgoDevice struct{}

// NewMalgoDevice returns the system microphone backend.
func NewMalgoDevice() *MalgoDevice {
	return &MalgoDevice{}
}

// Name implements Device.
func (d *MalgoDevice) Name() string { return "malgo" }

// ListDevices returns the capture devices known to the audio backend.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}

// Open implements Device. deviceID matches a device name or id from ListDevices.
func (d *MalgoDevice) Open(deviceID string, loop bool, bufferSeconds, sampleRate int) (Clip, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	if deviceID != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeContext(ctx)
			return nil, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
		}
		found := false
		for i := range infos {
			if infos[i].Name() == deviceID || infos[i].ID.String() == deviceID {
				cfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeContext(ctx)
			return nil, fmt.Errorf("%w: no capture device named %q", ErrDeviceUnavailable, deviceID)
		}
	}

	c := &malgoClip{
		ring: newRing(bufferSeconds*sampleRate, 1, loop),
		ctx:  ctx,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			if frames == 0 {
				return
			}
			samples := make([]float32, len(input)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			_ = c.write(samples)
		},
		Stop: func() {
			c.halt()
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(ctx)
		return nil, fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}
	c.device = device
	return c, nil
}

type malgoClip struct {
	*ring
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
}

func (c *malgoClip) Close() error {
	var err error
	c.once.Do(func() {
		c.halt()
		if c.device != nil {
			err = c.device.Stop()
			c.device.Uninit()
		}
		freeContext(c.ctx)
	})
	return err
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
