package device

import (
	"context"
	"math"
	"strconv"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// Actuator drives the vibrators of one device.
type Actuator struct {
	client    *Client
	device    Info
	vibrators []int
}

// NewActuator binds to a device that has at least one vibrator.
func NewActuator(c *Client, d Info) (*Actuator, error) {
	vib := d.Vibrators()
	if len(vib) == 0 {
		return nil, apperrors.Newf(apperrors.CodeDeviceNotFound, "device %q has no vibrators", d.Name).
			WithMetadata("device_index", strconv.FormatUint(uint64(d.Index), 10))
	}
	return &Actuator{client: c, device: d, vibrators: vib}, nil
}

// Name returns the bound device's name.
func (a *Actuator) Name() string { return a.device.Name }

// Vibrators returns how many vibrate actuators the device has.
func (a *Actuator) Vibrators() int { return len(a.vibrators) }

// Done is closed when the underlying connection is gone.
func (a *Actuator) Done() <-chan struct{} { return a.client.Done() }

// SetIntensities sets vibrator i to values[i]. Values past the last
// vibrator are folded into it by maximum.
func (a *Actuator) SetIntensities(ctx context.Context, values []float64) error {
	if _, ok := a.client.Device(a.device.Index); !ok {
		if err := a.client.Err(); err != nil {
			return err
		}
		return apperrors.Newf(apperrors.CodeDeviceConnectionLost, "device %q removed", a.device.Name)
	}
	if len(values) == 0 {
		return nil
	}
	return a.client.Scalar(ctx, a.device.Index, a.scalars(values))
}

func (a *Actuator) scalars(values []float64) []Scalar {
	n := min(len(values), len(a.vibrators))
	out := make([]Scalar, n)
	for i := 0; i < n; i++ {
		out[i] = Scalar{Index: a.vibrators[i], Scalar: clamp01(values[i]), ActuatorType: ActuatorVibrate}
	}
	for _, v := range values[n:] {
		out[n-1].Scalar = math.Max(out[n-1].Scalar, clamp01(v))
	}
	return out
}

// Stop stops the device.
func (a *Actuator) Stop(ctx context.Context) error {
	return a.client.StopDevice(ctx, a.device.Index)
}

// Close stops the device and closes the connection.
func (a *Actuator) Close(ctx context.Context) error {
	if a.client.Err() == nil {
		if err := a.Stop(ctx); err != nil {
			_ = a.client.Close()
			return err
		}
	}
	return a.client.Close()
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
