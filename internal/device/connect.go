package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/NovaGlider/musicboom/internal/resilience"
)

// Config selects the server and how long to wait for a device.
type Config struct {
	URI         string
	ScanTimeout time.Duration
	Retry       resilience.RetryConfig
}

// Connect dials the server with retries, waits for the first device and
// returns an actuator bound to it.
func Connect(ctx context.Context, cfg Config) (*Actuator, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultURI
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = resilience.ConnectRetryConfig()
	}

	var client *Client
	err := resilience.Retry(ctx, cfg.Retry, func() error {
		c, err := Dial(ctx, cfg.URI)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	info, err := client.WaitForDevice(ctx, cfg.ScanTimeout)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	act, err := NewActuator(client, info)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	slog.Info("bound haptic device", "device", info.Name, "index", info.Index, "vibrators", act.Vibrators())
	return act, nil
}
