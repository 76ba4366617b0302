// Package device talks to a Buttplug v3 server (Intiface) over WebSocket.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// Client is a Buttplug protocol connection. Requests are matched to replies
// by id; device add/remove events update the known device set.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	nextID  atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan reply
	devices map[uint32]Info
	added   chan struct{}
	server  serverInfo

	done    chan struct{}
	err     error
	closing atomic.Bool
	closeMu sync.Once
	cancel  context.CancelFunc
}

// Dial connects to uri and performs the protocol handshake.
func Dial(ctx context.Context, uri string) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, uri, nil)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "dial %s", uri)
	}
	// device lists with many features can exceed the default read limit
	conn.SetReadLimit(1 << 20)

	loopCtx, loopCancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		timeout: DefaultRequestTimeout,
		pending: make(map[uint32]chan reply),
		devices: make(map[uint32]Info),
		added:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		cancel:  loopCancel,
	}
	go c.readLoop(loopCtx)

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if c.server.MaxPingTime > 0 {
		interval := time.Duration(c.server.MaxPingTime) * time.Millisecond / pingFraction
		go c.pingLoop(loopCtx, interval)
	}

	slog.Info("connected to device server", "uri", uri, "server", c.server.ServerName, "max_ping_ms", c.server.MaxPingTime)
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	r, err := c.call(ctx, msgRequestServerInfo, &requestServerInfo{
		ClientName:     ClientName,
		MessageVersion: MessageVersion,
	})
	if err != nil {
		return err
	}
	if r.name != msgServerInfo {
		return apperrors.Newf(apperrors.CodeDeviceProtocol, "handshake: expected %s, got %s", msgServerInfo, r.name)
	}
	var info serverInfo
	if err := json.Unmarshal(r.raw, &info); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceProtocol, "decode ServerInfo")
	}
	c.mu.Lock()
	c.server = info
	c.mu.Unlock()
	return nil
}

// ServerName returns the name reported in the handshake.
func (c *Client) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server.ServerName
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the connection-lost error once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the connection. Pending and later calls fail.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.shutdown(apperrors.New(apperrors.CodeDeviceConnectionLost, "client closed"))
	return err
}

func (c *Client) shutdown(err error) {
	c.closeMu.Do(func() {
		c.err = err
		c.cancel()
		close(c.done)
	})
}

// call sends req and waits for the reply with the same id.
func (c *Client) call(ctx context.Context, name string, req request) (reply, error) {
	if err := c.Err(); err != nil {
		return reply{}, err
	}

	id := c.nextID.Add(1)
	req.setID(id)
	ch := make(chan reply, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := wsjson.Write(ctx, c.conn, encode(name, req)); err != nil {
		if lost := c.Err(); lost != nil {
			return reply{}, lost
		}
		return reply{}, apperrors.Wrapf(err, apperrors.CodeDeviceCommandFailed, "send %s", name)
	}

	select {
	case r := <-ch:
		if err := r.asError(); err != nil {
			if apperrors.IsCode(err, apperrors.CodeDeviceConnectionLost) {
				c.shutdown(err)
			}
			return reply{}, err
		}
		return r, nil
	case <-c.done:
		return reply{}, c.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return reply{}, apperrors.Newf(apperrors.CodeTimeout, "%s: no reply", name)
		}
		return reply{}, ctx.Err()
	}
}

// expectOk sends req and requires an Ok reply.
func (c *Client) expectOk(ctx context.Context, name string, req request) error {
	r, err := c.call(ctx, name, req)
	if err != nil {
		return err
	}
	if r.name != msgOk {
		return apperrors.Newf(apperrors.CodeDeviceProtocol, "%s: expected Ok, got %s", name, r.name)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		var batch []envelope
		if err := wsjson.Read(ctx, c.conn, &batch); err != nil {
			c.shutdown(apperrors.Wrap(err, apperrors.CodeDeviceConnectionLost, "device server connection lost"))
			if ctx.Err() == nil && !c.closing.Load() {
				slog.Warn("device server connection lost", "error", err)
			}
			return
		}
		for _, env := range batch {
			for name, raw := range env {
				c.dispatch(name, raw)
			}
		}
	}
}

func (c *Client) dispatch(name string, raw json.RawMessage) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		slog.Warn("dropping malformed server message", "type", name, "error", err)
		return
	}

	if h.ID != 0 {
		c.mu.Lock()
		ch, ok := c.pending[h.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- reply{name: name, raw: raw}:
			default:
				slog.Warn("dropping duplicate reply", "type", name, "id", h.ID)
			}
			return
		}
	}

	switch name {
	case msgDeviceAdded:
		var m deviceAdded
		if err := json.Unmarshal(raw, &m); err != nil {
			slog.Warn("dropping malformed DeviceAdded", "error", err)
			return
		}
		c.addDevices(m.Info)
		slog.Info("device added", "device", m.Name, "index", m.Index, "vibrators", len(m.Vibrators()))
	case msgDeviceRemoved:
		var m deviceIndex
		if err := json.Unmarshal(raw, &m); err != nil {
			slog.Warn("dropping malformed DeviceRemoved", "error", err)
			return
		}
		c.mu.Lock()
		delete(c.devices, m.DeviceIndex)
		c.mu.Unlock()
		slog.Info("device removed", "index", m.DeviceIndex)
	case msgScanningFinished:
		slog.Debug("device scan finished")
	case msgError:
		var m errorMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		appErr := serverError(m)
		if appErr.Code == apperrors.CodeDeviceConnectionLost {
			c.shutdown(appErr)
			return
		}
		slog.Warn("device server error", "error", appErr)
	default:
		slog.Debug("ignoring server message", "type", name, "id", h.ID)
	}
}

func (c *Client) addDevices(infos ...Info) {
	c.mu.Lock()
	for _, d := range infos {
		c.devices[d.Index] = d
	}
	c.mu.Unlock()
	if len(infos) > 0 {
		select {
		case c.added <- struct{}{}:
		default:
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.expectOk(ctx, msgPing, &empty{}); err != nil && ctx.Err() == nil {
				slog.Warn("device server ping failed", "error", err)
			}
		}
	}
}

// Devices returns the known devices ordered by index.
func (c *Client) Devices() []Info {
	c.mu.Lock()
	out := make([]Info, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Device looks up a known device by index.
func (c *Client) Device(index uint32) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[index]
	return d, ok
}

// RefreshDevices replaces the device set with the server's current list.
func (c *Client) RefreshDevices(ctx context.Context) error {
	r, err := c.call(ctx, msgRequestDeviceList, &empty{})
	if err != nil {
		return err
	}
	if r.name != msgDeviceList {
		return apperrors.Newf(apperrors.CodeDeviceProtocol, "expected %s, got %s", msgDeviceList, r.name)
	}
	var list deviceList
	if err := json.Unmarshal(r.raw, &list); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceProtocol, "decode DeviceList")
	}
	c.mu.Lock()
	c.devices = make(map[uint32]Info, len(list.Devices))
	c.mu.Unlock()
	c.addDevices(list.Devices...)
	return nil
}

// StartScanning asks the server to look for devices.
func (c *Client) StartScanning(ctx context.Context) error {
	return c.expectOk(ctx, msgStartScanning, &empty{})
}

// StopScanning ends a scan.
func (c *Client) StopScanning(ctx context.Context) error {
	return c.expectOk(ctx, msgStopScanning, &empty{})
}

// WaitForDevice returns the lowest-indexed device, scanning for up to
// timeout when none is known yet.
func (c *Client) WaitForDevice(ctx context.Context, timeout time.Duration) (Info, error) {
	if err := c.RefreshDevices(ctx); err != nil {
		return Info{}, err
	}
	if devs := c.Devices(); len(devs) > 0 {
		return devs[0], nil
	}

	if err := c.StartScanning(ctx); err != nil {
		return Info{}, err
	}
	defer func() {
		if err := c.StopScanning(context.WithoutCancel(ctx)); err != nil {
			slog.Debug("stop scanning failed", "error", err)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if devs := c.Devices(); len(devs) > 0 {
			return devs[0], nil
		}
		select {
		case <-c.added:
		case <-timer.C:
			return Info{}, apperrors.Newf(apperrors.CodeDeviceNotFound, "no device found within %s", timeout)
		case <-c.done:
			return Info{}, c.err
		case <-ctx.Done():
			return Info{}, ctx.Err()
		}
	}
}

// Scalar sends a ScalarCmd to the device at index.
func (c *Client) Scalar(ctx context.Context, index uint32, scalars []Scalar) error {
	return c.expectOk(ctx, msgScalarCmd, &scalarCmd{DeviceIndex: index, Scalars: scalars})
}

// StopDevice stops all actuators of the device at index.
func (c *Client) StopDevice(ctx context.Context, index uint32) error {
	return c.expectOk(ctx, msgStopDeviceCmd, &deviceIndex{DeviceIndex: index})
}
