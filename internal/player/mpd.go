package player

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
)

// endingLead is how far before the end of the current track the adapter
// signals TrackEnding, giving the history-dedup workflow time to decide
// whether to queue the next track or schedule a stop.
const endingLead = 10 * time.Second

const publishTimeout = 5 * time.Second

// MPDPool is the MPD-backed LocalPlayer. Each bridged device maps to one MPD
// instance; the pool owns the client connection and an idle watcher per
// device and translates MPD state transitions into typed playback events.
type MPDPool struct {
	bus     *events.Bus
	tracker *originTracker

	mu    sync.Mutex
	conns map[string]*deviceConn
}

type deviceConn struct {
	deviceID string
	addr     string
	password string

	cmdMu  sync.Mutex
	client *mpd.Client

	watcher *mpd.Watcher
	stop    chan struct{}

	stateMu    sync.Mutex
	lastURI    string
	lastState  string
	lastVolume int
	endTimer   *time.Timer
	endingFor  string // track uri TrackEnding was already sent for
}

// NewMPDPool creates an empty pool publishing events to bus.
func NewMPDPool(bus *events.Bus) *MPDPool {
	return &MPDPool{
		bus:     bus,
		tracker: newOriginTracker(),
		conns:   make(map[string]*deviceConn),
	}
}

// dialMPD authenticates when the instance is password-protected.
func dialMPD(addr, password string) (*mpd.Client, error) {
	if password == "" {
		return mpd.Dial("tcp", addr)
	}
	return mpd.DialAuthenticated("tcp", addr, password)
}

// AddDevice connects to the MPD instance backing a device and starts its
// watcher. Both connections authenticate with password when it is non-empty.
// Adding an already-known device is a no-op.
func (p *MPDPool) AddDevice(deviceID, addr, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conns[deviceID]; ok {
		return nil
	}

	client, err := dialMPD(addr, password)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryPlayer, "connecting to MPD").
			WithContext("device_id", deviceID).
			WithContext("addr", addr).
			Build()
	}

	watcher, err := mpd.NewWatcher("tcp", addr, password, "player", "mixer")
	if err != nil {
		_ = client.Close()
		return ferrors.WrapError(err, ferrors.CategoryPlayer, "starting MPD watcher").
			WithContext("device_id", deviceID).
			Build()
	}

	conn := &deviceConn{
		deviceID:   deviceID,
		addr:       addr,
		password:   password,
		client:     client,
		watcher:    watcher,
		stop:       make(chan struct{}),
		lastVolume: -1,
	}
	p.conns[deviceID] = conn

	go p.watchLoop(conn)
	return nil
}

// RemoveDevice closes a device's connection and watcher.
func (p *MPDPool) RemoveDevice(deviceID string) {
	p.mu.Lock()
	conn, ok := p.conns[deviceID]
	if ok {
		delete(p.conns, deviceID)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	conn.shutdown()
	p.tracker.clear(deviceID)
}

// Close shuts down all device connections.
func (p *MPDPool) Close() {
	p.mu.Lock()
	conns := make([]*deviceConn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*deviceConn)
	p.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

func (c *deviceConn) shutdown() {
	close(c.stop)
	_ = c.watcher.Close()

	c.cmdMu.Lock()
	_ = c.client.Close()
	c.cmdMu.Unlock()

	c.stateMu.Lock()
	if c.endTimer != nil {
		c.endTimer.Stop()
	}
	c.stateMu.Unlock()
}

func (p *MPDPool) conn(deviceID string) (*deviceConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[deviceID]
	if !ok {
		return nil, ferrors.NotFoundError("no MPD connection for device").
			WithContext("device_id", deviceID).
			Build()
	}
	return conn, nil
}

// do runs an MPD command, redialing once if the connection went away.
func (c *deviceConn) do(fn func(*mpd.Client) error) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := fn(c.client); err == nil {
		return nil
	}

	client, err := dialMPD(c.addr, c.password)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryPlayer, "reconnecting to MPD").
			WithContext("device_id", c.deviceID).
			Build()
	}
	_ = c.client.Close()
	c.client = client
	return fn(c.client)
}

// Play starts a new stream, replacing the current queue.
func (p *MPDPool) Play(ctx context.Context, deviceID, uri string, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	p.tracker.mark(deviceID, classTrack, origin)
	return conn.do(func(c *mpd.Client) error {
		if err := c.Clear(); err != nil {
			return err
		}
		if err := c.Add(uri); err != nil {
			return err
		}
		return c.Play(-1)
	})
}

// Resume continues the paused stream. It never restarts from the beginning.
func (p *MPDPool) Resume(ctx context.Context, deviceID string, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	p.tracker.mark(deviceID, classTrack, origin)
	return conn.do(func(c *mpd.Client) error {
		return c.Pause(false)
	})
}

func (p *MPDPool) Pause(ctx context.Context, deviceID string, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	p.tracker.mark(deviceID, classPause, origin)
	return conn.do(func(c *mpd.Client) error {
		return c.Pause(true)
	})
}

func (p *MPDPool) Seek(ctx context.Context, deviceID string, position time.Duration, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	p.tracker.mark(deviceID, classSeek, origin)
	return conn.do(func(c *mpd.Client) error {
		return c.SeekCur(position, false)
	})
}

func (p *MPDPool) SetVolume(ctx context.Context, deviceID string, percent int, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	p.tracker.mark(deviceID, classVolume, origin)
	return conn.do(func(c *mpd.Client) error {
		return c.SetVolume(percent)
	})
}

// QueueNext appends the upcoming stream after the current one.
func (p *MPDPool) QueueNext(ctx context.Context, deviceID, uri string, origin events.Origin) error {
	conn, err := p.conn(deviceID)
	if err != nil {
		return err
	}

	return conn.do(func(c *mpd.Client) error {
		return c.Add(uri)
	})
}

// Status returns the playback snapshot for a device.
func (p *MPDPool) Status(ctx context.Context, deviceID string) (Status, error) {
	conn, err := p.conn(deviceID)
	if err != nil {
		return Status{}, err
	}

	var attrs mpd.Attrs
	err = conn.do(func(c *mpd.Client) error {
		var serr error
		attrs, serr = c.Status()
		return serr
	})
	if err != nil {
		return Status{}, ferrors.WrapError(err, ferrors.CategoryPlayer, "querying MPD status").
			WithContext("device_id", deviceID).
			Build()
	}

	return statusFromAttrs(attrs), nil
}

func statusFromAttrs(attrs mpd.Attrs) Status {
	st := Status{
		Playing: attrs["state"] == "play",
		Volume:  -1,
	}
	if v, err := strconv.ParseFloat(attrs["elapsed"], 64); err == nil {
		st.Elapsed = time.Duration(v * float64(time.Second))
	}
	if v, err := strconv.ParseFloat(attrs["duration"], 64); err == nil {
		st.Duration = time.Duration(v * float64(time.Second))
	}
	if v, err := strconv.Atoi(attrs["volume"]); err == nil {
		st.Volume = v
	}
	return st
}

// watchLoop consumes MPD idle notifications and publishes typed events.
func (p *MPDPool) watchLoop(conn *deviceConn) {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-conn.stop:
			return
		case err, ok := <-conn.watcher.Error:
			if !ok {
				return
			}
			slog.Warn("MPD watcher error", logfields.DeviceID(conn.deviceID), logfields.Error(err))
		case <-keepalive.C:
			_ = conn.do(func(c *mpd.Client) error { return c.Ping() })
		case subsystem, ok := <-conn.watcher.Event:
			if !ok {
				return
			}
			if subsystem != "player" && subsystem != "mixer" {
				continue
			}
			p.handleChange(conn)
		}
	}
}

func (p *MPDPool) handleChange(conn *deviceConn) {
	var attrs, song mpd.Attrs
	err := conn.do(func(c *mpd.Client) error {
		var serr error
		if attrs, serr = c.Status(); serr != nil {
			return serr
		}
		song, serr = c.CurrentSong()
		return serr
	})
	if err != nil {
		slog.Warn("querying MPD after idle event failed",
			logfields.DeviceID(conn.deviceID), logfields.Error(err))
		return
	}

	uri := song["file"]
	state := attrs["state"]
	volume := -1
	if v, aerr := strconv.Atoi(attrs["volume"]); aerr == nil {
		volume = v
	}

	conn.stateMu.Lock()
	prevURI, prevState, prevVolume := conn.lastURI, conn.lastState, conn.lastVolume
	conn.lastURI, conn.lastState, conn.lastVolume = uri, state, volume
	conn.stateMu.Unlock()

	if evt := p.playbackTransition(conn.deviceID, prevURI, prevState, uri, state); evt != nil {
		p.publish(evt)
	}

	if volume >= 0 && volume != prevVolume && prevVolume >= 0 {
		p.publish(events.VolumeChanged{
			DeviceID: conn.deviceID,
			Percent:  volume,
			Origin:   p.tracker.consume(conn.deviceID, classVolume),
		})
	}

	p.rearmEndingTimer(conn, statusFromAttrs(attrs), uri, state)
}

// playbackTransition maps a state diff to the event it should publish, nil
// when the transition is not reportable. Entering "play" on the same uri is a
// resume from pause or stop and announces the track again.
func (p *MPDPool) playbackTransition(deviceID, prevURI, prevState, uri, state string) any {
	switch {
	case state == "play" && (uri != prevURI || prevState != "play"):
		return events.TrackStarted{
			DeviceID:  deviceID,
			TrackURI:  uri,
			Origin:    p.tracker.consume(deviceID, classTrack),
			StartedAt: time.Now(),
		}
	case state == "pause" && prevState != "pause":
		return events.Paused{
			DeviceID: deviceID,
			Origin:   p.tracker.consume(deviceID, classPause),
		}
	case state == "stop" && prevState != "stop":
		return events.Stopped{
			DeviceID: deviceID,
			Origin:   p.tracker.consume(deviceID, classPause),
		}
	}
	return nil
}

// rearmEndingTimer schedules the TrackEnding signal for the current track.
// The timer is cancel-and-replace; each track triggers it at most once.
func (p *MPDPool) rearmEndingTimer(conn *deviceConn, st Status, uri, state string) {
	conn.stateMu.Lock()
	defer conn.stateMu.Unlock()

	if conn.endTimer != nil {
		conn.endTimer.Stop()
		conn.endTimer = nil
	}

	if state != "play" || st.Duration <= 0 || uri == "" || conn.endingFor == uri {
		return
	}

	remaining := st.Duration - st.Elapsed - endingLead
	if remaining < 0 {
		remaining = 0
	}

	conn.endTimer = time.AfterFunc(remaining, func() {
		conn.stateMu.Lock()
		if conn.endingFor == uri {
			conn.stateMu.Unlock()
			return
		}
		conn.endingFor = uri
		conn.stateMu.Unlock()

		p.publish(events.TrackEnding{DeviceID: conn.deviceID, TrackURI: uri})
	})
}

func (p *MPDPool) publish(evt any) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.bus.Publish(ctx, evt); err != nil {
		slog.Warn("dropping playback event", logfields.Error(err))
	}
}
