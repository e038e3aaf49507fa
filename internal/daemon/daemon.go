// Package daemon wires the bridge together: configuration, the event bus,
// the local engine pool, the remote API client, helper process management,
// and the HTTP dispatch boundary.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/bridge"
	"git.home.luguber.info/inful/connectbridge/internal/config"
	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/helper"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
	"git.home.luguber.info/inful/connectbridge/internal/player"
	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
	"git.home.luguber.info/inful/connectbridge/internal/server"
)

// Daemon is the long-running bridge process.
type Daemon struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string

	bus      *events.Bus
	tasks    *sched.Scheduler
	devices  *bridge.Registry
	history  *bridge.HistoryCache
	remote   *remoteapi.Client
	pool     *player.MPDPool
	helpers  *helper.Manager
	watchdog *helper.Watchdog
	listener *bridge.Listener
	handler  *bridge.Handler
	server   *server.Server
	recorder *metrics.PrometheusRecorder

	workers       WorkerGroup
	configWatcher *ConfigWatcher
	cancelLoop    context.CancelFunc
}

// New builds a daemon from a loaded configuration. configPath enables live
// reload; pass "" to disable watching.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	tasks, err := sched.New()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		bus:        events.NewBus(),
		tasks:      tasks,
		devices:    bridge.NewRegistry(),
		history:    bridge.NewHistoryCache(),
		recorder:   metrics.NewPrometheusRecorder(nil),
	}

	d.remote = remoteapi.NewClient(cfg.Remote.BaseURL,
		time.Duration(cfg.Remote.TimeoutSeconds)*time.Second).
		WithToken(cfg.Remote.Token)
	d.pool = player.NewMPDPool(d.bus)
	d.helpers = helper.NewManager(helper.LaunchConfig{
		Binary:      cfg.Helper.Binary,
		CacheRoot:   cfg.Helper.CacheRoot,
		BitrateKbps: cfg.Helper.BitrateKbps,
		ServerAddr:  cfg.Server.AdvertiseAddr,
	}, d.recorder)

	d.listener = bridge.NewListener(d.devices, d.remote, d.pool, d.tasks,
		d.helpers, d.deviceSettings, d.recorder)
	d.handler = bridge.NewHandler(d.devices, d.remote, d.pool, d.tasks,
		d.history, d.recorder)
	d.watchdog = helper.NewWatchdog(d.helpers, &registryDeviceView{d: d},
		d.remote, d.tasks, d.recorder)
	d.server = server.New(cfg.Server.ListenAddr, d.bus,
		d.recorder.Handler(), d.recorder)

	return d, nil
}

// Start brings the daemon up: devices are registered, engine connections are
// opened, the dispatch loop and HTTP server start, and the watchdog runs its
// first pass.
func (d *Daemon) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	d.cancelLoop = cancel

	d.tasks.Start()
	d.workers.Go(func() { d.dispatchLoop(loopCtx) })

	for _, dev := range d.snapshotConfig().Devices {
		d.registerDevice(ctx, dev)
	}

	if err := d.server.Start(); err != nil {
		return err
	}
	if err := d.watchdog.Start(); err != nil {
		return err
	}

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			slog.Warn("configuration watching unavailable", logfields.Error(err))
		} else {
			d.configWatcher = watcher
			if err := watcher.Start(ctx); err != nil {
				slog.Warn("configuration watcher failed to start", logfields.Error(err))
			}
		}
	}

	slog.Info("bridge started",
		slog.String("listen_addr", d.snapshotConfig().Server.ListenAddr),
		slog.Int("devices", d.devices.Len()))
	return nil
}

// Stop shuts the daemon down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}
	if err := d.server.Stop(ctx); err != nil {
		slog.Warn("dispatch server shutdown failed", logfields.Error(err))
	}
	d.watchdog.Stop()
	if err := d.tasks.Shutdown(); err != nil {
		slog.Warn("scheduler shutdown failed", logfields.Error(err))
	}
	d.pool.Close()
	d.helpers.ShutdownHelpers(false, nil)

	if d.cancelLoop != nil {
		d.cancelLoop()
	}
	d.bus.Close()
	if err := d.workers.StopAndWait(ctx); err != nil {
		return err
	}

	slog.Info("bridge stopped")
	return nil
}

// registerDevice adds a configured device to the registry and opens its
// engine connection.
func (d *Daemon) registerDevice(ctx context.Context, dev config.DeviceConfig) {
	d.listener.HandleDeviceConnected(ctx, events.DeviceConnected{
		DeviceID: dev.ID,
		Name:     dev.Name,
	})

	cfg := d.snapshotConfig()
	addr := cfg.EngineAddrFor(dev)
	if err := d.pool.AddDevice(dev.ID, addr, cfg.Player.Password); err != nil {
		slog.Error("connecting to local engine failed",
			logfields.DeviceID(dev.ID),
			slog.String("addr", addr),
			logfields.Error(err))
	}
}

// deviceSettings resolves account and enablement from the current config.
func (d *Daemon) deviceSettings(deviceID, _ string) (string, bool) {
	cfg := d.snapshotConfig()
	dev, ok := cfg.DeviceByID(deviceID)
	if !ok {
		return cfg.DefaultAccount, false
	}
	return cfg.AccountFor(dev), dev.Enabled
}

func (d *Daemon) snapshotConfig() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// ReloadConfig applies a changed configuration to the running daemon. Device
// additions, removals, enablement flips and account changes take effect; the
// listen address cannot change without a restart.
func (d *Daemon) ReloadConfig(ctx context.Context, next *config.Config) error {
	prev := d.snapshotConfig()

	if next.Server.ListenAddr != prev.Server.ListenAddr {
		slog.Warn("listen address change requires a restart",
			slog.String("current", prev.Server.ListenAddr),
			slog.String("new", next.Server.ListenAddr))
	}

	d.cfgMu.Lock()
	d.cfg = next
	d.cfgMu.Unlock()

	known := make(map[string]bool, len(next.Devices))
	for _, dev := range next.Devices {
		known[dev.ID] = true
		d.applyDeviceConfig(ctx, prev, dev)
	}

	// Devices dropped from the config.
	for _, dev := range d.devices.List() {
		if known[dev.ID] {
			continue
		}
		slog.Info("device removed from configuration", logfields.DeviceID(dev.ID))
		d.listener.HandleDeviceDisconnected(ctx, events.DeviceDisconnected{DeviceID: dev.ID})
		d.pool.RemoveDevice(dev.ID)
	}

	// Let the watchdog realign the helper fleet right away.
	go d.watchdog.Pass(ctx)

	slog.Info("configuration reloaded", slog.Int("devices", len(next.Devices)))
	return nil
}

func (d *Daemon) applyDeviceConfig(ctx context.Context, prev *config.Config, dev config.DeviceConfig) {
	existing, ok := d.devices.Get(dev.ID)
	if !ok {
		d.registerDevice(ctx, dev)
		return
	}

	account := d.snapshotConfig().AccountFor(dev)
	if existing.Account != account {
		// A new account means a different session context: pending work for
		// the old one must not fire, and the helper must relaunch.
		slog.Info("device account changed",
			logfields.DeviceID(dev.ID),
			logfields.Account(account))
		d.tasks.CancelDevice(dev.ID)
		_ = d.helpers.StopHelper(dev.ID)
		d.devices.Update(dev.ID, func(entry *bridge.Device) {
			entry.Account = account
			entry.RemoteID = ""
			entry.Connect = bridge.ConnectState{}
			entry.Current = bridge.Song{}
			entry.Next = bridge.Song{}
		})
		return
	}

	if existing.ConnectEnabled && !dev.Enabled {
		// Disabling Connect invalidates any pending work for the device.
		d.tasks.CancelDevice(dev.ID)
		d.devices.Update(dev.ID, func(entry *bridge.Device) {
			entry.Connect = bridge.ConnectState{}
		})
	}

	d.devices.Update(dev.ID, func(entry *bridge.Device) {
		entry.Name = dev.Name
		entry.ConnectEnabled = dev.Enabled
	})
}
