package config

const (
	defaultListenAddr     = "127.0.0.1:3678"
	defaultRemoteTimeout  = 10
	defaultBitrateKbps    = 96
	defaultEngineAddr     = "127.0.0.1:6600"
	defaultHelperCacheDir = "/var/cache/connectbridge"
)

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.AdvertiseAddr == "" {
		c.Server.AdvertiseAddr = c.Server.ListenAddr
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
	if c.Helper.BitrateKbps <= 0 {
		c.Helper.BitrateKbps = defaultBitrateKbps
	}
	if c.Helper.CacheRoot == "" {
		c.Helper.CacheRoot = defaultHelperCacheDir
	}
	if c.Player.Addr == "" {
		c.Player.Addr = defaultEngineAddr
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}
