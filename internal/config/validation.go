package config

import (
	"fmt"
	"net/url"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
)

// Validate checks the configuration for problems that would prevent the
// bridge from operating. Defaults must be applied first.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return ferrors.ValidationError("remote.base_url is required").Build()
	}
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return ferrors.ValidationError("remote.base_url must be an absolute URL").
			WithContext("base_url", c.Remote.BaseURL).
			Build()
	}
	if c.Helper.Binary == "" {
		return ferrors.ValidationError("helper.binary is required").Build()
	}

	if len(c.Devices) == 0 {
		return ferrors.ValidationError("at least one device must be configured").Build()
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		if dev.ID == "" {
			return ferrors.ValidationError(fmt.Sprintf("devices[%d]: id is required", i)).Build()
		}
		if seen[dev.ID] {
			return ferrors.ValidationError("duplicate device id").
				WithContext("device_id", dev.ID).
				Build()
		}
		seen[dev.ID] = true
		if dev.Name == "" {
			return ferrors.ValidationError("device name is required").
				WithContext("device_id", dev.ID).
				Build()
		}
		if dev.Enabled && c.AccountFor(dev) == "" {
			return ferrors.ValidationError("enabled device has no account and no default_account is set").
				WithContext("device_id", dev.ID).
				Build()
		}
	}
	return nil
}
