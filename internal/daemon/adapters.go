package daemon

import (
	"git.home.luguber.info/inful/connectbridge/internal/bridge"
	"git.home.luguber.info/inful/connectbridge/internal/helper"
)

// registryDeviceView adapts the device registry to the watchdog's view of the
// device table.
type registryDeviceView struct {
	d *Daemon
}

func (v *registryDeviceView) Snapshot() []helper.DeviceInfo {
	devices := v.d.devices.List()
	out := make([]helper.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		out = append(out, helper.DeviceInfo{
			ID:             dev.ID,
			Name:           dev.Name,
			Account:        dev.Account,
			RemoteID:       dev.RemoteID,
			ConnectEnabled: dev.ConnectEnabled,
		})
	}
	return out
}

func (v *registryDeviceView) SetRemoteID(deviceID, remoteID string) {
	v.d.devices.Update(deviceID, func(dev *bridge.Device) {
		dev.RemoteID = remoteID
	})
}
