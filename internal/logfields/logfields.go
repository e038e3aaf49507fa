package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDeviceID   = "device_id"
	KeyDeviceName = "device_name"
	KeyRemoteID   = "remote_id"
	KeyAccount    = "account"
	KeyTrackURI   = "track_uri"
	KeyCommand    = "command"
	KeyOrigin     = "origin"
	KeyTask       = "task"
	KeyDispatchID = "dispatch_id"
	KeyPID        = "pid"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DeviceID(id string) slog.Attr     { return slog.String(KeyDeviceID, id) }
func DeviceName(n string) slog.Attr    { return slog.String(KeyDeviceName, n) }
func RemoteID(id string) slog.Attr     { return slog.String(KeyRemoteID, id) }
func Account(a string) slog.Attr       { return slog.String(KeyAccount, a) }
func TrackURI(uri string) slog.Attr    { return slog.String(KeyTrackURI, uri) }
func Command(cmd string) slog.Attr     { return slog.String(KeyCommand, cmd) }
func Origin(o string) slog.Attr        { return slog.String(KeyOrigin, o) }
func Task(name string) slog.Attr       { return slog.String(KeyTask, name) }
func DispatchID(id string) slog.Attr   { return slog.String(KeyDispatchID, id) }
func PID(pid int) slog.Attr            { return slog.Int(KeyPID, pid) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
