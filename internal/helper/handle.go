// Package helper owns the lifecycle of the external per-device daemon
// processes that maintain the actual remote sessions: spawning, liveness
// probing, termination, and the self-rescheduling watchdog that keeps the
// helper fleet aligned with the device table.
package helper

import (
	"os/exec"
	"syscall"
	"time"
)

// killGrace is how long a terminated helper gets to exit before SIGKILL.
const killGrace = 5 * time.Second

// Handle is one running helper daemon process. At most one live handle exists
// per device id; the Manager enforces that invariant.
type Handle struct {
	deviceID  string
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
}

func spawn(deviceID, binary string, args []string) (*Handle, error) {
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		deviceID:  deviceID,
		cmd:       cmd,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	// Reap the child so it never zombies; done doubles as the liveness probe.
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// Alive reports whether the helper process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// PID returns the helper's process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Terminate signals the helper to exit, escalating to SIGKILL after a grace
// period. Safe to call on an already-dead handle.
func (h *Handle) Terminate() {
	if !h.Alive() || h.cmd.Process == nil {
		return
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	go func() {
		select {
		case <-h.done:
		case <-time.After(killGrace):
			_ = h.cmd.Process.Kill()
		}
	}()
}

// Done returns a channel closed when the process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
