// Package sched provides the bridge's scheduled-task abstraction: one-shot
// deferred tasks keyed by (deviceID, taskKind) with cancel-and-replace
// semantics. It backs the volume debounce, the delayed device-list
// reconciliation, the end-of-context pause, and the self-rescheduling
// watchdog.
package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
)

// TaskKind identifies a class of deferred work. At most one task per
// (deviceID, kind) is ever pending; scheduling again replaces the old one.
type TaskKind string

const (
	TaskVolumePush        TaskKind = "volume_push"
	TaskReconcileDevices  TaskKind = "reconcile_devices"
	TaskEndOfContextPause TaskKind = "end_of_context_pause"
	TaskWatchdog          TaskKind = "watchdog"
)

type taskKey struct {
	deviceID string
	kind     TaskKind
}

// Scheduler runs one-shot deferred tasks on top of gocron.
type Scheduler struct {
	scheduler gocron.Scheduler

	mu   sync.Mutex
	jobs map[taskKey]uuid.UUID
}

// New creates a scheduler. Call Start before scheduling and Shutdown on exit.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create task scheduler").Build()
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[taskKey]uuid.UUID),
	}, nil
}

// Start begins executing scheduled tasks.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and drops all pending tasks.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	s.jobs = make(map[taskKey]uuid.UUID)
	s.mu.Unlock()
	return s.scheduler.Shutdown()
}

// Schedule registers fn to run once after delay. Any pending task with the
// same (deviceID, kind) is canceled first (cancel-and-replace). deviceID may
// be empty for process-wide tasks such as the watchdog.
func (s *Scheduler) Schedule(deviceID string, kind TaskKind, delay time.Duration, fn func()) error {
	if fn == nil {
		return ferrors.ValidationError("task function is required").Build()
	}

	key := taskKey{deviceID: deviceID, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[key]; ok {
		_ = s.scheduler.RemoveJob(old)
		delete(s.jobs, key)
	}

	var jobID uuid.UUID
	run := func() {
		fn()
		s.mu.Lock()
		if cur, ok := s.jobs[key]; ok && cur == jobID {
			delete(s.jobs, key)
		}
		s.mu.Unlock()
		_ = s.scheduler.RemoveJob(jobID)
	}

	start := gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	if delay <= 0 {
		start = gocron.OneTimeJobStartImmediately()
	}

	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(run),
		gocron.WithName(fmt.Sprintf("%s/%s", deviceID, kind)),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule task").
			WithContext("device_id", deviceID).
			WithContext("task", string(kind)).
			Build()
	}

	jobID = job.ID()
	s.jobs[key] = jobID
	return nil
}

// Cancel drops a pending task if one exists. It is a no-op otherwise.
func (s *Scheduler) Cancel(deviceID string, kind TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey{deviceID: deviceID, kind: kind}
	if id, ok := s.jobs[key]; ok {
		_ = s.scheduler.RemoveJob(id)
		delete(s.jobs, key)
	}
}

// CancelDevice drops every pending task for a device. Used on disconnect,
// account change, and Connect disable.
func (s *Scheduler) CancelDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, id := range s.jobs {
		if key.deviceID == deviceID {
			_ = s.scheduler.RemoveJob(id)
			delete(s.jobs, key)
		}
	}
}

// Pending reports whether a task with the given key is still scheduled.
//
// This is primarily intended for tests and diagnostics.
func (s *Scheduler) Pending(deviceID string, kind TaskKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[taskKey{deviceID: deviceID, kind: kind}]
	return ok
}
