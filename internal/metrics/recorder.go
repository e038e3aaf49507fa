package metrics

// OutcomeLabel enumerates handling outcomes for counters.
type OutcomeLabel string

const (
	OutcomeHandled OutcomeLabel = "handled"
	OutcomeIgnored OutcomeLabel = "ignored"
	OutcomeEcho    OutcomeLabel = "echo"
	OutcomeError   OutcomeLabel = "error"
)

// Recorder defines observability hooks for the bridge. Implementations may
// forward to Prometheus, OpenTelemetry, etc. The NoopRecorder allows optional
// injection.
type Recorder interface {
	IncInboundCommand(cmd string, outcome OutcomeLabel)
	IncLocalEvent(kind string, outcome OutcomeLabel)
	IncHelperStart(result string) // result: success|failure
	IncHelperStop()
	IncVolumePush()
	IncSeekCorrection()
	IncEndOfContextPause()
	SetLiveHelpers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncInboundCommand(string, OutcomeLabel) {}
func (NoopRecorder) IncLocalEvent(string, OutcomeLabel)     {}
func (NoopRecorder) IncHelperStart(string)                  {}
func (NoopRecorder) IncHelperStop()                         {}
func (NoopRecorder) IncVolumePush()                         {}
func (NoopRecorder) IncSeekCorrection()                     {}
func (NoopRecorder) IncEndOfContextPause()                  {}
func (NoopRecorder) SetLiveHelpers(int)                     {}
