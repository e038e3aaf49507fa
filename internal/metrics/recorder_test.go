package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncInboundCommand("start", OutcomeHandled)
	r.IncLocalEvent("volume", OutcomeIgnored)
	r.IncHelperStart("success")
	r.IncHelperStop()
	r.IncVolumePush()
	r.IncSeekCorrection()
	r.IncEndOfContextPause()
	r.SetLiveHelpers(3)
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncInboundCommand("start", OutcomeHandled)
	r.IncInboundCommand("start", OutcomeHandled)
	r.IncHelperStart("failure")
	r.SetLiveHelpers(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
	}
	assert.True(t, byName["connectbridge_inbound_commands_total"])
	assert.True(t, byName["connectbridge_helper_starts_total"])
	assert.True(t, byName["connectbridge_live_helpers"])
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncInboundCommand("stop", OutcomeError)
	r.IncVolumePush()
	r.SetLiveHelpers(0)
}
