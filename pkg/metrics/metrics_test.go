package metrics

import (
	"strings"
	"testing"
)

func TestPrometheusOutputIncludesSessionCounters(t *testing.T) {
	Inc(FilterRejections, "echo")
	Inc(FilterRejections, "echo")
	Inc(FailsafeFires, "goodbye")

	if got := Count(FilterRejections, "echo"); got < 2 {
		t.Fatalf("Count(echo) = %d, want >= 2", got)
	}

	out := GetPrometheusMetrics()
	for _, want := range []string{
		`cab_agent_transcript_rejections_total{reason="echo"}`,
		`cab_agent_failsafe_fires_total{kind="goodbye"}`,
		"cab_agent_live_sessions",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prometheus output missing %q", want)
		}
	}
}
