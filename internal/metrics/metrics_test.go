package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
)

func TestRecorder_CountsOutcomes(t *testing.T) {
	r := NewRecorder()

	r.CycleSettled(catalog.CycleReport{Topic: "java", Valid: 8, Dropped: 2, Duration: time.Millisecond})
	r.CycleSettled(catalog.CycleReport{Topic: "java", Kind: catalog.ErrorTransport, Err: errors.New("boom")})
	r.CycleSettled(catalog.CycleReport{Topic: "java", Kind: catalog.ErrorEmpty})
	r.CycleDiscarded(catalog.CycleReport{Topic: "java", Dropped: 5, Discarded: true})

	for outcome, want := range map[string]float64{"ready": 1, "transport": 1, "empty": 1, "discarded": 1} {
		if got := testutil.ToFloat64(r.cycles.WithLabelValues("java", outcome)); got != want {
			t.Errorf("%s = %v, want %v", outcome, got, want)
		}
	}
	if got := testutil.ToFloat64(r.droppedRecords); got != 2 {
		t.Errorf("dropped = %v, want 2 (discarded cycles are not counted)", got)
	}
}
