package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	before := testutil.ToFloat64(admissionCounter.WithLabelValues("cooldown"))
	RecordAdmission("cooldown", 2)
	require.Equal(t, before+1, testutil.ToFloat64(admissionCounter.WithLabelValues("cooldown")))
	require.Equal(t, float64(2), testutil.ToFloat64(activeSlots))

	beforeDelivery := testutil.ToFloat64(deliveryCounter.WithLabelValues("batch", "error"))
	RecordDelivery("batch", false)
	require.Equal(t, beforeDelivery+1, testutil.ToFloat64(deliveryCounter.WithLabelValues("batch", "error")))

	RecordRequest("completed", 3*time.Second)
	RecordEnrichment("likes", true)
	RecordSlide("main")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["hsewrapped_admission_total"])
	require.True(t, names["hsewrapped_request_duration_seconds"])
	require.True(t, names["hsewrapped_slides_rendered_total"])
}
