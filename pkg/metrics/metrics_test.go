package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { RegisterCollectors(reg) })

	before := testutil.ToFloat64(DocumentOperations.WithLabelValues("upload", "ok"))
	DocumentOperations.WithLabelValues("upload", Outcome(nil)).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(DocumentOperations.WithLabelValues("upload", "ok")))

	require.Equal(t, "error", Outcome(errors.New("x")))
}
