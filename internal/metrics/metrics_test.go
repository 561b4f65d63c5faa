package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"carevisit/internal/model"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "date_unavailable", Result(fmt.Errorf("toggle: %w", model.ErrDateUnavailable)))
	assert.Equal(t, "network_failure", Result(fmt.Errorf("%w: %w", model.ErrNetworkFailure, errors.New("disk full"))))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestObserveOperation(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(operationTotal.WithLabelValues("toggle_keep", "past_date"))
	ObserveOperation("toggle_keep", model.ErrPastDate, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(operationTotal.WithLabelValues("toggle_keep", "past_date")))

	AddFinalizedCancelled(2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(finalizedCancelled), 2.0)
}
