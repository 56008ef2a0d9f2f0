package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordPayout(t *testing.T) {
	before := testutil.ToFloat64(PayoutsTotal.WithLabelValues("direct_commission", "approved"))
	beforeAmount := testutil.ToFloat64(PayoutAmountTotal.WithLabelValues("direct_commission", "approved"))

	RecordPayout("direct_commission", "approved", decimal.RequireFromString("12.5"))

	assert.Equal(t, before+1, testutil.ToFloat64(PayoutsTotal.WithLabelValues("direct_commission", "approved")))
	assert.InDelta(t, beforeAmount+12.5, testutil.ToFloat64(PayoutAmountTotal.WithLabelValues("direct_commission", "approved")), 1e-9)
}

func TestRecordJob(t *testing.T) {
	ok := testutil.ToFloat64(JobRunsTotal.WithLabelValues("cap_sweep", "success"))
	failed := testutil.ToFloat64(JobRunsTotal.WithLabelValues("cap_sweep", "error"))

	RecordJob("cap_sweep", nil)
	RecordJob("cap_sweep", errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(JobRunsTotal.WithLabelValues("cap_sweep", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(JobRunsTotal.WithLabelValues("cap_sweep", "error")))
}
