package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPipeline(reg)
	require.NoError(t, err)

	p.ObservePoll(nil)
	p.ObservePoll(errors.New("timeout"))
	p.ObserveCheck(3, 2, 200*time.Millisecond)
	p.ObserveNotification(OutcomeSent, 2)
	p.ObserveNotification(OutcomeThrottled, 1)
	p.ObserveNotification(OutcomeFailed, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.polls))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.pollErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.overhead))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.newFlights))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.notifications.WithLabelValues(OutcomeSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.notifications.WithLabelValues(OutcomeThrottled)))

	_, err = NewPipeline(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestNilPipeline(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.ObservePoll(nil)
		p.ObserveCheck(1, 1, time.Second)
		p.ObserveNotification(OutcomeSent, 1)
	})
}
