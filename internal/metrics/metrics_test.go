package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Command("set_cover")
	m.Command("set_cover")
	m.MotorStart("kitchen", "opening")
	m.Overrun()
	m.Persist(true)
	m.Persist(false)
	m.Moving(2)
	m.Position("kitchen", 4200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("set_cover")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.motorStartsTotal.WithLabelValues("kitchen", "opening")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overrunsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.coversMoving))
	assert.Equal(t, 4200.0, testutil.ToFloat64(m.coverPosition.WithLabelValues("kitchen")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Command("set_cover")
		m.Overrun()
		m.Moving(1)
		m.Position("kitchen", 1)
	})
}
