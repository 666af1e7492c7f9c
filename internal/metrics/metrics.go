package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer, every method is then a no-op.
type Metrics struct {
	commandsTotal    *prometheus.CounterVec
	motorStartsTotal *prometheus.CounterVec
	overrunsTotal    prometheus.Counter
	actuatorErrors   *prometheus.CounterVec
	persistTotal     *prometheus.CounterVec
	coversMoving     prometheus.Gauge
	coverPosition    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tbcover_commands_total",
			Help: "Total control commands handled by command kind.",
		}, []string{"command"}),
		motorStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tbcover_motor_starts_total",
			Help: "Total motor starts by cover and direction.",
		}, []string{"cover", "direction"}),
		overrunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tbcover_overruns_total",
			Help: "Total covers force-stopped after exceeding the maximum run time.",
		}),
		actuatorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tbcover_actuator_errors_total",
			Help: "Total failed actuator commands by command.",
		}, []string{"command"}),
		persistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tbcover_persist_total",
			Help: "Total state persistence attempts by result.",
		}, []string{"result"}),
		coversMoving: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tbcover_covers_moving",
			Help: "Number of covers currently moving.",
		}),
		coverPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tbcover_position",
			Help: "Last published cover position (0 closed, 10000 open).",
		}, []string{"cover"}),
	}

	reg.MustRegister(
		m.commandsTotal,
		m.motorStartsTotal,
		m.overrunsTotal,
		m.actuatorErrors,
		m.persistTotal,
		m.coversMoving,
		m.coverPosition,
	)

	return m
}

func (m *Metrics) Command(kind string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) MotorStart(cover, direction string) {
	if m == nil {
		return
	}
	m.motorStartsTotal.WithLabelValues(cover, direction).Inc()
}

func (m *Metrics) Overrun() {
	if m == nil {
		return
	}
	m.overrunsTotal.Inc()
}

func (m *Metrics) ActuatorError(command string) {
	if m == nil {
		return
	}
	m.actuatorErrors.WithLabelValues(command).Inc()
}

func (m *Metrics) Persist(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.persistTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Moving(n int) {
	if m == nil {
		return
	}
	m.coversMoving.Set(float64(n))
}

func (m *Metrics) Position(cover string, position int) {
	if m == nil {
		return
	}
	m.coverPosition.WithLabelValues(cover).Set(float64(position))
}
