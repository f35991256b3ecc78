package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
Session metrics:

- Counters track poll lifecycle transitions and answer admission,
  labelled where the label set is small and closed (end reason,
  rejection kind, inbound event type).

- Gauges mirror the live roster size and the countdown so a
  dashboard can show an in-progress poll without joining it.

All collectors register on the Registerer passed to New, so tests
can use a private prometheus.NewRegistry() without colliding on the
default registry.

Every method is safe on a nil *Metrics, which disables collection.
*/

const namespace = "pollroom"

type Metrics struct {
	pollsCreated        prometheus.Counter
	pollsEnded          *prometheus.CounterVec
	answersAccepted     prometheus.Counter
	answersRejected     *prometheus.CounterVec
	studentsJoined      prometheus.Counter
	participantsRemoved *prometheus.CounterVec
	participants        prometheus.Gauge
	secondsRemaining    prometheus.Gauge
	inboundEvents       *prometheus.CounterVec
	rateLimited         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pollsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "polls_created_total",
			Help:      "Total number of polls created",
		}),
		pollsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "polls_ended_total",
			Help:      "Total number of polls ended, by reason (expired, cleared, superseded)",
		}, []string{"reason"}),
		answersAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "answers_accepted_total",
			Help:      "Total number of answers counted",
		}),
		answersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "answers_rejected_total",
			Help:      "Total number of rejected answer submissions, by error kind",
		}, []string{"kind"}),
		studentsJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "students_joined_total",
			Help:      "Total number of successful student registrations",
		}),
		participantsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "participants_removed_total",
			Help:      "Total number of participants removed, by reason (ejected, disconnected)",
		}, []string{"reason"}),
		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "participants",
			Help:      "Number of registered participants",
		}),
		secondsRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "seconds_remaining",
			Help:      "Seconds remaining on the active poll, 0 when none is active",
		}),
		inboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "inbound_events_total",
			Help:      "Total number of inbound events processed, by type",
		}, []string{"type"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "rate_limited_total",
			Help:      "Total number of inbound events dropped by the per-connection rate limit",
		}),
	}
}

func (m *Metrics) PollCreated() {
	if m == nil {
		return
	}
	m.pollsCreated.Inc()
}

func (m *Metrics) PollEnded(reason string) {
	if m == nil {
		return
	}
	m.pollsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) AnswerAccepted() {
	if m == nil {
		return
	}
	m.answersAccepted.Inc()
}

func (m *Metrics) AnswerRejected(kind string) {
	if m == nil {
		return
	}
	m.answersRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) StudentJoined() {
	if m == nil {
		return
	}
	m.studentsJoined.Inc()
}

func (m *Metrics) ParticipantRemoved(reason string) {
	if m == nil {
		return
	}
	m.participantsRemoved.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

func (m *Metrics) SetSecondsRemaining(n int) {
	if m == nil {
		return
	}
	m.secondsRemaining.Set(float64(n))
}

func (m *Metrics) InboundEvent(eventType string) {
	if m == nil {
		return
	}
	m.inboundEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
