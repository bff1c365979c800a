package panel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "panel",
	Name:      "commands_total",
	Help:      "Commands submitted to the panel, by entity kind and result.",
}, []string{"kind", "result"})

var eventsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "panel",
	Name:      "events_applied_total",
	Help:      "Decoded panel events folded into the state mirror.",
})

var pollsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "panel",
	Name:      "polls_total",
	Help:      "Full status polls applied.",
})

var reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "panel",
	Name:      "reconnects_total",
	Help:      "Session re-establishments after a connection loss.",
})

var connectionUp = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "panel",
	Name:      "connection_up",
	Help:      "1 while a session is established and authenticated.",
})
