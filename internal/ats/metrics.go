package ats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesDecoded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "proto",
	Name:      "frames_decoded_total",
	Help:      "Frames successfully cut from the inbound byte stream.",
})

var frameErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "proto",
	Name:      "frame_errors_total",
	Help:      "Framing-level corruption events the decoder resynced past.",
})

var decryptErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "aritech2mqtt",
	Subsystem: "proto",
	Name:      "decrypt_errors_total",
	Help:      "Frame bodies that failed to decrypt.",
})
