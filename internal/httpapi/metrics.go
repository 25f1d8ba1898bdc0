package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoold_registrations_total",
		Help: "Accepted registrations by role.",
	}, []string{"role"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoold_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"status"})

	otpRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schoold_otp_requests_total",
		Help: "Accepted password-reset OTP requests.",
	})

	streamClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schoold_notification_stream_clients",
		Help: "Currently connected notification stream clients.",
	})
)
