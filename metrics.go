package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"alphadip-config/types"
)

type metrics struct {
	checkRuns  *prometheus.CounterVec
	checkSteps *prometheus.CounterVec
	reloads    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		checkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphadip",
			Name:      "check_runs_total",
			Help:      "Setup check runs by result",
		}, []string{"result"}),
		checkSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphadip",
			Name:      "check_steps_total",
			Help:      "Setup check steps by step and status",
		}, []string{"step", "status"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphadip",
			Name:      "config_reloads_total",
			Help:      "Runtime config reload attempts by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.checkRuns, m.checkSteps, m.reloads)
	return m
}

func (m *metrics) observeCheck(report *types.CheckReport) {
	result := "success"
	if !report.Success {
		result = "failure"
	}
	m.checkRuns.WithLabelValues(result).Inc()
	for _, c := range report.Checks {
		m.checkSteps.WithLabelValues(c.Name, c.Status).Inc()
	}
}

func (m *metrics) observeReload(err error) {
	result := "applied"
	if err != nil {
		result = "rejected"
	}
	m.reloads.WithLabelValues(result).Inc()
}
