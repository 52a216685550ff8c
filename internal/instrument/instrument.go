// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument exposes the Prometheus counters of the daemons.
package instrument

import (
	"errors"
	goLog "log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"

	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_handshakes_total",
			Help: "Number of handshakes by outcome",
		},
		[]string{"service", "outcome"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_requests_total",
			Help: "Number of requests by verb",
		},
		[]string{"service", "verb"},
	)
	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_responses_total",
			Help: "Number of responses by status",
		},
		[]string{"service", "status"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_protocol_errors_total",
			Help: "Number of sessions torn down by a fatal protocol error",
		},
		[]string{"service"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_transfer_bytes_total",
			Help: "Number of file bytes transferred",
		},
		[]string{"direction"},
	)
	snapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupshare_snapshots_total",
			Help: "Number of catalog snapshots by outcome",
		},
		[]string{"service", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(handshakes)
	prometheus.MustRegister(requests)
	prometheus.MustRegister(responses)
	prometheus.MustRegister(protocolErrors)
	prometheus.MustRegister(transferBytes)
	prometheus.MustRegister(snapshots)
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeFailed
}

// Handshake counts a completed or failed handshake.
func Handshake(service string, ok bool) {
	handshakes.With(prometheus.Labels{"service": service, "outcome": outcome(ok)}).Inc()
}

// Request counts an inbound request.
func Request(service, verb string) {
	requests.With(prometheus.Labels{"service": service, "verb": verb}).Inc()
}

// Response counts an outbound response status.
func Response(service, status string) {
	responses.With(prometheus.Labels{"service": service, "status": status}).Inc()
}

// ProtocolError counts a session lost to a fatal error.
func ProtocolError(service string) {
	protocolErrors.With(prometheus.Labels{"service": service}).Inc()
}

// Transfer counts file bytes moved in the given direction.
func Transfer(direction string, n int) {
	transferBytes.With(prometheus.Labels{"direction": direction}).Add(float64(n))
}

// Snapshot counts a catalog snapshot.
func Snapshot(service string, ok bool) {
	snapshots.With(prometheus.Labels{"service": service, "outcome": outcome(ok)}).Inc()
}

// MetricsServer serves /metrics until Close.
type MetricsServer struct {
	srv *http.Server
	l   net.Listener
}

// Serve starts serving the default registry on addr.
func Serve(addr string, errorLog *goLog.Logger) (*MetricsServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m := &MetricsServer{
		srv: &http.Server{
			Handler:           mux,
			ErrorLog:          errorLog,
			ReadHeaderTimeout: 10 * time.Second,
		},
		l: l,
	}
	go func() {
		if err := m.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) && errorLog != nil {
			errorLog.Printf("metrics listener failed: %v", err)
		}
	}()
	return m, nil
}

// Addr returns the listening address.
func (m *MetricsServer) Addr() net.Addr {
	return m.l.Addr()
}

// Close stops the server.
func (m *MetricsServer) Close() error {
	return m.srv.Close()
}
