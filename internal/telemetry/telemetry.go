// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package telemetry holds the bridge's Prometheus counters. The bridge
// only increments; exposition is left to the embedding process.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsAccepted counts wrapper connections accepted on the socket.
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_connections_accepted_total",
		Help: "Wrapper connections accepted on the unix socket.",
	})

	// Requests counts dispatched requests by type.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_requests_total",
		Help: "Requests dispatched to the backing store, by request type.",
	}, []string{"type"})

	// RequestErrors counts per-request failures reported to the wrapper.
	RequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_request_errors_total",
		Help: "Requests that completed with a RequestError reply.",
	})

	// BytesWritten counts response bytes drained to wrapper sockets.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_bytes_written_total",
		Help: "Response bytes written to wrapper sockets.",
	})
)
