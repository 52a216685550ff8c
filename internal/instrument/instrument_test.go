// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package instrument

import (
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(requests.WithLabelValues("test", "GET"))
	Request("test", "GET")
	Request("test", "GET")
	require.Equal(t, before+2, testutil.ToFloat64(requests.WithLabelValues("test", "GET")))

	Handshake("test", false)
	require.GreaterOrEqual(t, testutil.ToFloat64(handshakes.WithLabelValues("test", OutcomeFailed)), 1.0)

	Transfer(DirectionIn, 4096)
	require.GreaterOrEqual(t, testutil.ToFloat64(transferBytes.WithLabelValues(DirectionIn)), 4096.0)
}

func TestServe(t *testing.T) {
	m, err := Serve("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer m.Close()

	Response("test", "OK")
	rsp, err := http.Get("http://" + m.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "groupshare_responses_total")
}
