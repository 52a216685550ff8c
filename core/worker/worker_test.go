// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryAndHalt(t *testing.T) {
	var w Worker
	var n atomic.Int32
	w.Every(time.Millisecond, func() { n.Add(1) })

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	w.Halt()
	w.Halt()

	after := n.Load()
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, after, n.Load())
}

func TestGoObservesHalt(t *testing.T) {
	var w Worker
	done := make(chan struct{})
	w.Go(func() {
		<-w.HaltCh()
		close(done)
	})
	w.Halt()
	<-done
}
