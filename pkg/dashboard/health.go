// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"fmt"

	"github.com/jllopis/kairos-console/pkg/health"
)

// Health reports the dashboard as degraded when some widgets failed and
// unhealthy when every widget failed or the dashboard was closed.
// Widgets waiting for a filter count as working.
func (c *Controller) Health(context.Context) health.Result {
	res := health.Result{Status: health.Healthy, LastCheck: c.now()}
	c.mu.Lock()
	closed := c.closed
	widgets := c.widgets
	c.mu.Unlock()
	if closed {
		res.Status, res.Message = health.Unhealthy, "dashboard closed"
		return res
	}

	failed := 0
	for _, w := range widgets {
		if w.State() == Failed {
			failed++
		}
	}
	switch {
	case failed == 0:
		res.Message = fmt.Sprintf("%d widgets", len(widgets))
	case failed == len(widgets):
		res.Status = health.Unhealthy
		res.Message = fmt.Sprintf("all %d widgets failed", failed)
	default:
		res.Status = health.Degraded
		res.Message = fmt.Sprintf("%d of %d widgets failed", failed, len(widgets))
	}
	return res
}
