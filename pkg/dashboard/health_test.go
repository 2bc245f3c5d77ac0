// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"testing"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/health"
	ctesting "github.com/jllopis/kairos-console/pkg/testing"
)

func TestHealth(t *testing.T) {
	down := kerrors.New(kerrors.CodeBackendUnavailable, "backend down", nil)
	tests := []struct {
		name    string
		backend *ctesting.ScenarioBackend
		want    health.Status
	}{
		{"all rendered", ctesting.NewScenarioBackend().WithGenerator(), health.Healthy},
		{"one failed", ctesting.NewScenarioBackend().AddError(ctesting.ForField("heapUsed"), down).WithGenerator(), health.Degraded},
		{"all failed", ctesting.NewScenarioBackend().WithDefaultError(down), health.Unhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.backend, []descriptor.Chart{
				lineChart("heap", "heapUsed"),
				lineChart("gc", "gcTime"),
			})
			ctesting.RequireNoError(t, f.ctrl.Load(context.Background()), "load")
			if got := f.ctrl.Health(context.Background()); got.Status != tt.want {
				t.Errorf("status = %s (%s), want %s", got.Status, got.Message, tt.want)
			}
		})
	}

	f := newFixture(t, ctesting.NewScenarioBackend().WithGenerator(), []descriptor.Chart{lineChart("heap", "heapUsed")})
	f.ctrl.Close()
	if got := f.ctrl.Health(context.Background()).Status; got != health.Unhealthy {
		t.Errorf("closed dashboard must be unhealthy, got %s", got)
	}
}
