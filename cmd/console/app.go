// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jllopis/kairos-console/pkg/backend"
	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/dashboard"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/events"
	"github.com/jllopis/kairos-console/pkg/filter"
	"github.com/jllopis/kairos-console/pkg/format"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/schema"
	"github.com/jllopis/kairos-console/pkg/store"
	"github.com/jllopis/kairos-console/pkg/telemetry"
	"github.com/jllopis/kairos-console/pkg/widget"
)

// queryBackend answers widget queries and schema lookups.
type queryBackend interface {
	dashboard.Backend
	schema.Source
}

// app holds the collaborators shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics
	client  *backend.Client
	backend queryBackend
	store   store.Store
	schemas *schema.Cache
	formats *format.Registry
	emitter events.Emitter
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	a := &app{cfg: cfg, logger: logger, formats: format.NewRegistry()}

	shutdown, err := telemetry.InitWithConfig("kairos-console", version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		OTLPHeaders:        cfg.Telemetry.OTLPHeaders,
		MetricInterval:     cfg.Telemetry.MetricInterval(),
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry.shutdown.failed", slog.String("error", err.Error()))
		}
	})

	metrics, err := telemetry.NewQueryMetrics()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics = metrics

	client := backend.NewFromConfig(cfg.Backend, metrics, telemetry.Component(logger, "backend"))
	a.client = client
	a.backend = client
	a.schemas = schema.NewCache(client, cfg.Dashboard.SchemaCacheSize, cfg.Dashboard.SchemaCacheTTL(),
		schema.WithCacheLogger(telemetry.Component(logger, "schema")))

	s, closeStore, err := store.Open(ctx, cfg.Store, client)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, func() {
		if err := closeStore(); err != nil {
			logger.Warn("store.close.failed", slog.String("error", err.Error()))
		}
	})

	emitters := events.Multi{logEmitter(telemetry.Component(logger, "events"))}
	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSEmitter(cfg.Events.NATSURL,
			events.WithSubjectPrefix(cfg.Events.SubjectPrefix),
			events.WithLogger(telemetry.Component(logger, "events.nats")))
		if err != nil {
			a.Close()
			return nil, err
		}
		emitters = append(emitters, nats)
		a.closers = append(a.closers, nats.Close)
	}
	a.emitter = emitters
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func logEmitter(logger *slog.Logger) events.Emitter {
	return events.Func(func(ctx context.Context, ev events.Event) {
		logger.DebugContext(ctx, "console.event",
			slog.String("type", string(ev.Type)),
			slog.String("dashboard", ev.Dashboard),
			slog.String("widget", ev.Widget),
		)
	})
}

// dashboardOptions are the per-command inputs of openDashboard.
type dashboardOptions struct {
	Interval    string
	Filters     []string
	AutoRefresh time.Duration
}

// openDashboard loads the dashboard called name and builds its controller.
// The cascade policy comes from the descriptor, then the config, then the
// filter bars generated from the schemas.
func (a *app) openDashboard(ctx context.Context, name string, opts dashboardOptions) (*dashboard.Controller, []schema.Bar, error) {
	d, err := store.Load(ctx, a.store, name)
	if err != nil {
		return nil, nil, err
	}
	state, err := a.filterState(opts)
	if err != nil {
		return nil, nil, err
	}
	seq, err := dashboard.ParseSequencing(a.cfg.Dashboard.Sequencing)
	if err != nil {
		return nil, nil, err
	}

	bars := a.filterBars(ctx, d)
	cascade := filter.CascadePolicy(a.cfg.Dashboard.Cascade)
	if len(cascade) == 0 {
		cascade = filter.CascadePolicy{}
		for _, bar := range bars {
			for k, v := range bar.Cascade() {
				cascade[k] = v
			}
		}
	}

	var bopts []query.BuilderOption
	if a.cfg.Backend.TextualFilters {
		bopts = append(bopts, query.WithTextualFilters())
	}
	ctrl, err := dashboard.New(d, a.backend,
		dashboard.WithFilterState(state),
		dashboard.WithCascade(cascade),
		dashboard.WithBuilder(query.NewBuilder(bopts...)),
		dashboard.WithFactory(widget.NewHeadlessFactory(a.formats)),
		dashboard.WithFormats(a.formats),
		dashboard.WithEmitter(a.emitter),
		dashboard.WithMetrics(a.metrics),
		dashboard.WithLogger(telemetry.Component(a.logger, "dashboard")),
		dashboard.WithSequencing(seq),
		dashboard.WithAutoRefresh(opts.AutoRefresh),
	)
	if err != nil {
		return nil, nil, err
	}
	return ctrl, bars, nil
}

// filterState builds the initial selection. Filters are set before the
// controller subscribes so they do not trigger a refresh of their own.
func (a *app) filterState(opts dashboardOptions) (*filter.State, error) {
	raw := opts.Interval
	if raw == "" {
		raw = a.cfg.Dashboard.Interval
	}
	sel, err := interval.Parse(raw)
	if err != nil {
		return nil, NewInvalidArgumentError("interval", err.Error())
	}
	state := filter.New(filter.WithInterval(sel))
	for _, kv := range opts.Filters {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, NewInvalidArgumentError("filter", fmt.Sprintf("expected key=value, got %q", kv))
		}
		state.SetFilter(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return state, nil
}

// filterBars generates the filter bars of d. Bars whose schema cannot be
// fetched are skipped.
func (a *app) filterBars(ctx context.Context, d *descriptor.Dashboard) []schema.Bar {
	bars := make([]schema.Bar, 0, len(d.FilterBars))
	for _, fb := range d.FilterBars {
		s, err := a.schemas.Get(ctx, fb.DataSource)
		if err != nil {
			a.logger.WarnContext(ctx, "dashboard.filterbar.skipped",
				slog.String("data_source", fb.DataSource),
				slog.String("error", err.Error()),
			)
			continue
		}
		bar, err := schema.BuildBar(s, fb)
		if err != nil {
			a.logger.WarnContext(ctx, "dashboard.filterbar.skipped",
				slog.String("data_source", fb.DataSource),
				slog.String("error", err.Error()),
			)
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}
