// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/dashboard"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/health"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/schema"
	"github.com/jllopis/kairos-console/pkg/widget"
)

func runServe(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", cfg.Server.Addr, "Listen address")
	iv := cmd.String("interval", "", "Initial interval preset or start/end in RFC3339")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(errors.New("usage: console serve [--addr :9897] [--interval 1h] <dashboard>"))
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		fail(global, err)
	}
	defer a.Close()

	openCtx, cancel := context.WithTimeout(ctx, global.Timeout)
	ctrl, bars, err := a.openDashboard(openCtx, cmd.Arg(0), dashboardOptions{
		Interval:    *iv,
		AutoRefresh: cfg.Dashboard.AutoRefresh(),
	})
	if err != nil {
		cancel()
		fail(global, err)
	}
	defer ctrl.Close()
	if err := ctrl.Load(openCtx); err != nil {
		a.logger.Warn("serve.load.incomplete", slog.String("dashboard", ctrl.Name()), slog.String("error", err.Error()))
	}
	cancel()

	api := newServer(ctrl, a.backend, bars, a.logger, cfg.Backend.Timeout())
	api.health.Register("backend", health.Breaker(a.client.Breaker()))
	if global.ConfigPath != "" {
		watcher, _, err := config.WatchConfig(ctx, global.ConfigPath, global.Profile, config.WithWatchLogger(a.logger))
		if err != nil {
			fail(global, NewConfigError(err, global.ConfigPath))
		}
		defer watcher.Stop()
		api.live = watcher.Live()
		watcher.OnChange(func(c *config.Config) {
			period := c.Dashboard.AutoRefresh()
			if period != ctrl.AutoRefresh() {
				ctrl.SetAutoRefresh(period)
				a.logger.Info("serve.autorefresh.changed",
					slog.String("dashboard", ctrl.Name()),
					slog.String("period", period.String()),
				)
			}
		})
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serve.listening", slog.String("addr", *addr), slog.String("dashboard", ctrl.Name()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fail(global, kerrors.New(kerrors.CodeInternal, "http server failed", err).WithContext("addr", *addr))
	}
}

// server exposes one live dashboard over HTTP.
type server struct {
	ctrl    *dashboard.Controller
	backend queryBackend
	bars    []schema.Bar
	logger  *slog.Logger
	timeout time.Duration
	health  *health.Registry
	live    *config.ReloadableConfig

	mu          sync.Mutex
	comparisons map[string]func() error
}

func newServer(ctrl *dashboard.Controller, backend queryBackend, bars []schema.Bar, logger *slog.Logger, timeout time.Duration) *server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &server{
		ctrl:        ctrl,
		backend:     backend,
		bars:        bars,
		logger:      logger.With("component", "serve"),
		timeout:     timeout,
		health:      health.NewRegistry(),
		comparisons: make(map[string]func() error),
	}
	s.health.Register("dashboard", health.Func(ctrl.Health))
	return s
}

// requestTimeout bounds one request, following config reloads when the
// server watches a config file.
func (s *server) requestTimeout() time.Duration {
	if s.live != nil {
		if d := s.live.Backend().Timeout(); d > 0 {
			return d
		}
	}
	return s.timeout
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * s.timeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/dashboard", s.handleDashboard)
	r.Post("/refresh", s.handleRefresh)

	r.Get("/widgets", s.handleWidgets)
	r.Get("/widgets/{id}", s.handleWidget)
	r.Get("/widgets/{id}/rows", s.handleRows)
	r.Post("/widgets/{id}/brush", s.handleBrush)
	r.Post("/widgets/{id}/zoom", s.handleZoom)
	r.Post("/widgets/{id}/trace", s.handleTrace)
	r.Post("/widgets/{id}/popups", s.handleOpenPopup)

	r.Get("/popups/{id}", s.handlePopup)
	r.Delete("/popups/{id}", s.handleClosePopup)
	r.Put("/popups/{id}/range", s.handlePopupRange)
	r.Post("/popups/{id}/compare", s.handleCompare)
	r.Delete("/popups/{id}/compare/{label}", s.handleRemoveComparison)

	r.Get("/filters", s.handleFilters)
	r.Put("/filters/{key}", s.handleSetFilter)
	r.Delete("/filters/{key}", s.handleClearFilter)
	r.Put("/interval", s.handleInterval)

	r.Get("/filterbars", s.handleFilterBars)
	r.Get("/filterbars/{index}/{key}/values", s.handleFilterValues)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, overall := s.health.CheckAll(r.Context())
	status := http.StatusOK
	if overall == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": overall, "components": results})
}

func (s *server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Dashboard())
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	if err := s.ctrl.Refresh(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Views())
}

func (s *server) handleWidgets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Views())
}

func (s *server) widget(r *http.Request) (*dashboard.Widget, error) {
	id := chi.URLParam(r, "id")
	wd, ok := s.ctrl.Widget(id)
	if !ok {
		return nil, kerrors.New(kerrors.CodeNotFound, "widget not found", nil).WithContext("widget", id)
	}
	return wd, nil
}

func (s *server) handleWidget(w http.ResponseWriter, r *http.Request) {
	wd, err := s.widget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd.View())
}

type rowsView struct {
	Widget  string           `json:"widget"`
	Details bool             `json:"details,omitempty"`
	Visible bool             `json:"visible"`
	Header  []string         `json:"header"`
	Rows    [][]string       `json:"rows"`
	Raw     []map[string]any `json:"raw"`
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
}

// handleRows renders a table widget or the details table of a chart.
// offset pages and sort/order reorder before rendering.
func (s *server) handleRows(w http.ResponseWriter, r *http.Request) {
	wd, err := s.widget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	details := q.Get("details") == "true"
	t := wd.Table()
	if details {
		t = wd.Details()
	}
	ht, ok := t.(*widget.HeadlessTable)
	if !ok {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "widget has no table", nil).WithContext("widget", wd.ID()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid offset", err).WithContext("offset", raw))
			return
		}
		if err := ht.Page(ctx, offset); err != nil {
			writeError(w, err)
			return
		}
	}
	if col := q.Get("sort"); col != "" {
		order := descriptor.Asc
		if q.Get("order") == string(descriptor.Desc) {
			order = descriptor.Desc
		}
		if err := ht.Sort(ctx, col, order); err != nil {
			writeError(w, err)
			return
		}
	}

	header, rows := ht.Render()
	raw, total := ht.Rows()
	paging := ht.Paging()
	writeJSON(w, http.StatusOK, rowsView{
		Widget:  wd.ID(),
		Details: details,
		Visible: ht.Visible(),
		Header:  header,
		Rows:    rows,
		Raw:     raw,
		Total:   total,
		Offset:  paging.Offset,
		Limit:   paging.Limit,
	})
}

type brushRequest struct {
	SeriesID   string `json:"seriesId"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Cleared    bool   `json:"cleared"`
}

func (s *server) handleBrush(w http.ResponseWriter, r *http.Request) {
	var req brushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	id := chi.URLParam(r, "id")
	err := s.ctrl.Brush(ctx, id, widget.BrushEvent{
		SeriesID:   req.SeriesID,
		StartIndex: req.StartIndex,
		EndIndex:   req.EndIndex,
		Cleared:    req.Cleared,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type zoomRequest struct {
	SeriesID  string `json:"seriesId"`
	DataIndex int    `json:"dataIndex"`
}

func (s *server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rng, err := s.ctrl.Zoom(r.Context(), chi.URLParam(r, "id"), widget.ClickEvent{SeriesID: req.SeriesID, DataIndex: req.DataIndex})
	if err != nil {
		writeError(w, err)
		return
	}
	s.ctrl.Wait()
	writeJSON(w, http.StatusOK, map[string]any{
		"start":   rng.StartISO8601(),
		"end":     rng.EndISO8601(),
		"widgets": s.ctrl.Views(),
	})
}

func (s *server) handleTrace(w http.ResponseWriter, r *http.Request) {
	var row map[string]any
	if err := decodeJSON(r, &row); err != nil {
		writeError(w, err)
		return
	}
	values, err := s.ctrl.TraceFilters(chi.URLParam(r, "id"), row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": values.Encode(), "filters": values})
}

type rangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type popupView struct {
	ID          string                `json:"id"`
	Parent      string                `json:"parent"`
	Start       string                `json:"start"`
	End         string                `json:"end"`
	Comparisons []string              `json:"comparisons"`
	Option      chart.Option          `json:"option"`
	Error       *kerrors.ConsoleError `json:"error,omitempty"`
}

func viewPopup(p *dashboard.Popup, err error) popupView {
	rng := p.Range()
	v := popupView{
		ID:          p.ID(),
		Parent:      p.Parent(),
		Start:       rng.StartISO8601(),
		End:         rng.EndISO8601(),
		Comparisons: p.Comparisons(),
		Option:      p.Plot().GetOption(),
	}
	if err != nil {
		v.Error = kerrors.AsConsoleError(err)
	}
	return v
}

func (s *server) handleOpenPopup(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	p, err := s.ctrl.OpenPopup(ctx, chi.URLParam(r, "id"), interval.Range{Start: req.Start, End: req.End})
	if p == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewPopup(p, err))
}

func (s *server) popup(r *http.Request) (*dashboard.Popup, error) {
	id := chi.URLParam(r, "id")
	p, ok := s.ctrl.Popup(id)
	if !ok {
		return nil, kerrors.New(kerrors.CodeNotFound, "popup not found", nil).WithContext("popup", id)
	}
	return p, nil
}

func (s *server) handlePopup(w http.ResponseWriter, r *http.Request) {
	p, err := s.popup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPopup(p, nil))
}

func (s *server) handleClosePopup(w http.ResponseWriter, r *http.Request) {
	p, err := s.popup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p.Close()
	s.forgetComparisons(p.ID())
	w.WriteHeader(http.StatusNoContent)
}

// handlePopupRange reloads a popup over a new range. The popup drops its
// comparison lines.
func (s *server) handlePopupRange(w http.ResponseWriter, r *http.Request) {
	p, err := s.popup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	err = p.SetRange(ctx, interval.Range{Start: req.Start, End: req.End})
	s.forgetComparisons(p.ID())
	if kerrors.HasCode(err, kerrors.CodeInvalidInput) || kerrors.HasCode(err, kerrors.CodeNotFound) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPopup(p, err))
}

func (s *server) forgetComparisons(popupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.comparisons {
		if popupOf(key) == popupID {
			delete(s.comparisons, key)
		}
	}
}

type compareRequest struct {
	Offset string `json:"offset"`
	Label  string `json:"label"`
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	p, err := s.popup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	offset, err := time.ParseDuration(req.Offset)
	if err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid comparison offset", err).WithContext("offset", req.Offset))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	label := req.Label
	if label == "" {
		label = dashboard.ComparisonLabel(offset)
	}
	remove, err := p.Compare(ctx, offset, label)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.comparisons[comparisonKey(p.ID(), label)] = remove
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, viewPopup(p, nil))
}

func (s *server) handleRemoveComparison(w http.ResponseWriter, r *http.Request) {
	p, err := s.popup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	label, err := url.PathUnescape(chi.URLParam(r, "label"))
	if err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid comparison label", err))
		return
	}
	key := comparisonKey(p.ID(), label)
	s.mu.Lock()
	remove, ok := s.comparisons[key]
	delete(s.comparisons, key)
	s.mu.Unlock()
	if !ok {
		writeError(w, kerrors.New(kerrors.CodeNotFound, "comparison not found", nil).WithContext("label", label))
		return
	}
	if err := remove(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPopup(p, nil))
}

func comparisonKey(popupID, label string) string { return popupID + "\x00" + label }

func popupOf(key string) string {
	id, _, _ := strings.Cut(key, "\x00")
	return id
}

func (s *server) handleFilters(w http.ResponseWriter, _ *http.Request) {
	f := s.ctrl.Filters()
	writeJSON(w, http.StatusOK, map[string]any{
		"query":      f.Encode().Encode(),
		"filters":    f.ToFilterList(),
		"expression": f.ToFilterExpression(),
		"interval":   f.Interval().String(),
	})
}

type filterRequest struct {
	Value string `json:"value"`
}

// handleSetFilter selects a value and waits for the refresh it triggers.
func (s *server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.ctrl.Filters().SetFilter(chi.URLParam(r, "key"), req.Value)
	s.ctrl.Wait()
	s.handleFilters(w, r)
}

func (s *server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Filters().ClearFilter(chi.URLParam(r, "key")) {
		writeError(w, kerrors.New(kerrors.CodeNotFound, "filter not set", nil).WithContext("key", chi.URLParam(r, "key")))
		return
	}
	s.ctrl.Wait()
	s.handleFilters(w, r)
}

type intervalRequest struct {
	// Interval is a preset id or "start/end" in RFC3339.
	Interval string `json:"interval"`
}

func (s *server) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sel, err := interval.Parse(req.Interval)
	if err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid interval", err).WithContext("interval", req.Interval))
		return
	}
	s.ctrl.Filters().SetInterval(sel)
	s.ctrl.Wait()
	s.handleFilters(w, r)
}

func (s *server) handleFilterBars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bars)
}

// handleFilterValues lists the values of one selector, narrowed by the
// selections made on the selectors before it.
func (s *server) handleFilterValues(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= len(s.bars) {
		writeError(w, kerrors.New(kerrors.CodeNotFound, "filter bar not found", nil).WithContext("index", chi.URLParam(r, "index")))
		return
	}
	bar := s.bars[idx]
	key := chi.URLParam(r, "key")
	sel, ok := bar.Selector(key)
	if !ok {
		writeError(w, kerrors.New(kerrors.CodeNotFound, "selector not found", nil).WithContext("key", key))
		return
	}
	f := s.ctrl.Filters()
	q, err := bar.ValuesQuery(key, f.Snapshot(), f.Interval().Resolve(time.Now()))
	if err != nil {
		writeError(w, kerrors.New(kerrors.CodeInvalidInput, "invalid selector", err))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	resp, err := s.backend.QueryRows(ctx, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"label":  sel.Label,
		"values": schema.Values(resp, sel.Dimension),
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return kerrors.New(kerrors.CodeInvalidInput, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	ce := kerrors.AsConsoleError(err)
	status := ce.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"error": ce})
}
