// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/dashboard"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/format"
	"github.com/jllopis/kairos-console/pkg/schema"
	"github.com/jllopis/kairos-console/pkg/widget"
)

type renderResult struct {
	Dashboard string           `json:"dashboard"`
	Interval  string           `json:"interval"`
	Widgets   []dashboard.View `json:"widgets"`
	Tables    []tableView      `json:"tables,omitempty"`
}

type tableView struct {
	Widget  string     `json:"widget"`
	Details bool       `json:"details,omitempty"`
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total"`
}

func runRender(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("render", flag.ContinueOnError)
	iv := cmd.String("interval", "", "Interval preset or start/end in RFC3339")
	var filters multiFlag
	cmd.Var(&filters, "filter", "Filter key=value (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(errors.New("usage: console render [--interval 1h] [--filter key=value] <dashboard>"))
	}

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fail(global, err)
	}
	defer a.Close()

	ctrl, _, err := a.openDashboard(ctx, cmd.Arg(0), dashboardOptions{Interval: *iv, Filters: filters})
	if err != nil {
		fail(global, err)
	}
	defer ctrl.Close()
	if err := ctrl.Load(ctx); err != nil {
		fail(global, err)
	}

	result := renderResult{
		Dashboard: ctrl.Name(),
		Interval:  ctrl.Filters().Interval().String(),
		Widgets:   ctrl.Views(),
		Tables:    tableViews(ctrl),
	}
	if global.JSON {
		printJSON(result)
		return
	}
	printRender(a.formats, result)
}

func tableViews(ctrl *dashboard.Controller) []tableView {
	var out []tableView
	add := func(id string, details bool, t widget.Table) {
		ht, ok := t.(*widget.HeadlessTable)
		if !ok || !ht.Visible() {
			return
		}
		header, rows := ht.Render()
		_, total := ht.Rows()
		out = append(out, tableView{Widget: id, Details: details, Header: header, Rows: rows, Total: total})
	}
	for _, w := range ctrl.Widgets() {
		if t := w.Table(); t != nil {
			add(w.ID(), false, t)
		}
		if t := w.Details(); t != nil {
			add(w.ID(), true, t)
		}
	}
	return out
}

func printRender(formats *format.Registry, result renderResult) {
	fmt.Printf("%s (%s)\n\n", result.Dashboard, result.Interval)
	writer := newTabWriter()
	writeRow(writer, "WIDGET", "TYPE", "STATE", "SERIES", "LAST", "HINT")
	for _, v := range result.Widgets {
		if v.Option == nil || len(v.Option.Series) == 0 {
			writeRow(writer, v.ID, string(v.Type), v.State.String(), "", "", v.Hint)
			continue
		}
		for _, s := range v.Option.Series {
			unit, last := "", ""
			if s.YAxisIndex < len(v.Option.YAxis) {
				unit = v.Option.YAxis[s.YAxisIndex].Format
			}
			if n := len(s.Data); n > 0 {
				last = formats.Value(unit, s.Data[n-1])
			}
			writeRow(writer, v.ID, string(v.Type), v.State.String(), s.Name, last, v.Hint)
		}
	}
	_ = writer.Flush()

	for _, t := range result.Tables {
		title := t.Widget
		if t.Details {
			title += " (details)"
		}
		fmt.Printf("\n%s: %d rows\n", title, t.Total)
		tw := newTabWriter()
		writeRow(tw, t.Header...)
		for _, row := range t.Rows {
			writeRow(tw, row...)
		}
		_ = tw.Flush()
	}
}

func runSchema(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal(errors.New("usage: console schema <dataSource>"))
	}
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fail(global, err)
	}
	defer a.Close()

	s, err := a.schemas.Get(ctx, args[0])
	if err != nil {
		fail(global, err)
	}
	if global.JSON {
		printJSON(s)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "KIND", "NAME", "LABEL", "VISIBLE")
	for _, d := range s.DimensionsSpec {
		writeRow(writer, "dimension", d.Name, d.Label(), strconv.FormatBool(d.IsVisible()))
	}
	for _, m := range s.MetricsSpec {
		writeRow(writer, "metric", m.Name, s.FormatFor(m.Name), "")
	}
	_ = writer.Flush()
	if bar, err := schema.BuildBar(s, defaultBar(args[0])); err == nil && len(bar.Selectors) > 0 {
		fmt.Println()
		bw := newTabWriter()
		writeRow(bw, "SELECTOR", "DIMENSION", "SCOPE")
		for _, sel := range bar.Selectors {
			writeRow(bw, sel.Key, sel.Dimension, sel.Scope.String())
		}
		_ = bw.Flush()
	}
}

// defaultBar selects every visible dimension of dataSource.
func defaultBar(dataSource string) descriptor.FilterBar {
	return descriptor.FilterBar{DataSource: dataSource}
}

func runDashboards(ctx context.Context, global globalFlags, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fail(global, err)
	}
	defer a.Close()

	names, err := a.store.List(ctx)
	if err != nil {
		fail(global, err)
	}
	sort.Strings(names)
	if global.JSON {
		printJSON(names)
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runFormat(global globalFlags, args []string) {
	cmd := flag.NewFlagSet("format", flag.ContinueOnError)
	zone := cmd.String("tz", "", "IANA time zone for date formats")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 2 {
		fatal(errors.New("usage: console format [--tz Europe/Madrid] <tag> <value>"))
	}
	var opts []format.Option
	if *zone != "" {
		loc, err := time.LoadLocation(*zone)
		if err != nil {
			fail(global, NewInvalidArgumentError("tz", err.Error()))
		}
		opts = append(opts, format.WithLocation(loc))
	}
	out := formatValue(format.NewRegistry(opts...), cmd.Arg(0), cmd.Arg(1))
	if global.JSON {
		printJSON(map[string]string{"tag": cmd.Arg(0), "value": cmd.Arg(1), "formatted": out})
		return
	}
	fmt.Println(out)
}

func formatValue(r *format.Registry, tag, raw string) string {
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return r.Value(tag, f)
	}
	return r.Value(tag, raw)
}
