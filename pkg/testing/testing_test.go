// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/schema"
)

func heapQuery(ds string) *query.Query {
	return &query.Query{
		Type:       descriptor.QueryTimeSeries,
		DataSource: ds,
		Fields:     []descriptor.Field{{Field: "heapUsed"}, {Field: "heapMax"}},
		Interval: query.Interval{
			StartISO8601:    "2024-01-01T00:00:00Z",
			EndISO8601:      "2024-01-01T01:00:00Z",
			MinBucketLength: 300,
		},
	}
}

func TestScriptedResponses(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scripted := TimeSeries(start, 5*time.Minute, Series("heapUsed", Ramp(12, 10, 10)))
	boom := stderrors.New("boom")

	b := NewScenarioBackend().
		AddError(ForDataSource("broken"), boom).
		AddScriptedResponse(ScriptedResponse{Match: ForField("heapUsed"), TimeSeries: scripted, Times: 1}).
		WithGenerator()
	ctx := context.Background()

	resp, err := b.QueryTimeSeries(ctx, heapQuery("jvm-metrics"))
	if err != nil || resp.BucketCount() != 12 || len(resp.Data) != 1 {
		t.Fatalf("expected the scripted response, got %v %+v", err, resp)
	}
	if resp.Data[0].Values[11] != 120 {
		t.Errorf("unexpected ramp %v", resp.Data[0].Values)
	}

	// Times exhausted: the generator answers with one series per field.
	resp, err = b.QueryTimeSeries(ctx, heapQuery("jvm-metrics"))
	if err != nil || len(resp.Data) != 2 || resp.BucketCount() != 12 {
		t.Fatalf("expected a generated response, got %v %+v", err, resp)
	}
	if resp.Data[1].Metric() != "heapMax" {
		t.Errorf("unexpected generated metric %q", resp.Data[1].Metric())
	}

	broken := heapQuery("broken")
	broken.FilterExpression = "application = 'billing'"
	if _, err := b.QueryTimeSeries(ctx, broken); !stderrors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	if b.CallCount() != 3 || len(b.RequestsFor("broken")) != 1 {
		t.Errorf("unexpected capture %d", b.CallCount())
	}
	NewAssertions(t).AssertQuery(b.LastRequest()).
		HasDataSource("broken").
		HasFields("heapUsed", "heapMax").
		HasBucketLength(300).
		HasExpression("billing")

	b.Reset()
	if b.CallCount() != 0 {
		t.Errorf("reset must clear captured requests")
	}
}

func TestUnscriptedQueriesFail(t *testing.T) {
	b := NewScenarioBackend()
	if _, err := b.QueryTimeSeries(context.Background(), heapQuery("jvm")); err == nil {
		t.Errorf("expected an error without rules or generator")
	}
	b.WithDefaultError(errors.New(errors.CodeBackendUnavailable, "down", nil))
	_, err := b.QueryRows(context.Background(), heapQuery("jvm"))
	NewAssertions(t).AssertErrorCode(err, errors.CodeBackendUnavailable, "default error")
}

func TestRowsAndSchema(t *testing.T) {
	b := NewScenarioBackend().
		AddRows(ForDataSource("sql"), &query.RowsResponse{Total: 1, Rows: []map[string]any{{"sql": "select 1"}}}).
		WithSchema(&schema.Schema{Name: "jvm-metrics"}).
		WithGenerator()
	ctx := context.Background()

	resp, err := b.QueryRows(ctx, &query.Query{DataSource: "sql"})
	if err != nil || resp.Total != 1 {
		t.Fatalf("unexpected rows %v %+v", err, resp)
	}
	resp, err = b.QueryRows(ctx, &query.Query{DataSource: "other"})
	if err != nil || len(resp.Rows) != 0 {
		t.Fatalf("expected an empty generated page, got %v %+v", err, resp)
	}
	a := NewAssertions(t)
	s, err := b.GetSchema(ctx, "jvm-metrics")
	a.AssertNoError(err, "GetSchema")
	a.AssertTrue(s != nil && s.Name == "jvm-metrics", "schema by data source")
	_, err = b.GetSchema(ctx, "nope")
	a.AssertErrorCode(err, errors.CodeNotFound, "unknown schema")
}

func TestGateAndCancellation(t *testing.T) {
	gate := make(chan struct{})
	b := NewScenarioBackend().AddScriptedResponse(ScriptedResponse{
		TimeSeries: &query.TimeSeriesResponse{},
		Gate:       gate,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.QueryTimeSeries(ctx, heapQuery("jvm"))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !stderrors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("gated query ignored cancellation")
	}

	close(gate)
	if _, err := b.QueryTimeSeries(context.Background(), heapQuery("jvm")); err != nil {
		t.Errorf("open gate must answer: %v", err)
	}
}

func TestGenerateBucketCount(t *testing.T) {
	q := heapQuery("jvm")
	q.Interval.MinBucketLength = 0
	q.Interval.BucketCount = 6
	resp, err := Generate(q)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.BucketCount() != 6 || resp.Interval != 600_000 {
		t.Errorf("unexpected response %+v", resp)
	}

	q.Interval.StartISO8601 = "yesterday"
	if _, err := Generate(q); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
