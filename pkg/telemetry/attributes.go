// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for console spans and metrics.
const (
	AttrDashboard   = "console.dashboard"
	AttrWidgetID    = "console.widget.id"
	AttrWidgetType  = "console.widget.type"
	AttrWidgetState = "console.widget.state"
	AttrRefreshID   = "console.refresh.id"
	AttrRefreshSize = "console.refresh.widgets"

	AttrDataSource  = "console.query.data_source"
	AttrQueryType   = "console.query.type"
	AttrQueryFields = "console.query.fields"
	AttrQueryFilter = "console.query.filter"
	AttrRangeStart  = "console.query.start"
	AttrRangeEnd    = "console.query.end"
	AttrBucket      = "console.query.bucket_seconds"
	AttrSeriesCount = "console.series.count"
	AttrMergeMode   = "console.series.mode"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPURL    = "url.full"
	AttrHTTPStatus = "http.response.status_code"

	AttrErrorCode = "error.code"
)

// maxFilterLen bounds the filter expression recorded on spans.
const maxFilterLen = 200

// WidgetAttributes returns attributes for a widget span.
func WidgetAttributes(dashboard, widgetID, widgetType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrWidgetID, widgetID)}
	if dashboard != "" {
		attrs = append(attrs, attribute.String(AttrDashboard, dashboard))
	}
	if widgetType != "" {
		attrs = append(attrs, attribute.String(AttrWidgetType, widgetType))
	}
	return attrs
}

// QueryAttributes returns attributes describing a backend query.
func QueryAttributes(dataSource, queryType string, fields []string, filter, start, end string, bucketSeconds int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrDataSource, dataSource),
		attribute.String(AttrQueryType, queryType),
	}
	if len(fields) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrQueryFields, fields))
	}
	if filter != "" {
		if len(filter) > maxFilterLen {
			filter = filter[:maxFilterLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrQueryFilter, filter))
	}
	if start != "" {
		attrs = append(attrs, attribute.String(AttrRangeStart, start))
	}
	if end != "" {
		attrs = append(attrs, attribute.String(AttrRangeEnd, end))
	}
	if bucketSeconds > 0 {
		attrs = append(attrs, attribute.Int(AttrBucket, bucketSeconds))
	}
	return attrs
}

// MergeAttributes returns attributes for a series merge.
func MergeAttributes(mode string, seriesCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMergeMode, mode),
		attribute.Int(AttrSeriesCount, seriesCount),
	}
}

// HTTPAttributes returns attributes for an outgoing backend request. A zero
// status is omitted.
func HTTPAttributes(method, url string, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPURL, url),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(AttrHTTPStatus, status))
	}
	return attrs
}
