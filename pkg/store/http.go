// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"

	"github.com/jllopis/kairos-console/pkg/backend"
)

// HTTPStore reads and writes dashboards through the backend's dashboard
// storage endpoint.
type HTTPStore struct {
	client *backend.Client
}

func NewHTTPStore(client *backend.Client) *HTTPStore {
	return &HTTPStore{client: client}
}

func (h *HTTPStore) List(ctx context.Context) ([]string, error) {
	return h.client.ListDashboards(ctx)
}

func (h *HTTPStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return h.client.GetDashboard(ctx, name)
}

func (h *HTTPStore) Put(ctx context.Context, name string, doc []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateDocument(name, doc); err != nil {
		return err
	}
	return h.client.PutDashboard(ctx, name, doc)
}
