// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// extensions in lookup order.
var extensions = []string{".json", ".yaml", ".yml"}

// FileStore keeps one document per file in a directory. YAML documents are
// converted to JSON on read; Put always writes JSON.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(extensions, ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (f *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	for _, ext := range extensions {
		data, err := os.ReadFile(filepath.Join(f.dir, name+ext))
		if stderrors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ext == ".json" {
			return data, nil
		}
		return yamlToJSON(name, data)
	}
	return nil, notFound(name)
}

func (f *FileStore) Put(_ context.Context, name string, doc []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateDocument(name, doc); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.dir, name+".json")); err != nil {
		return err
	}
	// The JSON copy supersedes any YAML one.
	for _, ext := range extensions[1:] {
		_ = os.Remove(filepath.Join(f.dir, name+ext))
	}
	return nil
}

func yamlToJSON(name string, data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.CodeInvalidDescriptor, "decode yaml dashboard", err).
			WithContext("dashboard", name)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidDescriptor, "convert yaml dashboard", err).
			WithContext("dashboard", name)
	}
	return out, nil
}
