// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diag

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/compose"
)

func readBundle(t *testing.T, path string) Bundle {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "reading bundle")

	var b Bundle
	require.NoError(t, json.Unmarshal(data, &b), "bundle is not valid JSON")
	return b
}

func TestCollectWritesBundle(t *testing.T) {
	dir := t.TempDir()
	executor := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) ([]compose.ContainerStatus, error) {
			return []compose.ContainerStatus{
				{Name: "devnet-anvil-1", Service: "anvil", State: "exited"},
			}, nil
		},
	}
	c := NewDefaultCollector(dir, "/home/u/.cartesi-coprocessor-repo", executor)

	path, err := c.Collect(context.Background(), Failure{
		Action: "start",
		Err:    errors.New("up exited with failure"),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "diag_"), "path = %q", path)
	assert.True(t, strings.HasSuffix(path, ".json"), "path = %q", path)

	b := readBundle(t, path)
	assert.Equal(t, "start", b.Action)
	assert.Equal(t, "up exited with failure", b.Error)
	assert.Equal(t, "/home/u/.cartesi-coprocessor-repo", b.Checkout)
	assert.NotEmpty(t, b.ID)
	require.Len(t, b.Containers, 1)
	assert.Equal(t, "anvil", b.Containers[0].Service)
}

func TestCollectRecordsStatusFailure(t *testing.T) {
	executor := &compose.MockExecutor{
		StatusFunc: func(ctx context.Context) ([]compose.ContainerStatus, error) {
			return nil, errors.New("engine unreachable")
		},
	}
	c := NewDefaultCollector(t.TempDir(), "/tmp/checkout", executor)

	path, err := c.Collect(context.Background(), Failure{Action: "stop", Err: errors.New("down failed")})
	require.NoError(t, err, "a failed status query must not fail the collection")

	b := readBundle(t, path)
	assert.Equal(t, "engine unreachable", b.StatusError)
	assert.Empty(t, b.Containers)
}

func TestCollectWithoutExecutor(t *testing.T) {
	c := NewDefaultCollector(t.TempDir(), "/tmp/checkout", nil)

	path, err := c.Collect(context.Background(), Failure{Action: "reset", Err: errors.New("rm failed")})
	require.NoError(t, err)

	b := readBundle(t, path)
	assert.Empty(t, b.StatusError)
	assert.Empty(t, b.Containers)
}

func TestCollectUniqueIDs(t *testing.T) {
	c := NewDefaultCollector(t.TempDir(), "/tmp/checkout", nil)

	p1, err := c.Collect(context.Background(), Failure{Action: "start"})
	require.NoError(t, err)
	p2, err := c.Collect(context.Background(), Failure{Action: "start"})
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2, "consecutive bundles share a path")
}
