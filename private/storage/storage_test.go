// Copyright 2025 The Netipam Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netipam/netipam/pkg/private/xtest"
	"github.com/netipam/netipam/private/storage"
)

func TestLoadFile(t *testing.T) {
	dir := xtest.TempDir(t)
	file := filepath.Join(dir, "ipam.toml")
	raw := `
[log]
level = "debug"
format = "json"

[ipam_db]
connection = "/tmp/state/ipam.db"
max_open_conns = 1
`
	require.NoError(t, os.WriteFile(file, []byte(raw), 0644))

	cfg, err := storage.LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/state/ipam.db", cfg.DB.Connection)
	assert.Equal(t, 1, cfg.DB.MaxOpenConns)
}

func TestLoadFileDefaults(t *testing.T) {
	dir := xtest.TempDir(t)
	file := filepath.Join(dir, "ipam.toml")
	require.NoError(t, os.WriteFile(file, []byte(""), 0644))

	cfg, err := storage.LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultConnection, cfg.DB.Connection)
}

func TestValidate(t *testing.T) {
	cfg := storage.Config{}
	cfg.InitDefaults()
	require.NoError(t, cfg.Validate())

	cfg.DB.MaxOpenConns = 4
	assert.Error(t, cfg.Validate())

	cfg.DB.MaxOpenConns = 0
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestNewIPAMStorage(t *testing.T) {
	cfg := storage.DBConfig{
		Connection: filepath.Join(xtest.TempDir(t), "ipam.db"),
	}
	db, err := storage.NewIPAMStorage(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	ns, err := db.InsertNamespace(ctx, "Global")
	require.NoError(t, err)
	got, err := db.NamespaceByName(ctx, "Global")
	require.NoError(t, err)
	assert.Equal(t, ns, got)
}
