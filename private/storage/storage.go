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

// Package storage provides factories and configuration for the persistence
// backends.
package storage

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/log"
	"github.com/netipam/netipam/pkg/private/serrors"
	"github.com/netipam/netipam/private/storage/db"
	"github.com/netipam/netipam/private/storage/ipam/sqlite"
)

// DefaultConnection is the database connection used when none is
// configured.
const DefaultConnection = "ipam.db"

// DBConfig is the configuration for the connection to the database.
type DBConfig struct {
	Connection   string `toml:"connection,omitempty"`
	MaxOpenConns int    `toml:"max_open_conns,omitempty"`
	MaxIdleConns int    `toml:"max_idle_conns,omitempty"`
}

// InitDefaults fills in sensible defaults for unset values.
func (cfg *DBConfig) InitDefaults() {
	if cfg.Connection == "" {
		cfg.Connection = DefaultConnection
	}
}

// Validate checks that the configuration is usable. The sqlite backend is
// single-writer; allowing multiple open connections would break the
// serializability of the structural mutations.
func (cfg *DBConfig) Validate() error {
	if cfg.Connection == "" {
		return serrors.New("connection must be set")
	}
	if cfg.MaxOpenConns > 1 {
		return serrors.New("sqlite supports at most one open connection",
			"max_open_conns", cfg.MaxOpenConns)
	}
	return nil
}

// SetConnLimits applies the configured connection limits.
func SetConnLimits(d db.LimitSetter, c DBConfig) {
	if c.MaxOpenConns != 0 {
		d.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns != 0 {
		d.SetMaxIdleConns(c.MaxIdleConns)
	}
}

// NewIPAMStorage opens the hierarchy store described by the configuration.
func NewIPAMStorage(c DBConfig) (ipam.DB, error) {
	be, err := sqlite.New(c.Connection)
	if err != nil {
		return nil, serrors.Wrap("opening ipam database", err,
			"connection", c.Connection)
	}
	SetConnLimits(be, c)
	return be, nil
}

// Config is the top-level service configuration.
type Config struct {
	Logging log.Config `toml:"log,omitempty"`
	DB      DBConfig   `toml:"ipam_db,omitempty"`
}

// InitDefaults fills in defaults on all sections.
func (cfg *Config) InitDefaults() {
	cfg.DB.InitDefaults()
}

// Validate validates all sections.
func (cfg *Config) Validate() error {
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}
	return cfg.DB.Validate()
}

// LoadFile loads and validates a configuration from a TOML file.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, serrors.Wrap("reading config", err, "file", path)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, serrors.Wrap("parsing config", err, "file", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, serrors.Wrap("validating config", err, "file", path)
	}
	return cfg, nil
}
