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

// Package db provides shared sqlite plumbing: connection setup with the
// pragmas the engine relies on, schema versioning via PRAGMA user_version,
// and a common error taxonomy.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// Sqler contains the common functions of *sql.DB and *sql.Tx.
type Sqler interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LimitSetter allows setting the connection limits.
type LimitSetter interface {
	SetMaxOpenConns(maxOpenConns int)
	SetMaxIdleConns(maxIdleConns int)
}

// NewSqlite opens an sqlite database at the given path, applying the given
// schema if the database is new. If the stored schema version differs from
// schemaVersion, an error is returned.
//
// The write side is limited to a single open connection. Transactions start
// in immediate mode, so every transaction owns the database lock from its
// first statement: concurrent structural mutations serialize instead of
// failing with a busy error mid-flight.
func NewSqlite(path string, schema string, schemaVersion int) (*sql.DB, error) {
	q := make(url.Values)
	addPragmas(q)
	uri := path + "?" + q.Encode()
	if !strings.HasPrefix(path, "file:") {
		uri = "file:" + uri
	}
	db, err := sql.Open(driverName(), uri)
	if err != nil {
		return nil, NewIOError("opening database", err, "path", path)
	}
	// A single connection keeps in-memory databases coherent and makes
	// writers serialize.
	db.SetMaxOpenConns(1)
	if err := setup(db, schema, schemaVersion); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, schema string, schemaVersion int) error {
	var existingVersion int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&existingVersion); err != nil {
		return NewIOError("checking schema version", err)
	}
	switch {
	case existingVersion == 0:
		if _, err := db.Exec(schema); err != nil {
			return NewIOError("applying schema", err)
		}
		_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		if err != nil {
			return NewIOError("writing schema version", err)
		}
		return nil
	case existingVersion != schemaVersion:
		return NewIOError("schema version mismatch", nil,
			"expected", schemaVersion, "have", existingVersion)
	default:
		return nil
	}
}

