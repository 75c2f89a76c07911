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

package sqlite

const (
	// SchemaVersion of the database. Whenever the schema changes, this value
	// must be bumped.
	SchemaVersion = 1

	// Schema is the SQL schema of the hierarchy store. Address ranges are
	// stored as big-endian byte blobs of the family's width (4 bytes for
	// IPv4, 16 for IPv6); within one family blob comparison is range
	// comparison. The per-namespace uniqueness invariants are expressed as
	// unique indexes. parent_id is the explicit containment pointer; it is
	// the source of truth for the tree, no denormalized set fields exist.
	Schema = `CREATE TABLE namespaces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		UNIQUE (name)
	);

	CREATE TABLE prefixes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace_id INTEGER NOT NULL REFERENCES namespaces (id),
		family INTEGER NOT NULL,
		first BLOB NOT NULL,
		last BLOB NOT NULL,
		length INTEGER NOT NULL,
		type INTEGER NOT NULL,
		parent_id INTEGER REFERENCES prefixes (id),
		attrs TEXT,
		UNIQUE (namespace_id, family, first, length)
	);
	CREATE INDEX idx_prefixes_range ON prefixes (namespace_id, family, first, last);
	CREATE INDEX idx_prefixes_parent ON prefixes (parent_id);

	CREATE TABLE addresses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace_id INTEGER NOT NULL REFERENCES namespaces (id),
		family INTEGER NOT NULL,
		addr BLOB NOT NULL,
		mask_length INTEGER NOT NULL,
		parent_id INTEGER NOT NULL REFERENCES prefixes (id),
		attrs TEXT,
		UNIQUE (namespace_id, family, addr)
	);
	CREATE INDEX idx_addresses_parent ON addresses (parent_id);

	CREATE TABLE vrfs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace_id INTEGER NOT NULL REFERENCES namespaces (id),
		rd TEXT NOT NULL,
		UNIQUE (namespace_id, rd)
	);

	CREATE TABLE prefix_vrfs (
		prefix_id INTEGER NOT NULL REFERENCES prefixes (id),
		vrf_id INTEGER NOT NULL REFERENCES vrfs (id),
		PRIMARY KEY (prefix_id, vrf_id)
	);`
)
