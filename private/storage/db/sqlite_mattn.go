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

//go:build sqlite_mattn

package db

import (
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// addPragmas modifies the URL query so it can be used to make the correct uri
// connection path for this sqlite implementation. The modifications turn on
// foreign keys, WAL journal mode and immediate transactions for every
// connection.
func addPragmas(q url.Values) {
	q.Set("_foreign_keys", "1")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "1000")
	q.Set("_txlock", "immediate")
}

func driverName() string {
	return "sqlite3"
}
