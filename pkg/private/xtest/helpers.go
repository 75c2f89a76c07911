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

// Package xtest contains common functionality for unit tests.
package xtest

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netipam/netipam/pkg/netval"
)

// SanitizedName returns a unique name for the test that does not contain
// any characters that might be problematic in file names.
func SanitizedName(t testing.TB) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
}

// TempDir creates a temporary directory scoped to the test. It is removed
// automatically when the test completes.
func TempDir(t testing.TB) string {
	dir, err := os.MkdirTemp("", SanitizedName(t))
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// MustTempFileName returns a path for a temporary file in a fresh
// test-scoped directory. The file itself is not created.
func MustTempFileName(t testing.TB, name string) string {
	return filepath.Join(TempDir(t), name)
}

// MustParseValues parses a list of prefixes into network values, failing the
// test on bad input.
func MustParseValues(t testing.TB, prefixes ...string) []netval.Value {
	t.Helper()
	vs := make([]netval.Value, 0, len(prefixes))
	for _, p := range prefixes {
		v, err := netval.ParsePrefix(p)
		require.NoError(t, err)
		vs = append(vs, v)
	}
	return vs
}

// MustParseAddr parses addr, failing the test on bad input.
func MustParseAddr(t testing.TB, addr string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(addr)
	require.NoError(t, err)
	return a
}

// AssertError checks that err is non-nil if expectError is true, and that
// it is nil otherwise.
func AssertError(t *testing.T, err error, expectError bool) {
	t.Helper()
	if expectError {
		assert.Error(t, err)
	} else {
		assert.NoError(t, err)
	}
}
