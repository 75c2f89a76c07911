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

package ipam_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/netval"
)

func TestPrefixTypeRoundTrip(t *testing.T) {
	for _, typ := range []ipam.PrefixType{ipam.Container, ipam.Network, ipam.Pool} {
		parsed, err := ipam.ParsePrefixType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
		assert.True(t, typ.Valid())
	}
	_, err := ipam.ParsePrefixType("subnet")
	assert.Error(t, err)
	assert.False(t, ipam.PrefixType(0).Valid())
}

func TestPrefixRoot(t *testing.T) {
	p := ipam.Prefix{Value: netval.MustParsePrefix("10.0.0.0/8")}
	assert.True(t, p.Root())
	p.Parent = 7
	assert.False(t, p.Root())
}

func TestAddressValue(t *testing.T) {
	a := ipam.IPAddress{
		Addr:    netip.MustParseAddr("10.1.2.3"),
		MaskLen: 24,
	}
	assert.Equal(t, netval.MustParsePrefix("10.1.2.3/32"), a.Value())
}
