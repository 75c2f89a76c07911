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

package netval_test

import (
	"net/netip"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netipam/netipam/pkg/netval"
)

func TestParsePrefixCanonicalizes(t *testing.T) {
	v, err := netval.ParsePrefix("10.1.2.3/8")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", v.String())
	assert.Equal(t, netval.IPv4, v.Family())
	assert.Equal(t, 8, v.Bits())

	_, err = netval.ParsePrefix("not-a-prefix")
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	testCases := map[string]struct {
		a, b     string
		contains bool
		strict   bool
	}{
		"parent contains child":      {a: "10.0.0.0/8", b: "10.1.0.0/16", contains: true, strict: true},
		"child not contains parent":  {a: "10.1.0.0/16", b: "10.0.0.0/8"},
		"siblings":                   {a: "10.1.0.0/16", b: "10.2.0.0/16"},
		"self":                       {a: "10.0.0.0/8", b: "10.0.0.0/8", contains: true},
		"any contains everything":    {a: "0.0.0.0/0", b: "203.0.113.0/24", contains: true, strict: true},
		"host route contains itself": {a: "192.0.2.1/32", b: "192.0.2.1/32", contains: true},
		"cross family":               {a: "10.0.0.0/8", b: "::/0"},
		"v6 parent":                  {a: "2001:db8::/32", b: "2001:db8:1::/48", contains: true, strict: true},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			a, b := netval.MustParsePrefix(tc.a), netval.MustParsePrefix(tc.b)
			assert.Equal(t, tc.contains, a.Contains(b))
			assert.Equal(t, tc.strict, a.ContainsStrict(b))
		})
	}
}

func TestOverlapsDistinctFromContains(t *testing.T) {
	a := netval.MustParsePrefix("10.0.0.0/8")
	b := netval.MustParsePrefix("10.1.0.0/16")
	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
	assert.True(t, a.Contains(b))
	assert.False(t, b.Contains(a))

	c := netval.MustParsePrefix("11.0.0.0/8")
	assert.False(t, a.Overlaps(c))
}

func TestCompareOrdering(t *testing.T) {
	vals := []netval.Value{
		netval.MustParsePrefix("2001:db8::/32"),
		netval.MustParsePrefix("10.0.0.0/16"),
		netval.MustParsePrefix("10.0.0.0/8"),
		netval.MustParsePrefix("9.0.0.0/8"),
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].Compare(vals[j]) < 0 })
	got := make([]string, 0, len(vals))
	for _, v := range vals {
		got = append(got, v.String())
	}
	// Family first, then base address, then broader before narrower.
	assert.Equal(t, []string{
		"9.0.0.0/8", "10.0.0.0/8", "10.0.0.0/16", "2001:db8::/32",
	}, got)
}

func TestCheckFamily(t *testing.T) {
	v4 := netval.MustParsePrefix("10.0.0.0/8")
	v6 := netval.MustParsePrefix("2001:db8::/32")
	assert.NoError(t, v4.CheckFamily(v4))
	assert.ErrorIs(t, v4.CheckFamily(v6), netval.ErrCrossFamily)
}

func TestSize(t *testing.T) {
	sz := func(s string) netval.U128 { return netval.MustParsePrefix(s).Size() }
	assert.Equal(t, netval.U128From(256), sz("192.0.2.0/24"))
	assert.Equal(t, netval.U128From(1), sz("192.0.2.1/32"))
	assert.Equal(t, netval.U128From(1<<32), sz("0.0.0.0/0"))
	assert.Equal(t, netval.U128From(1<<16), sz("2001:db8::/112"))
	assert.Equal(t, netval.U128{Hi: 1}, sz("2001:db8::/64"))
}

func TestFirstLast(t *testing.T) {
	v := netval.MustParsePrefix("192.0.2.0/24")
	assert.Equal(t, netip.MustParseAddr("192.0.2.0"), v.First())
	assert.Equal(t, netip.MustParseAddr("192.0.2.255"), v.Last())

	host := netval.MustParsePrefix("192.0.2.7/32")
	assert.True(t, host.IsHost())
	assert.Equal(t, host.First(), host.Last())
}

func TestTextRoundTrip(t *testing.T) {
	v := netval.MustParsePrefix("2001:db8::/48")
	b, err := v.MarshalText()
	require.NoError(t, err)
	var got netval.Value
	require.NoError(t, got.UnmarshalText(b))
	assert.Equal(t, v, got)
}

func TestU128String(t *testing.T) {
	assert.Equal(t, "0", netval.U128{}.String())
	assert.Equal(t, "256", netval.U128From(256).String())
	// 2^64 = 18446744073709551616
	assert.Equal(t, "18446744073709551616", netval.U128{Hi: 1}.String())
	// 2^64 + 5
	assert.Equal(t, "18446744073709551621", netval.U128{Hi: 1, Lo: 5}.String())
}

func TestU128Arithmetic(t *testing.T) {
	a := netval.U128{Hi: 1, Lo: 0}
	b := netval.U128From(1)
	assert.Equal(t, netval.U128{Hi: 0, Lo: ^uint64(0)}, a.Sub(b))
	assert.Equal(t, a, a.Sub(b).Add(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, 0, a.Cmp(a))

	v, ok := netval.U128From(7).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)
	_, ok = a.Uint64()
	assert.False(t, ok)
}
