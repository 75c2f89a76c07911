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

// Package dbtest provides a conformance test suite for ipam.DB
// implementations.
package dbtest

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/netval"
)

const timeout = 5 * time.Second

// TestableDB extends the db interface with methods that are only used
// during testing.
type TestableDB interface {
	ipam.DB
	// Prepare should reset the internal state of the database and
	// prepare it for the next test.
	Prepare(t *testing.T, ctx context.Context)
}

// Run runs the conformance suite against db.
func Run(t *testing.T, db TestableDB) {
	tests := map[string]func(t *testing.T, db ipam.DB){
		"Namespaces":      testNamespaces,
		"PrefixInsert":    testPrefixInsert,
		"Containment":     testContainment,
		"ParentUpdates":   testParentUpdates,
		"Addresses":       testAddresses,
		"VRFs":            testVRFs,
		"Transactions":    testTransactions,
		"NamespaceScopes": testNamespaceScopes,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, cancelF := context.WithTimeout(context.Background(), timeout)
			defer cancelF()
			db.Prepare(t, ctx)
			test(t, db)
		})
	}
}

func mustNS(t *testing.T, ctx context.Context, db ipam.DB, name string) ipam.Namespace {
	t.Helper()
	ns, err := db.InsertNamespace(ctx, name)
	require.NoError(t, err)
	return ns
}

func mustPrefix(t *testing.T, ctx context.Context, db ipam.DB, ns ipam.NamespaceID,
	raw string, typ ipam.PrefixType, parent ipam.PrefixID) ipam.Prefix {

	t.Helper()
	p, err := db.InsertPrefix(ctx, ipam.Prefix{
		Namespace: ns,
		Value:     netval.MustParsePrefix(raw),
		Type:      typ,
		Parent:    parent,
	})
	require.NoError(t, err)
	return p
}

func testNamespaces(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns, err := db.InsertNamespace(ctx, "Global")
	require.NoError(t, err)
	assert.NotZero(t, ns.ID)
	assert.Equal(t, "Global", ns.Name)

	byName, err := db.NamespaceByName(ctx, "Global")
	require.NoError(t, err)
	assert.Equal(t, ns, byName)
	byID, err := db.NamespaceByID(ctx, ns.ID)
	require.NoError(t, err)
	assert.Equal(t, ns, byID)

	_, err = db.InsertNamespace(ctx, "Global")
	assert.ErrorIs(t, err, ipam.ErrDuplicateNamespace)

	_, err = db.NamespaceByName(ctx, "missing")
	assert.ErrorIs(t, err, ipam.ErrNotFound)

	used, err := db.NamespaceInUse(ctx, ns.ID)
	require.NoError(t, err)
	assert.False(t, used)
	mustPrefix(t, ctx, db, ns.ID, "10.0.0.0/8", ipam.Container, 0)
	used, err = db.NamespaceInUse(ctx, ns.ID)
	require.NoError(t, err)
	assert.True(t, used)

	err = db.DeleteNamespace(ctx, ns.ID+42)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
}

func testPrefixInsert(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")
	p := mustPrefix(t, ctx, db, ns.ID, "10.0.0.0/8", ipam.Container, 0)
	assert.True(t, p.Root())

	got, err := db.PrefixByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	got, err = db.PrefixByValue(ctx, ns.ID, netval.MustParsePrefix("10.0.0.0/8"))
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = db.InsertPrefix(ctx, ipam.Prefix{
		Namespace: ns.ID,
		Value:     netval.MustParsePrefix("10.0.0.0/8"),
		Type:      ipam.Network,
	})
	assert.ErrorIs(t, err, ipam.ErrDuplicatePrefix)

	attrs := ipam.Attrs{"site": "zrh", "vlan": "120"}
	withAttrs, err := db.InsertPrefix(ctx, ipam.Prefix{
		Namespace: ns.ID,
		Value:     netval.MustParsePrefix("10.1.0.0/16"),
		Type:      ipam.Network,
		Parent:    p.ID,
		Attrs:     attrs,
	})
	require.NoError(t, err)
	got, err = db.PrefixByID(ctx, withAttrs.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(attrs, got.Attrs))
	assert.Equal(t, p.ID, got.Parent)

	// Same value in a different family slot must coexist.
	mustPrefix(t, ctx, db, ns.ID, "2001:db8::/32", ipam.Container, 0)

	err = db.DeletePrefix(ctx, withAttrs.ID)
	require.NoError(t, err)
	_, err = db.PrefixByID(ctx, withAttrs.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
	err = db.DeletePrefix(ctx, withAttrs.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
}

func testContainment(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")
	p8 := mustPrefix(t, ctx, db, ns.ID, "10.0.0.0/8", ipam.Container, 0)
	p16 := mustPrefix(t, ctx, db, ns.ID, "10.1.0.0/16", ipam.Container, p8.ID)
	p24 := mustPrefix(t, ctx, db, ns.ID, "10.1.2.0/24", ipam.Network, p16.ID)
	other := mustPrefix(t, ctx, db, ns.ID, "192.168.0.0/16", ipam.Network, 0)

	// Narrowest container first, the value itself excluded.
	containing, err := db.Containing(ctx, ns.ID, netval.MustParsePrefix("10.1.2.0/24"))
	require.NoError(t, err)
	require.Len(t, containing, 2)
	assert.Equal(t, p16.ID, containing[0].ID)
	assert.Equal(t, p8.ID, containing[1].ID)

	containing, err = db.Containing(ctx, ns.ID, netval.MustParsePrefix("10.1.2.0/25"))
	require.NoError(t, err)
	require.Len(t, containing, 3)
	assert.Equal(t, p24.ID, containing[0].ID)

	containing, err = db.Containing(ctx, ns.ID, netval.MustParsePrefix("172.16.0.0/12"))
	require.NoError(t, err)
	assert.Empty(t, containing)

	// ContainingAddr includes host-length prefixes.
	host := mustPrefix(t, ctx, db, ns.ID, "10.1.2.3/32", ipam.Network, p24.ID)
	byAddr, err := db.ContainingAddr(ctx, ns.ID, netip.MustParseAddr("10.1.2.3"))
	require.NoError(t, err)
	require.Len(t, byAddr, 4)
	assert.Equal(t, host.ID, byAddr[0].ID)
	assert.Equal(t, p24.ID, byAddr[1].ID)

	contained, err := db.ContainedBy(ctx, ns.ID, netval.MustParsePrefix("10.0.0.0/8"))
	require.NoError(t, err)
	ids := make([]ipam.PrefixID, 0, len(contained))
	for _, c := range contained {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []ipam.PrefixID{p16.ID, p24.ID, host.ID}, ids)

	children, err := db.Children(ctx, p8.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, p16.ID, children[0].ID)

	roots, err := db.RootPrefixes(ctx, ns.ID)
	require.NoError(t, err)
	rootIDs := []ipam.PrefixID{roots[0].ID, roots[1].ID}
	assert.ElementsMatch(t, []ipam.PrefixID{p8.ID, other.ID}, rootIDs)
}

func testParentUpdates(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")
	p8 := mustPrefix(t, ctx, db, ns.ID, "10.0.0.0/8", ipam.Container, 0)
	p24 := mustPrefix(t, ctx, db, ns.ID, "10.1.2.0/24", ipam.Network, p8.ID)
	p16 := mustPrefix(t, ctx, db, ns.ID, "10.1.0.0/16", ipam.Container, p8.ID)

	require.NoError(t, db.UpdatePrefixParent(ctx, p24.ID, p16.ID))
	got, err := db.PrefixByID(ctx, p24.ID)
	require.NoError(t, err)
	assert.Equal(t, p16.ID, got.Parent)

	// Promotion to root stores NULL, not 0.
	require.NoError(t, db.UpdatePrefixParent(ctx, p24.ID, 0))
	got, err = db.PrefixByID(ctx, p24.ID)
	require.NoError(t, err)
	assert.True(t, got.Root())
	roots, err := db.RootPrefixes(ctx, ns.ID)
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	err = db.UpdatePrefixParent(ctx, p24.ID+42, p16.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
}

func testAddresses(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")
	net := mustPrefix(t, ctx, db, ns.ID, "10.1.2.0/24", ipam.Network, 0)

	a, err := db.InsertAddress(ctx, ipam.IPAddress{
		Namespace: ns.ID,
		Addr:      netip.MustParseAddr("10.1.2.7"),
		MaskLen:   24,
		Parent:    net.ID,
		Attrs:     ipam.Attrs{"host": "gw"},
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	got, err := db.AddressByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	got, err = db.AddressByValue(ctx, ns.ID, netip.MustParseAddr("10.1.2.7"))
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = db.InsertAddress(ctx, ipam.IPAddress{
		Namespace: ns.ID,
		Addr:      netip.MustParseAddr("10.1.2.7"),
		MaskLen:   24,
		Parent:    net.ID,
	})
	assert.ErrorIs(t, err, ipam.ErrDuplicateAddress)

	byParent, err := db.AddressesByParent(ctx, net.ID)
	require.NoError(t, err)
	require.Len(t, byParent, 1)
	assert.Equal(t, a.ID, byParent[0].ID)

	require.NoError(t, db.DeleteAddress(ctx, a.ID))
	_, err = db.AddressByID(ctx, a.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
	err = db.DeleteAddress(ctx, a.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
}

func testVRFs(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")
	p := mustPrefix(t, ctx, db, ns.ID, "10.0.0.0/8", ipam.Container, 0)
	q := mustPrefix(t, ctx, db, ns.ID, "192.168.0.0/16", ipam.Network, 0)

	red, err := db.InsertVRF(ctx, ipam.VRF{Namespace: ns.ID, RouteDistinguisher: "65000:1"})
	require.NoError(t, err)
	blue, err := db.InsertVRF(ctx, ipam.VRF{Namespace: ns.ID, RouteDistinguisher: "65000:2"})
	require.NoError(t, err)
	_, err = db.InsertVRF(ctx, ipam.VRF{Namespace: ns.ID, RouteDistinguisher: "65000:1"})
	assert.ErrorIs(t, err, ipam.ErrDuplicateVRF)

	// A prefix can carry several VRFs and a VRF several prefixes.
	require.NoError(t, db.AttachVRF(ctx, p.ID, red.ID))
	require.NoError(t, db.AttachVRF(ctx, p.ID, blue.ID))
	require.NoError(t, db.AttachVRF(ctx, q.ID, red.ID))
	// Attaching twice is idempotent.
	require.NoError(t, db.AttachVRF(ctx, p.ID, red.ID))

	vrfs, err := db.VRFsByPrefix(ctx, p.ID)
	require.NoError(t, err)
	ids := []ipam.VRFID{vrfs[0].ID, vrfs[1].ID}
	assert.ElementsMatch(t, []ipam.VRFID{red.ID, blue.ID}, ids)

	require.NoError(t, db.DetachVRF(ctx, p.ID, blue.ID))
	vrfs, err = db.VRFsByPrefix(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, vrfs, 1)
	assert.Equal(t, red.ID, vrfs[0].ID)

	// Deleting a prefix drops its attachments.
	require.NoError(t, db.DeletePrefix(ctx, q.ID))
	vrfs, err = db.VRFsByPrefix(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, vrfs)
}

func testTransactions(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	ns := mustNS(t, ctx, db, "test")

	tx, err := db.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	_, err = tx.InsertPrefix(ctx, ipam.Prefix{
		Namespace: ns.ID,
		Value:     netval.MustParsePrefix("10.0.0.0/8"),
		Type:      ipam.Container,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = db.PrefixByValue(ctx, ns.ID, netval.MustParsePrefix("10.0.0.0/8"))
	assert.ErrorIs(t, err, ipam.ErrNotFound)

	tx, err = db.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	p, err := tx.InsertPrefix(ctx, ipam.Prefix{
		Namespace: ns.ID,
		Value:     netval.MustParsePrefix("10.0.0.0/8"),
		Type:      ipam.Container,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := db.PrefixByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func testNamespaceScopes(t *testing.T, db ipam.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	red := mustNS(t, ctx, db, "red")
	blue := mustNS(t, ctx, db, "blue")

	// The same value may exist in both namespaces.
	rp := mustPrefix(t, ctx, db, red.ID, "10.0.0.0/8", ipam.Container, 0)
	bp := mustPrefix(t, ctx, db, blue.ID, "10.0.0.0/8", ipam.Container, 0)
	assert.NotEqual(t, rp.ID, bp.ID)

	rp16 := mustPrefix(t, ctx, db, red.ID, "10.1.0.0/16", ipam.Network, rp.ID)

	containing, err := db.Containing(ctx, red.ID, netval.MustParsePrefix("10.1.0.0/16"))
	require.NoError(t, err)
	require.Len(t, containing, 1)
	assert.Equal(t, rp.ID, containing[0].ID)

	// Moving a prefix across namespaces rewrites scope and parent.
	require.NoError(t, db.UpdatePrefixNamespace(ctx, rp16.ID, blue.ID, bp.ID))
	got, err := db.PrefixByID(ctx, rp16.ID)
	require.NoError(t, err)
	assert.Equal(t, blue.ID, got.Namespace)
	assert.Equal(t, bp.ID, got.Parent)
	children, err := db.Children(ctx, rp.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}
