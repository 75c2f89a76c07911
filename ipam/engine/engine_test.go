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

package engine_test

import (
	"context"
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/ipam/engine"
	"github.com/netipam/netipam/pkg/log"
	"github.com/netipam/netipam/pkg/log/testlog"
	"github.com/netipam/netipam/pkg/netval"
	"github.com/netipam/netipam/private/storage/ipam/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func setup(t *testing.T) (*engine.Engine, ipam.Namespace) {
	t.Helper()
	db, err := sqlite.New("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	e := engine.New(engine.Config{DB: db})
	ns, err := e.DefaultNamespace(context.Background())
	require.NoError(t, err)
	require.Equal(t, ipam.DefaultNamespace, ns.Name)
	return e, ns
}

func insert(t *testing.T, e *engine.Engine, ns ipam.NamespaceID, raw string,
	typ ipam.PrefixType) engine.PrefixInsertion {

	t.Helper()
	res, err := e.InsertPrefix(context.Background(), ns,
		netval.MustParsePrefix(raw), typ, nil)
	require.NoError(t, err)
	return res
}

func utilization(t *testing.T, e *engine.Engine, id ipam.PrefixID) (uint64, uint64) {
	t.Helper()
	u, err := e.Utilization(context.Background(), id)
	require.NoError(t, err)
	used, ok := u.Used.Uint64()
	require.True(t, ok)
	total, ok := u.Total.Uint64()
	require.True(t, ok)
	return used, total
}

func TestInsertPrefixHierarchy(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	p8 := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	assert.True(t, p8.Prefix.Root())
	assert.Empty(t, p8.Reparented)

	p16 := insert(t, e, ns.ID, "10.0.0.0/16", ipam.Network)
	assert.Equal(t, p8.Prefix.ID, p16.Prefix.Parent)

	p24 := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	assert.Equal(t, p16.Prefix.ID, p24.Prefix.Parent)

	children, err := e.Children(ctx, p16.Prefix.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, p24.Prefix.ID, children[0].ID)

	ancestors, err := e.Ancestors(ctx, p24.Prefix.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, p16.Prefix.ID, ancestors[0].ID)
	assert.Equal(t, p8.Prefix.ID, ancestors[1].ID)
}

func TestInsertPrefixSplice(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	p8 := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	p24a := insert(t, e, ns.ID, "10.1.0.0/24", ipam.Network)
	p24b := insert(t, e, ns.ID, "10.1.1.0/24", ipam.Network)
	other := insert(t, e, ns.ID, "10.2.0.0/24", ipam.Network)

	// The new /16 slides between the /8 and the two /24s it contains.
	p16 := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Container)
	assert.Equal(t, p8.Prefix.ID, p16.Prefix.Parent)
	assert.ElementsMatch(t,
		[]ipam.PrefixID{p24a.Prefix.ID, p24b.Prefix.ID}, p16.Reparented)

	got, err := e.Prefix(ctx, other.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, p8.Prefix.ID, got.Parent)

	descendants, err := e.Descendants(ctx, p8.Prefix.ID)
	require.NoError(t, err)
	assert.Len(t, descendants, 4)
}

func TestInsertPrefixDuplicate(t *testing.T) {
	e, ns := setup(t)
	insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	_, err := e.InsertPrefix(context.Background(), ns.ID,
		netval.MustParsePrefix("10.0.0.0/8"), ipam.Network, nil)
	assert.ErrorIs(t, err, ipam.ErrDuplicatePrefix)
}

func TestInsertPrefixMovesAddresses(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Network)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.1.2.7"), 16, nil)
	require.NoError(t, err)
	require.Equal(t, net.Prefix.ID, a.Parent)

	// A narrower network takes over the contained address.
	sub := insert(t, e, ns.ID, "10.1.2.0/24", ipam.Network)
	assert.Equal(t, []ipam.AddressID{a.ID}, sub.MovedAddresses)
	got, err := e.Address(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Prefix.ID, got.Parent)
}

func TestNetworkUtilization(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "192.168.1.0/24", ipam.Network)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("192.168.1.1"), 24, nil)
	require.NoError(t, err)
	assert.Equal(t, net.Prefix.ID, a.Parent)

	used, total := utilization(t, e, net.Prefix.ID)
	assert.EqualValues(t, 1, used)
	assert.EqualValues(t, 254, total)
}

func TestPoolUtilization(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "192.168.2.0/24", ipam.Network)
	pool := insert(t, e, ns.ID, "192.168.2.0/30", ipam.Pool)
	require.Equal(t, net.Prefix.ID, pool.Prefix.Parent)

	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("192.168.2.1"), 24, nil)
	require.NoError(t, err)
	assert.Equal(t, pool.Prefix.ID, a.Parent)

	used, total := utilization(t, e, pool.Prefix.ID)
	assert.EqualValues(t, 1, used)
	assert.EqualValues(t, 4, total)

	// The pool covers the network address, so the first/last exclusion does
	// not apply and the pool's full size counts as occupied.
	used, total = utilization(t, e, net.Prefix.ID)
	assert.EqualValues(t, 4, used)
	assert.EqualValues(t, 256, total)
}

func TestContainerUtilizationAdditivity(t *testing.T) {
	e, ns := setup(t)

	c := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	n1 := insert(t, e, ns.ID, "10.1.0.0/24", ipam.Network)
	n2 := insert(t, e, ns.ID, "10.2.0.0/25", ipam.Network)
	insert(t, e, ns.ID, "10.3.0.0/16", ipam.Container)

	var want uint64
	for _, id := range []ipam.PrefixID{n1.Prefix.ID, n2.Prefix.ID} {
		_, total := utilization(t, e, id)
		want += total
	}
	want += 1 << 16

	used, total := utilization(t, e, c.Prefix.ID)
	assert.EqualValues(t, want, used)
	assert.EqualValues(t, uint64(1)<<24, total)
}

func TestIPv6Utilization(t *testing.T) {
	e, ns := setup(t)

	net := insert(t, e, ns.ID, "2001:db8::/64", ipam.Network)
	_, err := e.InsertAddress(context.Background(), ns.ID,
		netip.MustParseAddr("2001:db8::1"), 64, nil)
	require.NoError(t, err)

	u, err := e.Utilization(context.Background(), net.Prefix.ID)
	require.NoError(t, err)
	// No first/last exclusion for IPv6.
	assert.Equal(t, netval.Pow2(64), u.Total)
	assert.Equal(t, netval.U128From(1), u.Used)
}

func TestAddressNoEligibleParent(t *testing.T) {
	e, ns := setup(t)
	_, err := e.InsertAddress(context.Background(), ns.ID,
		netip.MustParseAddr("172.16.0.1"), 24, nil)
	assert.ErrorIs(t, err, ipam.ErrNoEligibleParent)
}

func TestAddressPoolChainRule(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	// A pool directly under a container is not an eligible address parent.
	insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	insert(t, e, ns.ID, "10.1.0.0/30", ipam.Pool)
	_, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.1.0.1"), 30, nil)
	assert.ErrorIs(t, err, ipam.ErrIneligibleParentChain)
}

func TestInsertAddressAutocreate(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	a, err := e.InsertAddressAutocreate(ctx, ns.ID,
		netip.MustParseAddr("172.16.0.1"), 24, nil)
	require.NoError(t, err)

	parent, err := e.Prefix(ctx, a.Parent)
	require.NoError(t, err)
	assert.Equal(t, netval.MustParsePrefix("172.16.0.1/32"), parent.Value)
	assert.Equal(t, ipam.Network, parent.Type)

	// With a covering prefix present, no host network is created.
	net := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	b, err := e.InsertAddressAutocreate(ctx, ns.ID,
		netip.MustParseAddr("10.0.0.1"), 24, nil)
	require.NoError(t, err)
	assert.Equal(t, net.Prefix.ID, b.Parent)
}

func TestDuplicateAddress(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	_, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 24, nil)
	require.NoError(t, err)
	_, err = e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 24, nil)
	assert.ErrorIs(t, err, ipam.ErrDuplicateAddress)
}

func TestDeletePrefixPromotesChildren(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	p8 := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	p16 := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Container)
	p24 := insert(t, e, ns.ID, "10.1.1.0/24", ipam.Network)
	require.Equal(t, p16.Prefix.ID, p24.Prefix.Parent)

	require.NoError(t, e.DeletePrefix(ctx, p16.Prefix.ID))
	got, err := e.Prefix(ctx, p24.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, p8.Prefix.ID, got.Parent)

	_, err = e.Prefix(ctx, p16.Prefix.ID)
	assert.ErrorIs(t, err, ipam.ErrNotFound)
}

func TestDeletePrefixWouldOrphan(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 24, nil)
	require.NoError(t, err)

	err = e.DeletePrefix(ctx, net.Prefix.ID)
	assert.ErrorIs(t, err, ipam.ErrWouldOrphanAddress)

	// Nothing changed.
	got, err := e.Address(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, net.Prefix.ID, got.Parent)
	_, err = e.Prefix(ctx, net.Prefix.ID)
	require.NoError(t, err)
}

func TestDeletePrefixReparentsAddresses(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	outer := insert(t, e, ns.ID, "10.0.0.0/16", ipam.Network)
	inner := insert(t, e, ns.ID, "10.0.1.0/24", ipam.Network)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.1.7"), 24, nil)
	require.NoError(t, err)
	require.Equal(t, inner.Prefix.ID, a.Parent)

	require.NoError(t, e.DeletePrefix(ctx, inner.Prefix.ID))
	got, err := e.Address(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, outer.Prefix.ID, got.Parent)
}

func TestInsertPrefixKeepsPoolChains(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "10.0.0.0/16", ipam.Network)
	pool := insert(t, e, ns.ID, "10.0.0.0/28", ipam.Pool)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 28, nil)
	require.NoError(t, err)
	require.Equal(t, pool.Prefix.ID, a.Parent)

	// Splicing a container between the network and the populated pool would
	// leave the address on a chain InsertAddress refuses to create.
	_, err = e.InsertPrefix(ctx, ns.ID,
		netval.MustParsePrefix("10.0.0.0/24"), ipam.Container, nil)
	assert.ErrorIs(t, err, ipam.ErrIneligibleParentChain)

	got, err := e.Prefix(ctx, pool.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, net.Prefix.ID, got.Parent)

	// An empty pool splices freely; the odd parenting only warns.
	require.NoError(t, e.DeleteAddress(ctx, a.ID))
	res := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Container)
	assert.Equal(t, []ipam.PrefixID{pool.Prefix.ID}, res.Reparented)
	assert.NotEmpty(t, res.Warnings)
}

func TestDeletePrefixKeepsPoolChains(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	net := insert(t, e, ns.ID, "10.0.0.0/16", ipam.Network)
	pool := insert(t, e, ns.ID, "10.0.0.0/28", ipam.Pool)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 28, nil)
	require.NoError(t, err)

	// Promoting the populated pool under the container is refused and the
	// deletion rolls back as a whole.
	err = e.DeletePrefix(ctx, net.Prefix.ID)
	assert.ErrorIs(t, err, ipam.ErrIneligibleParentChain)

	got, err := e.Prefix(ctx, pool.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, net.Prefix.ID, got.Parent)
	gotA, err := e.Address(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.Prefix.ID, gotA.Parent)
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	p8 := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	p24a := insert(t, e, ns.ID, "10.1.0.0/24", ipam.Network)
	p24b := insert(t, e, ns.ID, "10.1.1.0/24", ipam.Network)

	p16 := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Container)
	require.NoError(t, e.DeletePrefix(ctx, p16.Prefix.ID))

	for _, id := range []ipam.PrefixID{p24a.Prefix.ID, p24b.Prefix.ID} {
		got, err := e.Prefix(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, p8.Prefix.ID, got.Parent)
	}
}

func TestTypeParentingWarnings(t *testing.T) {
	e, ns := setup(t)

	insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	p16 := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Network)
	assert.Empty(t, p16.Warnings)

	// A network under a network is legal but unusual.
	p24 := insert(t, e, ns.ID, "10.1.1.0/24", ipam.Network)
	require.Len(t, p24.Warnings, 1)
	assert.Equal(t, p24.Prefix.Value, p24.Warnings[0].Child)
	assert.Equal(t, p16.Prefix.Value, p24.Warnings[0].Parent)
}

func TestNamespaceLifecycle(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	// DefaultNamespace is idempotent.
	again, err := e.DefaultNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, ns, again)

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)
	_, err = e.CreateNamespace(ctx, "lab")
	assert.ErrorIs(t, err, ipam.ErrDuplicateNamespace)

	insert(t, e, lab.ID, "10.0.0.0/8", ipam.Container)
	err = e.DeleteNamespace(ctx, lab.ID)
	assert.ErrorIs(t, err, ipam.ErrNamespaceNotEmpty)

	empty, err := e.CreateNamespace(ctx, "empty")
	require.NoError(t, err)
	require.NoError(t, e.DeleteNamespace(ctx, empty.ID))
}

func TestNamespaceIsolation(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)

	// The same value exists independently in both namespaces.
	a := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	b := insert(t, e, lab.ID, "10.0.0.0/8", ipam.Container)
	assert.NotEqual(t, a.Prefix.ID, b.Prefix.ID)

	sub := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Network)
	assert.Equal(t, a.Prefix.ID, sub.Prefix.Parent)
	roots, err := e.RootPrefixes(ctx, lab.ID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	children, err := e.Children(ctx, b.Prefix.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestVRFAssignment(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	p := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	q := insert(t, e, ns.ID, "192.168.0.0/16", ipam.Network)

	red, err := e.CreateVRF(ctx, ns.ID, "65000:1")
	require.NoError(t, err)
	blue, err := e.CreateVRF(ctx, ns.ID, "65000:2")
	require.NoError(t, err)

	require.NoError(t, e.AssignVRF(ctx, p.Prefix.ID, red.ID))
	require.NoError(t, e.AssignVRF(ctx, p.Prefix.ID, blue.ID))
	require.NoError(t, e.AssignVRF(ctx, q.Prefix.ID, red.ID))

	vrfs, err := e.VRFs(ctx, p.Prefix.ID)
	require.NoError(t, err)
	assert.Len(t, vrfs, 2)

	require.NoError(t, e.UnassignVRF(ctx, p.Prefix.ID, blue.ID))
	vrfs, err = e.VRFs(ctx, p.Prefix.ID)
	require.NoError(t, err)
	assert.Len(t, vrfs, 1)
}

func TestVRFCrossNamespace(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)
	p := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	vrf, err := e.CreateVRF(ctx, lab.ID, "65000:1")
	require.NoError(t, err)

	err = e.AssignVRF(ctx, p.Prefix.ID, vrf.ID)
	assert.ErrorIs(t, err, ipam.ErrCrossNamespace)
}

func TestMovePrefix(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)

	p8 := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	p16 := insert(t, e, ns.ID, "10.1.0.0/16", ipam.Container)
	p24 := insert(t, e, ns.ID, "10.1.1.0/24", ipam.Network)
	labRoot := insert(t, e, lab.ID, "10.0.0.0/12", ipam.Container)

	require.NoError(t, e.MovePrefix(ctx, p16.Prefix.ID, lab.ID))

	// In the source namespace the children were promoted.
	got, err := e.Prefix(ctx, p24.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, ns.ID, got.Namespace)
	assert.Equal(t, p8.Prefix.ID, got.Parent)

	// In the target the prefix attached under its narrowest container.
	moved, err := e.Prefix(ctx, p16.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, lab.ID, moved.Namespace)
	assert.Equal(t, labRoot.Prefix.ID, moved.Parent)
}

func TestMovePrefixKeepsPoolChains(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)

	labNet := insert(t, e, lab.ID, "10.0.0.0/16", ipam.Network)
	pool := insert(t, e, lab.ID, "10.0.0.0/28", ipam.Pool)
	_, err = e.InsertAddress(ctx, lab.ID, netip.MustParseAddr("10.0.0.1"), 28, nil)
	require.NoError(t, err)

	// Attaching in the target would put the populated pool under a container.
	c := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Container)
	err = e.MovePrefix(ctx, c.Prefix.ID, lab.ID)
	assert.ErrorIs(t, err, ipam.ErrIneligibleParentChain)

	got, err := e.Prefix(ctx, pool.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, labNet.Prefix.ID, got.Parent)
	moved, err := e.Prefix(ctx, c.Prefix.ID)
	require.NoError(t, err)
	assert.Equal(t, ns.ID, moved.Namespace)
}

func TestMovePrefixWithVRFRejected(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)
	p := insert(t, e, ns.ID, "10.0.0.0/8", ipam.Container)
	vrf, err := e.CreateVRF(ctx, ns.ID, "65000:1")
	require.NoError(t, err)
	require.NoError(t, e.AssignVRF(ctx, p.Prefix.ID, vrf.ID))

	err = e.MovePrefix(ctx, p.Prefix.ID, lab.ID)
	assert.ErrorIs(t, err, ipam.ErrCrossNamespace)
}

func TestMoveAddress(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	lab, err := e.CreateNamespace(ctx, "lab")
	require.NoError(t, err)

	insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	labNet := insert(t, e, lab.ID, "10.0.0.0/16", ipam.Network)
	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.7"), 24, nil)
	require.NoError(t, err)

	require.NoError(t, e.MoveAddress(ctx, a.ID, lab.ID))
	got, err := e.Address(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, lab.ID, got.Namespace)
	assert.Equal(t, labNet.Prefix.ID, got.Parent)

	// Without a covering prefix in the target the move fails.
	b, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.8"), 24, nil)
	require.NoError(t, err)
	empty, err := e.CreateNamespace(ctx, "empty")
	require.NoError(t, err)
	err = e.MoveAddress(ctx, b.ID, empty.ID)
	assert.ErrorIs(t, err, ipam.ErrNoEligibleParent)
}

func TestUtilizationInvalidation(t *testing.T) {
	e, ns := setup(t)
	ctx := context.Background()

	net := insert(t, e, ns.ID, "10.0.0.0/24", ipam.Network)
	used, _ := utilization(t, e, net.Prefix.ID)
	assert.EqualValues(t, 0, used)

	a, err := e.InsertAddress(ctx, ns.ID, netip.MustParseAddr("10.0.0.1"), 24, nil)
	require.NoError(t, err)
	used, _ = utilization(t, e, net.Prefix.ID)
	assert.EqualValues(t, 1, used)

	require.NoError(t, e.DeleteAddress(ctx, a.ID))
	used, _ = utilization(t, e, net.Prefix.ID)
	assert.EqualValues(t, 0, used)
}

func TestConcurrentNamespaces(t *testing.T) {
	e, _ := setup(t)
	ctx := log.CtxWith(context.Background(), testlog.NewLogger(t))

	// Distinct namespaces can be mutated concurrently without coordination.
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			ns, err := e.CreateNamespace(ctx, fmt.Sprintf("tenant-%d", i))
			if err != nil {
				return err
			}
			if _, err := e.InsertPrefix(ctx, ns.ID,
				netval.MustParsePrefix("10.0.0.0/8"), ipam.Container, nil); err != nil {
				return err
			}
			for j := 0; j < 8; j++ {
				if _, err := e.InsertPrefix(ctx, ns.ID,
					netval.MustParsePrefix(fmt.Sprintf("10.%d.0.0/16", j)),
					ipam.Network, nil); err != nil {
					return err
				}
			}
			if _, err := e.InsertAddress(ctx, ns.ID,
				netip.MustParseAddr("10.0.0.1"), 16, nil); err != nil {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
