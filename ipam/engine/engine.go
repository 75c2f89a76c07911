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

// Package engine implements the address-space hierarchy engine: prefix tree
// maintenance, address parenting, utilization statistics and VRF assignment,
// all scoped by namespaces.
//
// Every structural mutation runs inside a single immediate-mode transaction:
// the multi-step splice and re-parent algorithms read and write several rows
// and must not race with a concurrent insert targeting an overlapping
// network. All invariant violations are detected before anything is
// persisted; a failing step rolls back the whole operation.
package engine

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"zgo.at/zcache/v2"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/log"
	"github.com/netipam/netipam/pkg/netval"
	"github.com/netipam/netipam/pkg/private/serrors"
)

const defaultCacheTTL = 30 * time.Second

// Config configures the engine.
type Config struct {
	// DB is the hierarchy store. Required.
	DB ipam.DB
	// Metrics for per-operation observation. Optional.
	Metrics *Metrics
	// CacheTTL bounds the staleness of memoized utilization results. The
	// cache is invalidated eagerly on every structural mutation through this
	// engine; the TTL only matters for mutations applied behind the engine's
	// back. Defaults to 30s.
	CacheTTL time.Duration
}

// Engine is the address-space hierarchy engine. It is safe for concurrent
// use.
type Engine struct {
	db      ipam.DB
	metrics *Metrics
	util    *zcache.Cache[ipam.PrefixID, Utilization]
}

// New creates an engine on top of the given store.
func New(cfg Config) *Engine {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &Engine{
		db:      cfg.DB,
		metrics: cfg.Metrics,
		// No janitor goroutine; expired entries are dropped lazily on Get
		// and the cache is invalidated eagerly on mutations anyway.
		util:    zcache.New[ipam.PrefixID, Utilization](ttl, 0),
	}
}

// PrefixInsertion is the result of a successful prefix insert: the created
// node, the soft guidance warnings, and the descendants whose parent changed
// (for cache invalidation by callers).
type PrefixInsertion struct {
	Prefix         ipam.Prefix
	Warnings       []ipam.Warning
	Reparented     []ipam.PrefixID
	MovedAddresses []ipam.AddressID
}

// typeGuidance is the soft parenting guidance: child type -> allowed parent
// type. Violations warn but never block.
var typeGuidance = map[ipam.PrefixType]ipam.PrefixType{
	ipam.Container: ipam.Container,
	ipam.Network:   ipam.Container,
	ipam.Pool:      ipam.Network,
}

func guidanceWarning(child, parent ipam.Prefix) *ipam.Warning {
	if typeGuidance[child.Type] == parent.Type {
		return nil
	}
	return &ipam.Warning{
		Msg:    "unusual parenting for " + child.Type.String(),
		Child:  child.Value,
		Parent: parent.Value,
	}
}

func (e *Engine) inTx(ctx context.Context, action func(tx ipam.Transaction) error) error {
	tx, err := e.db.BeginTransaction(ctx, nil)
	if err != nil {
		return err
	}
	if err := action(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return serrors.Wrap("committing", err)
	}
	return nil
}

// CreateNamespace creates a namespace with the given name.
func (e *Engine) CreateNamespace(ctx context.Context, name string) (ipam.Namespace, error) {
	var ns ipam.Namespace
	err := e.observe(ctx, "create_namespace", func(ctx context.Context) error {
		var err error
		ns, err = e.db.InsertNamespace(ctx, name)
		return err
	})
	return ns, err
}

// DefaultNamespace returns the "Global" namespace, creating it on first use.
func (e *Engine) DefaultNamespace(ctx context.Context) (ipam.Namespace, error) {
	var ns ipam.Namespace
	err := e.observe(ctx, "default_namespace", func(ctx context.Context) error {
		var err error
		ns, err = e.db.NamespaceByName(ctx, ipam.DefaultNamespace)
		if errors.Is(err, ipam.ErrNotFound) {
			ns, err = e.db.InsertNamespace(ctx, ipam.DefaultNamespace)
			if errors.Is(err, ipam.ErrDuplicateNamespace) {
				// Lost the race against a concurrent creator.
				ns, err = e.db.NamespaceByName(ctx, ipam.DefaultNamespace)
			}
		}
		return err
	})
	return ns, err
}

// DeleteNamespace removes an empty namespace. It fails with
// ErrNamespaceNotEmpty while any prefix, address or VRF references it.
func (e *Engine) DeleteNamespace(ctx context.Context, id ipam.NamespaceID) error {
	return e.observe(ctx, "delete_namespace", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			used, err := tx.NamespaceInUse(ctx, id)
			if err != nil {
				return err
			}
			if used {
				return serrors.JoinNoStack(ipam.ErrNamespaceNotEmpty, nil,
					"namespace", id)
			}
			return tx.DeleteNamespace(ctx, id)
		})
	})
}

// InsertPrefix registers a new prefix and splices it into the containment
// tree of its namespace: existing prefixes and addresses whose narrowest
// container becomes the new prefix are re-parented onto it. Soft
// type-parenting violations are returned as warnings on the success result.
func (e *Engine) InsertPrefix(ctx context.Context, ns ipam.NamespaceID,
	v netval.Value, t ipam.PrefixType, attrs ipam.Attrs) (PrefixInsertion, error) {

	var res PrefixInsertion
	err := e.observe(ctx, "insert_prefix", func(ctx context.Context) error {
		if !v.IsValid() {
			return serrors.New("invalid network value")
		}
		if !t.Valid() {
			return serrors.New("invalid prefix type", "type", int(t))
		}
		err := e.inTx(ctx, func(tx ipam.Transaction) error {
			var err error
			res, err = insertPrefix(ctx, tx, ipam.Prefix{
				Namespace: ns,
				Value:     v,
				Type:      t,
				Attrs:     attrs,
			})
			return err
		})
		return err
	})
	if err != nil {
		return PrefixInsertion{}, err
	}
	ids := append([]ipam.PrefixID{res.Prefix.ID, res.Prefix.Parent}, res.Reparented...)
	e.invalidateTree(ctx, ns, v, ids...)
	log.FromCtx(ctx).Debug("prefix inserted",
		"namespace", ns, "prefix", v, "type", t,
		"reparented", len(res.Reparented), "moved_addresses", len(res.MovedAddresses))
	return res, nil
}

func insertPrefix(ctx context.Context, tx ipam.Transaction,
	p ipam.Prefix) (PrefixInsertion, error) {

	if _, err := tx.NamespaceByID(ctx, p.Namespace); err != nil {
		return PrefixInsertion{}, serrors.Wrap("resolving namespace", err,
			"namespace", p.Namespace)
	}
	if _, err := tx.PrefixByValue(ctx, p.Namespace, p.Value); err == nil {
		return PrefixInsertion{}, serrors.JoinNoStack(ipam.ErrDuplicatePrefix, nil,
			"namespace", p.Namespace, "prefix", p.Value)
	} else if !errors.Is(err, ipam.ErrNotFound) {
		return PrefixInsertion{}, err
	}

	// The narrowest existing container becomes the parent.
	containers, err := tx.Containing(ctx, p.Namespace, p.Value)
	if err != nil {
		return PrefixInsertion{}, err
	}
	var parent ipam.Prefix
	if len(containers) > 0 {
		parent = containers[0]
		p.Parent = parent.ID
	}

	// Current peers that the new prefix will contain move one level down.
	peers, err := childrenOrRoots(ctx, tx, p.Namespace, p.Parent)
	if err != nil {
		return PrefixInsertion{}, err
	}

	created, err := tx.InsertPrefix(ctx, p)
	if err != nil {
		return PrefixInsertion{}, err
	}

	res := PrefixInsertion{Prefix: created}
	if parent.ID != 0 {
		if w := guidanceWarning(created, parent); w != nil {
			res.Warnings = append(res.Warnings, *w)
		}
	}
	for _, peer := range peers {
		if !p.Value.ContainsStrict(peer.Value) {
			continue
		}
		if err := checkPoolReparent(ctx, tx, peer, created.Type); err != nil {
			return PrefixInsertion{}, err
		}
		if err := tx.UpdatePrefixParent(ctx, peer.ID, created.ID); err != nil {
			return PrefixInsertion{}, err
		}
		res.Reparented = append(res.Reparented, peer.ID)
		if w := guidanceWarning(peer, created); w != nil {
			res.Warnings = append(res.Warnings, *w)
		}
	}

	// Addresses previously parented to the new parent move to the new prefix
	// if it contains them. Root prefixes take over no addresses: any address
	// they contain already has a narrower container.
	if parent.ID != 0 {
		addrs, err := tx.AddressesByParent(ctx, parent.ID)
		if err != nil {
			return PrefixInsertion{}, err
		}
		for _, a := range addrs {
			if !created.Value.ContainsAddr(a.Addr) {
				continue
			}
			// The addresses' new parent chain must remain eligible.
			if created.Type == ipam.Pool && parent.Type != ipam.Network {
				return PrefixInsertion{}, serrors.JoinNoStack(
					ipam.ErrIneligibleParentChain, nil,
					"pool", created.Value, "address", a.Addr)
			}
			if err := tx.UpdateAddressParent(ctx, a.ID, created.ID); err != nil {
				return PrefixInsertion{}, err
			}
			res.MovedAddresses = append(res.MovedAddresses, a.ID)
		}
	}
	return res, nil
}

func childrenOrRoots(ctx context.Context, tx ipam.Transaction,
	ns ipam.NamespaceID, parent ipam.PrefixID) ([]ipam.Prefix, error) {

	if parent == 0 {
		return tx.RootPrefixes(ctx, ns)
	}
	return tx.Children(ctx, parent)
}

// DeletePrefix removes a prefix. Its direct children are promoted to the
// deleted prefix's own parent; directly contained addresses follow, provided
// the parent exists and remains an eligible address container. Otherwise the
// whole deletion is rejected and nothing changes.
func (e *Engine) DeletePrefix(ctx context.Context, id ipam.PrefixID) error {
	var invalidate []ipam.PrefixID
	var deleted ipam.Prefix
	err := e.observe(ctx, "delete_prefix", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			p, err := tx.PrefixByID(ctx, id)
			if err != nil {
				return err
			}
			deleted = p
			children, err := tx.Children(ctx, id)
			if err != nil {
				return err
			}
			addrs, err := tx.AddressesByParent(ctx, id)
			if err != nil {
				return err
			}
			if len(addrs) > 0 {
				if p.Root() {
					return serrors.JoinNoStack(ipam.ErrWouldOrphanAddress, nil,
						"prefix", p.Value, "addresses", len(addrs))
				}
				if err := checkAddressParent(ctx, tx, p.Parent); err != nil {
					return err
				}
			}
			var promotedType ipam.PrefixType
			if len(children) > 0 && !p.Root() {
				parent, err := tx.PrefixByID(ctx, p.Parent)
				if err != nil {
					return err
				}
				promotedType = parent.Type
			}
			for _, child := range children {
				if err := checkPoolReparent(ctx, tx, child, promotedType); err != nil {
					return err
				}
				if err := tx.UpdatePrefixParent(ctx, child.ID, p.Parent); err != nil {
					return err
				}
				invalidate = append(invalidate, child.ID)
			}
			for _, a := range addrs {
				if err := tx.UpdateAddressParent(ctx, a.ID, p.Parent); err != nil {
					return err
				}
			}
			invalidate = append(invalidate, p.ID, p.Parent)
			return tx.DeletePrefix(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	e.invalidateTree(ctx, deleted.Namespace, deleted.Value, invalidate...)
	return nil
}

// checkAddressParent verifies that the prefix can directly contain
// addresses: a pool is only eligible when its own parent is a network.
func checkAddressParent(ctx context.Context, tx ipam.Transaction,
	id ipam.PrefixID) error {

	p, err := tx.PrefixByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Type != ipam.Pool {
		return nil
	}
	if p.Root() {
		return serrors.JoinNoStack(ipam.ErrIneligibleParentChain, nil,
			"pool", p.Value)
	}
	grand, err := tx.PrefixByID(ctx, p.Parent)
	if err != nil {
		return err
	}
	if grand.Type != ipam.Network {
		return serrors.JoinNoStack(ipam.ErrIneligibleParentChain, nil,
			"pool", p.Value, "pool_parent", grand.Value)
	}
	return nil
}

// checkPoolReparent rejects re-parenting a pool that directly holds addresses
// under anything but a network. The addresses would end up on a parent chain
// that resolveAddressParent refuses to create.
func checkPoolReparent(ctx context.Context, tx ipam.Transaction,
	child ipam.Prefix, parentType ipam.PrefixType) error {

	if child.Type != ipam.Pool || parentType == ipam.Network {
		return nil
	}
	addrs, err := tx.AddressesByParent(ctx, child.ID)
	if err != nil {
		return err
	}
	if len(addrs) > 0 {
		return serrors.JoinNoStack(ipam.ErrIneligibleParentChain, nil,
			"pool", child.Value, "addresses", len(addrs))
	}
	return nil
}

// resolveAddressParent returns the narrowest prefix containing addr, subject
// to the pool chain rule. It fails with ErrNoEligibleParent when no prefix
// contains the address at all.
func resolveAddressParent(ctx context.Context, tx ipam.Transaction,
	ns ipam.NamespaceID, addr netip.Addr) (ipam.Prefix, error) {

	containers, err := tx.ContainingAddr(ctx, ns, addr)
	if err != nil {
		return ipam.Prefix{}, err
	}
	if len(containers) == 0 {
		return ipam.Prefix{}, serrors.JoinNoStack(ipam.ErrNoEligibleParent, nil,
			"namespace", ns, "address", addr)
	}
	parent := containers[0]
	if parent.Type == ipam.Pool {
		if len(containers) < 2 || containers[1].Type != ipam.Network {
			return ipam.Prefix{}, serrors.JoinNoStack(
				ipam.ErrIneligibleParentChain, nil,
				"pool", parent.Value, "address", addr)
		}
	}
	return parent, nil
}

// InsertAddress registers a host address. The parent resolves to the
// narrowest containing prefix; without an eligible parent the insert fails,
// an address is never created parentless.
func (e *Engine) InsertAddress(ctx context.Context, ns ipam.NamespaceID,
	addr netip.Addr, maskLen int, attrs ipam.Attrs) (ipam.IPAddress, error) {

	return e.insertAddress(ctx, ns, addr, maskLen, attrs, false)
}

// InsertAddressAutocreate is a convenience wrapper around InsertAddress: if
// no prefix contains the address, a single-host network prefix is created in
// the same transaction and becomes the parent. The base insert stays strict.
func (e *Engine) InsertAddressAutocreate(ctx context.Context, ns ipam.NamespaceID,
	addr netip.Addr, maskLen int, attrs ipam.Attrs) (ipam.IPAddress, error) {

	return e.insertAddress(ctx, ns, addr, maskLen, attrs, true)
}

func (e *Engine) insertAddress(ctx context.Context, ns ipam.NamespaceID,
	addr netip.Addr, maskLen int, attrs ipam.Attrs,
	autocreate bool) (ipam.IPAddress, error) {

	var created ipam.IPAddress
	var invalidate []ipam.PrefixID
	err := e.observe(ctx, "insert_address", func(ctx context.Context) error {
		if !addr.IsValid() {
			return serrors.New("invalid address")
		}
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			if _, err := tx.NamespaceByID(ctx, ns); err != nil {
				return serrors.Wrap("resolving namespace", err, "namespace", ns)
			}
			if _, err := tx.AddressByValue(ctx, ns, addr); err == nil {
				return serrors.JoinNoStack(ipam.ErrDuplicateAddress, nil,
					"namespace", ns, "address", addr)
			} else if !errors.Is(err, ipam.ErrNotFound) {
				return err
			}
			parent, err := resolveAddressParent(ctx, tx, ns, addr)
			if autocreate && errors.Is(err, ipam.ErrNoEligibleParent) {
				ins, insErr := insertPrefix(ctx, tx, ipam.Prefix{
					Namespace: ns,
					Value:     netval.FromAddr(addr),
					Type:      ipam.Network,
				})
				if insErr != nil {
					return insErr
				}
				parent, err = ins.Prefix, nil
			}
			if err != nil {
				return err
			}
			created, err = tx.InsertAddress(ctx, ipam.IPAddress{
				Namespace: ns,
				Addr:      addr,
				MaskLen:   maskLen,
				Parent:    parent.ID,
				Attrs:     attrs,
			})
			invalidate = append(invalidate, parent.ID)
			return err
		})
	})
	if err != nil {
		return ipam.IPAddress{}, err
	}
	e.invalidateTree(ctx, ns, netval.FromAddr(addr), invalidate...)
	return created, nil
}

// DeleteAddress removes an address. Addresses never own descendants, so
// deletion always succeeds if the address exists.
func (e *Engine) DeleteAddress(ctx context.Context, id ipam.AddressID) error {
	var deleted ipam.IPAddress
	err := e.observe(ctx, "delete_address", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			a, err := tx.AddressByID(ctx, id)
			if err != nil {
				return err
			}
			deleted = a
			return tx.DeleteAddress(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	e.invalidateTree(ctx, deleted.Namespace,
		netval.FromAddr(deleted.Addr), deleted.Parent)
	return nil
}

// MovePrefix moves a prefix into another namespace. The prefix is detached
// from its current tree under the deletion rules, then inserted into the
// target namespace as if it were new: uniqueness and parenting are
// re-validated there. A prefix with VRF attachments cannot move, since the
// attachments would cross the namespace boundary.
func (e *Engine) MovePrefix(ctx context.Context, id ipam.PrefixID,
	target ipam.NamespaceID) error {

	var invalidate []ipam.PrefixID
	var moved ipam.Prefix
	err := e.observe(ctx, "move_prefix", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			p, err := tx.PrefixByID(ctx, id)
			if err != nil {
				return err
			}
			moved = p
			if p.Namespace == target {
				return nil
			}
			if _, err := tx.NamespaceByID(ctx, target); err != nil {
				return serrors.Wrap("resolving target namespace", err,
					"namespace", target)
			}
			vrfs, err := tx.VRFsByPrefix(ctx, id)
			if err != nil {
				return err
			}
			if len(vrfs) > 0 {
				return serrors.JoinNoStack(ipam.ErrCrossNamespace, nil,
					"prefix", p.Value, "vrfs", len(vrfs))
			}

			// Detach: the current children and addresses are promoted as if
			// the prefix were deleted.
			children, err := tx.Children(ctx, id)
			if err != nil {
				return err
			}
			addrs, err := tx.AddressesByParent(ctx, id)
			if err != nil {
				return err
			}
			if len(addrs) > 0 {
				if p.Root() {
					return serrors.JoinNoStack(ipam.ErrWouldOrphanAddress, nil,
						"prefix", p.Value, "addresses", len(addrs))
				}
				if err := checkAddressParent(ctx, tx, p.Parent); err != nil {
					return err
				}
			}
			var promotedType ipam.PrefixType
			if len(children) > 0 && !p.Root() {
				parent, err := tx.PrefixByID(ctx, p.Parent)
				if err != nil {
					return err
				}
				promotedType = parent.Type
			}
			for _, child := range children {
				if err := checkPoolReparent(ctx, tx, child, promotedType); err != nil {
					return err
				}
				if err := tx.UpdatePrefixParent(ctx, child.ID, p.Parent); err != nil {
					return err
				}
				invalidate = append(invalidate, child.ID)
			}
			for _, a := range addrs {
				if err := tx.UpdateAddressParent(ctx, a.ID, p.Parent); err != nil {
					return err
				}
			}
			invalidate = append(invalidate, p.ID, p.Parent)

			// Attach: validated like a fresh insert in the target namespace.
			if _, err := tx.PrefixByValue(ctx, target, p.Value); err == nil {
				return serrors.JoinNoStack(ipam.ErrDuplicatePrefix, nil,
					"namespace", target, "prefix", p.Value)
			} else if !errors.Is(err, ipam.ErrNotFound) {
				return err
			}
			containers, err := tx.Containing(ctx, target, p.Value)
			if err != nil {
				return err
			}
			var newParent ipam.PrefixID
			var parentType ipam.PrefixType
			if len(containers) > 0 {
				newParent = containers[0].ID
				parentType = containers[0].Type
			}
			peers, err := childrenOrRoots(ctx, tx, target, newParent)
			if err != nil {
				return err
			}
			if err := tx.UpdatePrefixNamespace(ctx, id, target, newParent); err != nil {
				return err
			}
			for _, peer := range peers {
				if !p.Value.ContainsStrict(peer.Value) {
					continue
				}
				if err := checkPoolReparent(ctx, tx, peer, p.Type); err != nil {
					return err
				}
				if err := tx.UpdatePrefixParent(ctx, peer.ID, id); err != nil {
					return err
				}
				invalidate = append(invalidate, peer.ID)
			}
			if newParent != 0 {
				taddrs, err := tx.AddressesByParent(ctx, newParent)
				if err != nil {
					return err
				}
				for _, a := range taddrs {
					if !p.Value.ContainsAddr(a.Addr) {
						continue
					}
					if p.Type == ipam.Pool && parentType != ipam.Network {
						return serrors.JoinNoStack(
							ipam.ErrIneligibleParentChain, nil,
							"pool", p.Value, "address", a.Addr)
					}
					if err := tx.UpdateAddressParent(ctx, a.ID, id); err != nil {
						return err
					}
				}
				invalidate = append(invalidate, newParent)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	e.invalidateTree(ctx, moved.Namespace, moved.Value, invalidate...)
	e.invalidateTree(ctx, target, moved.Value)
	return nil
}

// MoveAddress moves an address into another namespace, re-validating
// uniqueness and parent resolution there as if it were newly inserted.
func (e *Engine) MoveAddress(ctx context.Context, id ipam.AddressID,
	target ipam.NamespaceID) error {

	var invalidate []ipam.PrefixID
	var moved ipam.IPAddress
	err := e.observe(ctx, "move_address", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			a, err := tx.AddressByID(ctx, id)
			if err != nil {
				return err
			}
			moved = a
			if a.Namespace == target {
				return nil
			}
			if _, err := tx.NamespaceByID(ctx, target); err != nil {
				return serrors.Wrap("resolving target namespace", err,
					"namespace", target)
			}
			if _, err := tx.AddressByValue(ctx, target, a.Addr); err == nil {
				return serrors.JoinNoStack(ipam.ErrDuplicateAddress, nil,
					"namespace", target, "address", a.Addr)
			} else if !errors.Is(err, ipam.ErrNotFound) {
				return err
			}
			parent, err := resolveAddressParent(ctx, tx, target, a.Addr)
			if err != nil {
				return err
			}
			if err := tx.UpdateAddressNamespace(ctx, id, target, parent.ID); err != nil {
				return err
			}
			invalidate = append(invalidate, a.Parent, parent.ID)
			return nil
		})
	})
	if err != nil {
		return err
	}
	v := netval.FromAddr(moved.Addr)
	e.invalidateTree(ctx, moved.Namespace, v, invalidate...)
	e.invalidateTree(ctx, target, v)
	return nil
}

// Ancestors returns the chain of prefixes containing the given one,
// narrowest first. The sequence is finite; the immediate parent comes first.
func (e *Engine) Ancestors(ctx context.Context, id ipam.PrefixID) ([]ipam.Prefix, error) {
	p, err := e.db.PrefixByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.db.Containing(ctx, p.Namespace, p.Value)
}

// Descendants returns all prefixes contained by the given one. The order is
// unspecified but stable within one snapshot.
func (e *Engine) Descendants(ctx context.Context, id ipam.PrefixID) ([]ipam.Prefix, error) {
	p, err := e.db.PrefixByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.db.ContainedBy(ctx, p.Namespace, p.Value)
}

// Children returns the direct children of the prefix.
func (e *Engine) Children(ctx context.Context, id ipam.PrefixID) ([]ipam.Prefix, error) {
	return e.db.Children(ctx, id)
}

// RootPrefixes returns the prefixes of the namespace that have no parent.
func (e *Engine) RootPrefixes(ctx context.Context, ns ipam.NamespaceID) ([]ipam.Prefix, error) {
	return e.db.RootPrefixes(ctx, ns)
}

// Addresses returns the addresses directly parented to the prefix.
func (e *Engine) Addresses(ctx context.Context, id ipam.PrefixID) ([]ipam.IPAddress, error) {
	return e.db.AddressesByParent(ctx, id)
}

// Prefix returns the prefix by id.
func (e *Engine) Prefix(ctx context.Context, id ipam.PrefixID) (ipam.Prefix, error) {
	return e.db.PrefixByID(ctx, id)
}

// Address returns the address by id.
func (e *Engine) Address(ctx context.Context, id ipam.AddressID) (ipam.IPAddress, error) {
	return e.db.AddressByID(ctx, id)
}

// CreateVRF registers a VRF in a namespace. The route distinguisher must be
// unique within the namespace.
func (e *Engine) CreateVRF(ctx context.Context, ns ipam.NamespaceID,
	rd string) (ipam.VRF, error) {

	var vrf ipam.VRF
	err := e.observe(ctx, "create_vrf", func(ctx context.Context) error {
		if _, err := e.db.NamespaceByID(ctx, ns); err != nil {
			return serrors.Wrap("resolving namespace", err, "namespace", ns)
		}
		var err error
		vrf, err = e.db.InsertVRF(ctx, ipam.VRF{Namespace: ns, RouteDistinguisher: rd})
		return err
	})
	return vrf, err
}

// AssignVRF associates a VRF with a prefix. Both must live in the same
// namespace; cross-namespace assignment is rejected.
func (e *Engine) AssignVRF(ctx context.Context, prefix ipam.PrefixID,
	vrf ipam.VRFID) error {

	return e.observe(ctx, "assign_vrf", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx ipam.Transaction) error {
			p, err := tx.PrefixByID(ctx, prefix)
			if err != nil {
				return err
			}
			v, err := tx.VRFByID(ctx, vrf)
			if err != nil {
				return err
			}
			if p.Namespace != v.Namespace {
				return serrors.JoinNoStack(ipam.ErrCrossNamespace, nil,
					"prefix_namespace", p.Namespace, "vrf_namespace", v.Namespace)
			}
			return tx.AttachVRF(ctx, prefix, vrf)
		})
	})
}

// UnassignVRF removes a VRF association if present.
func (e *Engine) UnassignVRF(ctx context.Context, prefix ipam.PrefixID,
	vrf ipam.VRFID) error {

	return e.observe(ctx, "unassign_vrf", func(ctx context.Context) error {
		return e.db.DetachVRF(ctx, prefix, vrf)
	})
}

// VRFs returns the VRFs attached to a prefix.
func (e *Engine) VRFs(ctx context.Context, id ipam.PrefixID) ([]ipam.VRF, error) {
	return e.db.VRFsByPrefix(ctx, id)
}

func (e *Engine) invalidate(ids ...ipam.PrefixID) {
	for _, id := range ids {
		if id != 0 {
			e.util.Delete(id)
		}
	}
}

// invalidateTree drops the cached utilization of the given ids and of every
// prefix containing v in the namespace. Ancestor totals can depend on
// descendant occupancy through the IPv4 first/last adjustment, so the whole
// chain goes.
func (e *Engine) invalidateTree(ctx context.Context, ns ipam.NamespaceID,
	v netval.Value, ids ...ipam.PrefixID) {

	e.invalidate(ids...)
	anc, err := e.db.Containing(ctx, ns, v)
	if err != nil {
		log.FromCtx(ctx).Debug("utilization invalidation lookup failed", "err", err)
		return
	}
	for _, p := range anc {
		e.util.Delete(p.ID)
	}
}
