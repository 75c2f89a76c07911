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

package ipam

import (
	"context"
	"database/sql"
	"io"
	"net/netip"

	"github.com/netipam/netipam/pkg/netval"
)

// Read defines the read operations of the hierarchy store. All containment
// queries are scoped to one namespace and one address family; they never
// compare across families.
type Read interface {
	// NamespaceByID returns the namespace, or ErrNotFound.
	NamespaceByID(ctx context.Context, id NamespaceID) (Namespace, error)
	// NamespaceByName returns the namespace with the given name, or
	// ErrNotFound.
	NamespaceByName(ctx context.Context, name string) (Namespace, error)
	// NamespaceInUse reports whether any prefix, address or VRF still
	// references the namespace.
	NamespaceInUse(ctx context.Context, id NamespaceID) (bool, error)

	// PrefixByID returns the prefix, or ErrNotFound.
	PrefixByID(ctx context.Context, id PrefixID) (Prefix, error)
	// PrefixByValue returns the prefix with exactly the given network value,
	// or ErrNotFound.
	PrefixByValue(ctx context.Context, ns NamespaceID, v netval.Value) (Prefix, error)
	// Containing returns the prefixes whose network strictly contains v,
	// narrowest first. The narrowest is unique: two distinct prefixes of
	// equal length cannot both contain v.
	Containing(ctx context.Context, ns NamespaceID, v netval.Value) ([]Prefix, error)
	// ContainingAddr returns the prefixes whose range covers the address,
	// narrowest first. Unlike Containing, a host prefix (/32, /128) equal to
	// the address is included.
	ContainingAddr(ctx context.Context, ns NamespaceID, addr netip.Addr) ([]Prefix, error)
	// ContainedBy returns the prefixes strictly contained by v. The order is
	// unspecified but stable within one snapshot (base address, then length).
	ContainedBy(ctx context.Context, ns NamespaceID, v netval.Value) ([]Prefix, error)
	// Children returns the direct child prefixes of the given prefix.
	Children(ctx context.Context, id PrefixID) ([]Prefix, error)
	// RootPrefixes returns the prefixes of the namespace with no parent.
	RootPrefixes(ctx context.Context, ns NamespaceID) ([]Prefix, error)

	// AddressByID returns the address record, or ErrNotFound.
	AddressByID(ctx context.Context, id AddressID) (IPAddress, error)
	// AddressByValue returns the address record with the given host value, or
	// ErrNotFound.
	AddressByValue(ctx context.Context, ns NamespaceID, addr netip.Addr) (IPAddress, error)
	// AddressesByParent returns the addresses directly parented to the
	// prefix.
	AddressesByParent(ctx context.Context, id PrefixID) ([]IPAddress, error)

	// VRFByID returns the VRF, or ErrNotFound.
	VRFByID(ctx context.Context, id VRFID) (VRF, error)
	// VRFsByPrefix returns the VRFs attached to the prefix.
	VRFsByPrefix(ctx context.Context, id PrefixID) ([]VRF, error)
}

// Write defines the write operations of the hierarchy store. Implementations
// translate uniqueness-constraint violations into the corresponding
// ErrDuplicate* sentinel. The writes are row-level; invariant enforcement and
// re-parenting cascades are the engine's business and run inside one
// Transaction.
type Write interface {
	// InsertNamespace creates a namespace, or returns ErrDuplicateNamespace.
	InsertNamespace(ctx context.Context, name string) (Namespace, error)
	// DeleteNamespace removes a namespace row. The caller checks emptiness.
	DeleteNamespace(ctx context.Context, id NamespaceID) error

	// InsertPrefix persists a new prefix and returns it with the assigned ID,
	// or returns ErrDuplicatePrefix.
	InsertPrefix(ctx context.Context, p Prefix) (Prefix, error)
	// UpdatePrefixParent re-points the prefix at a new parent; zero means
	// root.
	UpdatePrefixParent(ctx context.Context, id PrefixID, parent PrefixID) error
	// UpdatePrefixNamespace moves the prefix into another namespace with the
	// given parent, or returns ErrDuplicatePrefix.
	UpdatePrefixNamespace(ctx context.Context, id PrefixID, ns NamespaceID,
		parent PrefixID) error
	// DeletePrefix removes the prefix row.
	DeletePrefix(ctx context.Context, id PrefixID) error

	// InsertAddress persists a new address and returns it with the assigned
	// ID, or returns ErrDuplicateAddress.
	InsertAddress(ctx context.Context, a IPAddress) (IPAddress, error)
	// UpdateAddressParent re-points the address at a new parent prefix.
	UpdateAddressParent(ctx context.Context, id AddressID, parent PrefixID) error
	// UpdateAddressNamespace moves the address into another namespace with
	// the given parent, or returns ErrDuplicateAddress.
	UpdateAddressNamespace(ctx context.Context, id AddressID, ns NamespaceID,
		parent PrefixID) error
	// DeleteAddress removes the address row.
	DeleteAddress(ctx context.Context, id AddressID) error

	// InsertVRF creates a VRF, or returns ErrDuplicateVRF.
	InsertVRF(ctx context.Context, v VRF) (VRF, error)
	// AttachVRF associates a VRF with a prefix. Attaching twice is a no-op.
	AttachVRF(ctx context.Context, prefix PrefixID, vrf VRFID) error
	// DetachVRF removes the association if it exists.
	DetachVRF(ctx context.Context, prefix PrefixID, vrf VRFID) error
}

// ReadWrite combines the read and write operations.
type ReadWrite interface {
	Read
	Write
}

// Transaction wraps the store operations in an atomic scope. A structural
// mutation commits all its constituent re-parenting steps together or not at
// all.
type Transaction interface {
	ReadWrite
	// Commit commits the transaction.
	Commit() error
	// Rollback aborts the transaction. Calling Rollback after Commit is a
	// no-op.
	Rollback() error
}

// DB is the interface the hierarchy engine operates on.
//
// Implementations must guarantee that writes within one transaction are
// serializable with respect to concurrent transactions on the same backend.
type DB interface {
	ReadWrite
	// BeginTransaction starts a transaction.
	BeginTransaction(ctx context.Context, opts *sql.TxOptions) (Transaction, error)
	// SetMaxOpenConns sets the maximum number of open connections.
	SetMaxOpenConns(maxOpenConns int)
	// SetMaxIdleConns sets the maximum number of idle connections.
	SetMaxIdleConns(maxIdleConns int)
	io.Closer
}
