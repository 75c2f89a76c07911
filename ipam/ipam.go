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

// Package ipam defines the domain model of the address-space hierarchy: the
// namespace isolation boundary, the typed prefix tree, host addresses and VRF
// routing contexts, together with the storage contract the hierarchy engine
// operates on.
package ipam

import (
	"fmt"
	"net/netip"

	"github.com/netipam/netipam/pkg/netval"
)

// DefaultNamespace is the name of the namespace used when the caller does not
// specify one.
const DefaultNamespace = "Global"

// NamespaceID identifies a namespace.
type NamespaceID int64

// PrefixID identifies a prefix. The zero value means "no prefix"; it is used
// as the parent of root prefixes.
type PrefixID int64

// AddressID identifies an IP address record.
type AddressID int64

// VRFID identifies a VRF.
type VRFID int64

// Namespace is the isolation boundary. Uniqueness of prefixes, addresses and
// VRFs is enforced only within one namespace; distinct namespaces are fully
// independent.
type Namespace struct {
	ID   NamespaceID
	Name string
}

// PrefixType classifies a prefix. The set is closed; the utilization rules
// match exhaustively on it.
type PrefixType int

const (
	// Container aggregates child prefixes; occupancy derives from the
	// children's full sizes.
	Container PrefixType = iota + 1
	// Network is an actual subnet; it can directly host addresses and pools.
	Network
	// Pool is a block of individually assignable addresses within a network.
	Pool
)

func (t PrefixType) String() string {
	switch t {
	case Container:
		return "container"
	case Network:
		return "network"
	case Pool:
		return "pool"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined prefix types.
func (t PrefixType) Valid() bool {
	return t >= Container && t <= Pool
}

// ParsePrefixType parses the string form of a prefix type.
func ParsePrefixType(s string) (PrefixType, error) {
	switch s {
	case "container":
		return Container, nil
	case "network":
		return Network, nil
	case "pool":
		return Pool, nil
	default:
		return 0, fmt.Errorf("unknown prefix type: %q", s)
	}
}

// Attrs carries opaque caller metadata (tenant, role, status and the like).
// The engine persists it verbatim; it has no effect on parenting.
type Attrs map[string]string

// Prefix is a registered address block with a position in the containment
// tree. Parent is zero for roots; otherwise it references the narrowest
// prefix in the same namespace that strictly contains Value.
type Prefix struct {
	ID        PrefixID
	Namespace NamespaceID
	Value     netval.Value
	Type      PrefixType
	Parent    PrefixID
	Attrs     Attrs
}

// Root reports whether the prefix has no containing prefix.
func (p Prefix) Root() bool {
	return p.Parent == 0
}

// IPAddress is a single host address. Parent is never zero after a successful
// insert: an address cannot exist without a containing prefix. MaskLen is
// documentation only and takes no part in parenting.
type IPAddress struct {
	ID        AddressID
	Namespace NamespaceID
	Addr      netip.Addr
	MaskLen   int
	Parent    PrefixID
	Attrs     Attrs
}

// Value returns the host network value of the address.
func (a IPAddress) Value() netval.Value {
	return netval.FromAddr(a.Addr)
}

// VRF is a routing context. It is opaque to the engine beyond its namespace
// scoping and the uniqueness of its route distinguisher within the namespace.
type VRF struct {
	ID                 VRFID
	Namespace          NamespaceID
	RouteDistinguisher string
}

// Warning reports a soft guidance violation attached to a successful write.
// The type-parenting guidance (container under container, network under
// container, pool under network) warns but never blocks.
type Warning struct {
	Msg    string
	Child  netval.Value
	Parent netval.Value
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s under %s", w.Msg, w.Child, w.Parent)
}
