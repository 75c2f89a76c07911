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
	"github.com/netipam/netipam/pkg/private/serrors"
)

// The error kinds of the hierarchy engine. Every invariant violation is
// detected and rejected before any mutation is persisted; callers match with
// errors.Is and translate into field-level validation messages.
var (
	// ErrNotFound indicates the referenced object does not exist.
	ErrNotFound = serrors.New("ipam: not found")
	// ErrDuplicateNamespace indicates a namespace with that name exists.
	ErrDuplicateNamespace = serrors.New("ipam: duplicate namespace name")
	// ErrDuplicatePrefix indicates a prefix with the same network value
	// already exists in the namespace.
	ErrDuplicatePrefix = serrors.New("ipam: duplicate prefix")
	// ErrDuplicateAddress indicates an address with the same value already
	// exists in the namespace.
	ErrDuplicateAddress = serrors.New("ipam: duplicate address")
	// ErrDuplicateVRF indicates a VRF with the same route distinguisher
	// already exists in the namespace.
	ErrDuplicateVRF = serrors.New("ipam: duplicate VRF")
	// ErrNoEligibleParent indicates address creation with no containing
	// prefix in the namespace.
	ErrNoEligibleParent = serrors.New("ipam: no eligible parent prefix")
	// ErrIneligibleParentChain indicates the narrowest containing prefix is a
	// pool whose own parent is not a network.
	ErrIneligibleParentChain = serrors.New("ipam: pool without enclosing network")
	// ErrWouldOrphanAddress indicates a prefix deletion that would leave an
	// address without a containing prefix.
	ErrWouldOrphanAddress = serrors.New("ipam: deletion would orphan address")
	// ErrCrossNamespace indicates a VRF assignment or move crossing the
	// namespace boundary improperly.
	ErrCrossNamespace = serrors.New("ipam: cross-namespace operation")
	// ErrNamespaceNotEmpty indicates deletion of a namespace still referenced
	// by prefixes, addresses or VRFs.
	ErrNamespaceNotEmpty = serrors.New("ipam: namespace not empty")
)
