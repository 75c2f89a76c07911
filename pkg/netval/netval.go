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

// Package netval defines the immutable network value used to position
// prefixes and addresses in the containment hierarchy. A Value is an address
// family, a base address and a prefix length, in canonical (masked) form.
// Containment, overlap and ordering are only defined between values of the
// same family.
package netval

import (
	"net/netip"

	"go4.org/netipx"

	"github.com/netipam/netipam/pkg/private/serrors"
)

// Family is the address family of a Value.
type Family uint8

// The supported address families.
const (
	FamilyUnspecified Family = 0
	IPv4              Family = 4
	IPv6              Family = 6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "unspecified"
	}
}

// ErrCrossFamily indicates a comparison between values of different address
// families. Such comparisons are caller bugs and never valid.
var ErrCrossFamily = serrors.New("cross-family comparison")

// Value is an immutable network value: family, base address and prefix
// length. The zero Value is invalid.
type Value struct {
	prefix netip.Prefix
}

// ParsePrefix parses s as a network value in CIDR form. The base address is
// canonicalized to its masked form, so "10.1.2.3/8" yields "10.0.0.0/8".
func ParsePrefix(s string) (Value, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Value{}, serrors.Wrap("parsing prefix", err, "input", s)
	}
	return FromPrefix(p), nil
}

// MustParsePrefix is like ParsePrefix but panics on error. Test helper.
func MustParsePrefix(s string) Value {
	v, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseAddr parses a bare address into a host-length Value.
func ParseAddr(s string) (Value, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Value{}, serrors.Wrap("parsing address", err, "input", s)
	}
	return FromAddr(a), nil
}

// MustParseAddr is like ParseAddr but panics on invalid input.
func MustParseAddr(s string) Value {
	v, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromPrefix converts a netip.Prefix into a canonical Value.
func FromPrefix(p netip.Prefix) Value {
	return Value{prefix: p.Masked()}
}

// FromAddr returns the host value of a single address (/32 or /128).
func FromAddr(a netip.Addr) Value {
	return Value{prefix: netip.PrefixFrom(a, a.BitLen())}
}

// IsValid reports whether v is a valid network value.
func (v Value) IsValid() bool {
	return v.prefix.IsValid()
}

// Family returns the address family.
func (v Value) Family() Family {
	if v.prefix.Addr().Is4() {
		return IPv4
	}
	if v.prefix.Addr().Is6() {
		return IPv6
	}
	return FamilyUnspecified
}

// Addr returns the base address.
func (v Value) Addr() netip.Addr {
	return v.prefix.Addr()
}

// Bits returns the prefix length.
func (v Value) Bits() int {
	return v.prefix.Bits()
}

// Prefix returns the underlying netip.Prefix in masked form.
func (v Value) Prefix() netip.Prefix {
	return v.prefix
}

// IsHost reports whether v is a host route (/32 or /128): it contains only
// itself.
func (v Value) IsHost() bool {
	return v.prefix.IsSingleIP()
}

// Contains reports whether v is a superset of o, i.e. every address of o lies
// inside v. A value contains itself. Values of different families never
// contain one another.
func (v Value) Contains(o Value) bool {
	if v.Family() != o.Family() {
		return false
	}
	return v.prefix.Bits() <= o.prefix.Bits() && v.prefix.Contains(o.prefix.Addr())
}

// ContainsStrict reports whether v contains o and is broader than o.
func (v Value) ContainsStrict(o Value) bool {
	return v.prefix.Bits() < o.prefix.Bits() && v.Contains(o)
}

// ContainsAddr reports whether the address a lies inside v.
func (v Value) ContainsAddr(a netip.Addr) bool {
	return v.prefix.Contains(a)
}

// Overlaps reports whether v and o share any address. Distinct from Contains:
// two values overlap whenever either contains the other.
func (v Value) Overlaps(o Value) bool {
	if v.Family() != o.Family() {
		return false
	}
	return v.prefix.Overlaps(o.prefix)
}

// Compare orders values by family, then base address, then specificity:
// at equal base address the narrower value sorts after the broader one. The
// ordering is total and deterministic, suitable for lexical placement in
// balanced structures.
func (v Value) Compare(o Value) int {
	if d := int(v.Family()) - int(o.Family()); d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	if d := v.prefix.Addr().Compare(o.prefix.Addr()); d != 0 {
		return d
	}
	switch {
	case v.prefix.Bits() < o.prefix.Bits():
		return -1
	case v.prefix.Bits() > o.prefix.Bits():
		return 1
	default:
		return 0
	}
}

// CheckFamily returns ErrCrossFamily if v and o have different families.
func (v Value) CheckFamily(o Value) error {
	if v.Family() != o.Family() {
		return serrors.Join(ErrCrossFamily, nil, "a", v, "b", o)
	}
	return nil
}

// Size returns the total number of addresses covered by v: 2^(bits-length).
func (v Value) Size() U128 {
	return Pow2(uint(v.prefix.Addr().BitLen() - v.prefix.Bits()))
}

// First returns the first address of the range (the base address).
func (v Value) First() netip.Addr {
	return v.prefix.Addr()
}

// Last returns the last address of the range.
func (v Value) Last() netip.Addr {
	return netipx.PrefixLastIP(v.prefix)
}

// String returns the canonical CIDR representation.
func (v Value) String() string {
	return v.prefix.String()
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	return v.prefix.MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	var p netip.Prefix
	if err := p.UnmarshalText(text); err != nil {
		return err
	}
	*v = FromPrefix(p)
	return nil
}
