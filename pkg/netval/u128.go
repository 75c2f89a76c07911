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

package netval

import (
	"math/bits"
	"strconv"
)

// U128 is an unsigned 128-bit integer. It is large enough to count the full
// IPv6 address space of a /0, which overflows uint64. The zero value is 0.
type U128 struct {
	Hi uint64
	Lo uint64
}

// U128From returns the U128 representation of v.
func U128From(v uint64) U128 {
	return U128{Lo: v}
}

// Pow2 returns 2^n. For n == 128 the result saturates to the maximum value,
// since 2^128 is not representable; no address-space computation reaches it.
func Pow2(n uint) U128 {
	switch {
	case n < 64:
		return U128{Lo: 1 << n}
	case n < 128:
		return U128{Hi: 1 << (n - 64)}
	default:
		return U128{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
}

// Add returns u + v. Overflow wraps around.
func (u U128) Add(v U128) U128 {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, _ := bits.Add64(u.Hi, v.Hi, carry)
	return U128{Hi: hi, Lo: lo}
}

// Sub returns u - v. Underflow wraps around.
func (u U128) Sub(v U128) U128 {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, _ := bits.Sub64(u.Hi, v.Hi, borrow)
	return U128{Hi: hi, Lo: lo}
}

// Cmp returns -1, 0 or 1 depending on whether u is smaller, equal or greater
// than v.
func (u U128) Cmp(v U128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether u is 0.
func (u U128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// Uint64 returns the low 64 bits and whether the value fits in a uint64.
func (u U128) Uint64() (uint64, bool) {
	return u.Lo, u.Hi == 0
}

// String returns the decimal representation.
func (u U128) String() string {
	if u.Hi == 0 {
		return strconv.FormatUint(u.Lo, 10)
	}
	var digits []byte
	for !u.IsZero() {
		var rem uint64
		u, rem = u.divmod10()
		digits = append(digits, byte('0'+rem))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

func (u U128) divmod10() (U128, uint64) {
	hi, remHi := u.Hi/10, u.Hi%10
	lo, remLo := bits.Div64(remHi, u.Lo, 10)
	return U128{Hi: hi, Lo: lo}, remLo
}
