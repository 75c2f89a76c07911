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

package engine

import (
	"context"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/netval"
)

// Utilization describes how much of a prefix's address space is occupied.
// What counts as occupied depends on the prefix type: containers are filled
// by the space of their child prefixes, pools by their addresses, networks
// by their pools and directly attached addresses.
type Utilization struct {
	Used  netval.U128
	Total netval.U128
}

// Utilization computes the occupancy of a prefix. Results are memoized and
// invalidated on every structural mutation through this engine. The numbers
// are advisory: they describe one recent snapshot and are not serialized
// against concurrent writers.
func (e *Engine) Utilization(ctx context.Context, id ipam.PrefixID) (Utilization, error) {
	if u, ok := e.util.Get(id); ok {
		return u, nil
	}
	var u Utilization
	err := e.observe(ctx, "utilization", func(ctx context.Context) error {
		p, err := e.db.PrefixByID(ctx, id)
		if err != nil {
			return err
		}
		u, err = e.computeUtilization(ctx, p)
		return err
	})
	if err != nil {
		return Utilization{}, err
	}
	e.util.Set(id, u)
	return u, nil
}

func (e *Engine) computeUtilization(ctx context.Context, p ipam.Prefix) (Utilization, error) {
	switch p.Type {
	case ipam.Container:
		children, err := e.db.Children(ctx, p.ID)
		if err != nil {
			return Utilization{}, err
		}
		var used netval.U128
		for _, c := range children {
			t, err := e.totalOf(ctx, c)
			if err != nil {
				return Utilization{}, err
			}
			used = used.Add(t)
		}
		return Utilization{Used: used, Total: p.Value.Size()}, nil

	case ipam.Pool:
		addrs, err := e.db.AddressesByParent(ctx, p.ID)
		if err != nil {
			return Utilization{}, err
		}
		return Utilization{
			Used:  netval.U128From(uint64(len(addrs))),
			Total: p.Value.Size(),
		}, nil

	case ipam.Network:
		children, err := e.db.Children(ctx, p.ID)
		if err != nil {
			return Utilization{}, err
		}
		addrs, err := e.db.AddressesByParent(ctx, p.ID)
		if err != nil {
			return Utilization{}, err
		}
		var used netval.U128
		for _, c := range children {
			if c.Type != ipam.Pool {
				continue
			}
			used = used.Add(c.Value.Size())
		}
		used = used.Add(netval.U128From(uint64(len(addrs))))
		return Utilization{
			Used:  used,
			Total: networkTotal(p, children, addrs),
		}, nil
	}
	return Utilization{Used: netval.U128{}, Total: p.Value.Size()}, nil
}

// totalOf returns the capacity a child contributes to its container. For
// networks this includes the IPv4 first/last exclusion, so that a
// container's occupancy adds up with its children's totals.
func (e *Engine) totalOf(ctx context.Context, p ipam.Prefix) (netval.U128, error) {
	if p.Type != ipam.Network {
		return p.Value.Size(), nil
	}
	if !networkMayExclude(p) {
		return p.Value.Size(), nil
	}
	children, err := e.db.Children(ctx, p.ID)
	if err != nil {
		return netval.U128{}, err
	}
	addrs, err := e.db.AddressesByParent(ctx, p.ID)
	if err != nil {
		return netval.U128{}, err
	}
	return networkTotal(p, children, addrs), nil
}

// networkMayExclude reports whether the prefix is subject to the IPv4
// network/broadcast exclusion: /31 and /32 count every address, as do all
// IPv6 networks.
func networkMayExclude(p ipam.Prefix) bool {
	return p.Value.Family() == netval.IPv4 && p.Value.Bits() < 31
}

// networkTotal returns the usable size of a network. For IPv4 networks
// shorter than /31 the network and broadcast addresses are excluded, unless
// either is already occupied by a child pool or a directly attached address,
// in which case the full size counts.
func networkTotal(p ipam.Prefix, children []ipam.Prefix, addrs []ipam.IPAddress) netval.U128 {
	size := p.Value.Size()
	if !networkMayExclude(p) {
		return size
	}
	first, last := p.Value.First(), p.Value.Last()
	for _, c := range children {
		if c.Type != ipam.Pool {
			continue
		}
		if c.Value.ContainsAddr(first) || c.Value.ContainsAddr(last) {
			return size
		}
	}
	for _, a := range addrs {
		if a.Addr == first || a.Addr == last {
			return size
		}
	}
	return size.Sub(netval.U128From(2))
}
