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
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/metrics"
	"github.com/netipam/netipam/private/storage/db"
)

// Metrics observes engine operations. A nil Metrics and nil fields are
// valid and observe nothing.
type Metrics struct {
	// Ops counts engine operations, labeled by operation and result.
	Ops metrics.Counter
}

func (e *Engine) observe(ctx context.Context, op string,
	action func(context.Context) error) error {

	span, ctx := opentracing.StartSpanFromContext(ctx, fmt.Sprintf("ipam.%s", op))
	defer span.Finish()
	err := action(ctx)
	if e.metrics != nil {
		metrics.CounterInc(metrics.CounterWith(e.metrics.Ops,
			"operation", op, "result", errToLabel(err)))
	}
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.msg", err.Error())
	}
	return err
}

func errToLabel(err error) string {
	switch {
	case errors.Is(err, ipam.ErrDuplicatePrefix):
		return "err_duplicate_prefix"
	case errors.Is(err, ipam.ErrDuplicateAddress):
		return "err_duplicate_address"
	case errors.Is(err, ipam.ErrDuplicateNamespace):
		return "err_duplicate_namespace"
	case errors.Is(err, ipam.ErrDuplicateVRF):
		return "err_duplicate_vrf"
	case errors.Is(err, ipam.ErrNoEligibleParent):
		return "err_no_eligible_parent"
	case errors.Is(err, ipam.ErrIneligibleParentChain):
		return "err_ineligible_parent_chain"
	case errors.Is(err, ipam.ErrWouldOrphanAddress):
		return "err_would_orphan_address"
	case errors.Is(err, ipam.ErrCrossNamespace):
		return "err_cross_namespace"
	case errors.Is(err, ipam.ErrNamespaceNotEmpty):
		return "err_namespace_not_empty"
	case errors.Is(err, ipam.ErrNotFound):
		return "err_not_found"
	}
	return db.ErrToMetricLabel(err)
}
