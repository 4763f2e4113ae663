// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry bounds repeated attempts of a per-project step by the kind of
// error it returns. The policy is an explicit table: a kind that is not listed
// is never retried.
package retry

import (
	"context"
	"time"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// BaseDelayScale multiplies every rule's BaseDelay and MaxDelay. Tests set it
// to 0 to retry without sleeping.
var BaseDelayScale = 1.0

// Policy maps an error kind to its retry rule.
type Policy map[types.Kind]types.RetryRule

// Attempts returns the attempt budget for kind (1 when not listed).
func (p Policy) Attempts(kind types.Kind) int {
	if rule, ok := p[kind]; ok && rule.MaxAttempts > 0 {
		return rule.MaxAttempts
	}
	return 1
}

// Delay returns the wait before attempt n+1 of kind, n >= 1: BaseDelay
// doubled per earlier attempt and capped at MaxDelay.
func (p Policy) Delay(kind types.Kind, n int) time.Duration {
	rule := p[kind]
	d := time.Duration(float64(rule.BaseDelay) * BaseDelayScale)
	limit := time.Duration(float64(rule.MaxDelay) * BaseDelayScale)
	for i := 1; i < n && d > 0; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			break
		}
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// Do calls fn until it succeeds, its error's kind runs out of attempts, or
// ctx is done. Attempts are counted per kind: a step that fails once with a
// fetch error and then with a parse error has used one attempt of each.
// It returns the total number of calls and the last error.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) (int, error) {
	used := make(map[types.Kind]int)
	calls := 0
	for {
		if err := ctx.Err(); err != nil {
			return calls, err
		}
		calls++
		err := fn(ctx)
		if err == nil {
			return calls, nil
		}
		if ctx.Err() != nil {
			return calls, err
		}

		kind := types.KindOf(err)
		used[kind]++
		if used[kind] >= policy.Attempts(kind) {
			return calls, err
		}

		wait := policy.Delay(kind, used[kind])
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return calls, err
		case <-timer.C:
		}
	}
}
