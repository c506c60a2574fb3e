// Package collector enumerates every row of an infinite-scroll table by
// loading more content until the set of seen row keys stops growing.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// KeySet is a set of normalized row keys.
type KeySet map[string]struct{}

// Add inserts key after normalization and reports whether it was new.
// Blank keys are ignored.
func (s KeySet) Add(key string) bool {
	key, ok := NormalizeKey(key)
	if !ok {
		return false
	}
	if _, seen := s[key]; seen {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Has reports whether the normalized key is present.
func (s KeySet) Has(key string) bool {
	key, ok := NormalizeKey(key)
	if !ok {
		return false
	}
	_, seen := s[key]
	return seen
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeKey trims surrounding whitespace and collapses inner runs.
// It reports false for keys that are empty after trimming.
func NormalizeKey(raw string) (string, bool) {
	key := strings.Join(strings.Fields(raw), " ")
	return key, key != ""
}

// ExtractFunc returns the identity-column text of every row currently rendered.
type ExtractFunc func(ctx context.Context) ([]string, error)

// LoadMoreFunc triggers one more page of content, typically by scrolling.
type LoadMoreFunc func(ctx context.Context) error

// Options tunes a collection run.
type Options struct {
	// Settle is waited after each load trigger.
	Settle time.Duration
	// MaxCycles bounds the loop; zero means unbounded.
	MaxCycles int
	Clock     clock.Clock
}

// Result is the outcome of CollectAll.
type Result struct {
	Keys KeySet
	// Cycles counts extract/load rounds, including the final stable one.
	Cycles int
	// Sizes is the set size observed after each extract.
	Sizes []int
}

// CollectAll accumulates keys from extract, calling loadMore and waiting
// Settle between rounds, until a round adds nothing.
func CollectAll(ctx context.Context, extract ExtractFunc, loadMore LoadMoreFunc, opts Options) (Result, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := obs.From(ctx).With("pkg", "collector")

	keys := KeySet{}
	res := Result{Keys: keys}
	previous := -1

	for {
		if opts.MaxCycles > 0 && res.Cycles >= opts.MaxCycles {
			return res, errs.New(errs.Timeout, fmt.Sprintf("rows still loading after %d cycles (%d keys)", res.Cycles, len(keys)))
		}
		if err := ctx.Err(); err != nil {
			return res, errs.Wrap(errs.Timeout, "row collection interrupted", err)
		}

		rows, err := extract(ctx)
		if err != nil {
			return res, fmt.Errorf("extract rows: %w", err)
		}
		for _, raw := range rows {
			keys.Add(raw)
		}
		res.Cycles++
		res.Sizes = append(res.Sizes, len(keys))

		if err := loadMore(ctx); err != nil {
			return res, fmt.Errorf("load more rows: %w", err)
		}
		if err := clk.Sleep(ctx, opts.Settle); err != nil {
			return res, errs.Wrap(errs.Timeout, "row settle interrupted", err)
		}

		logger.Debug("collect_cycle", "cycle", res.Cycles, "rendered", len(rows), "keys", len(keys))
		if len(keys) == previous {
			return res, nil
		}
		previous = len(keys)
	}
}
