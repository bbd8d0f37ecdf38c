package schemas

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

const (
	DefaultLimit = 2
	// TablesFallback replaces the table listing when the tool cannot provide one.
	TablesFallback = "Unable to retrieve table list"
)

// Resolver gathers the schema context for SQL generation.
type Resolver struct {
	searcher model.SchemaSearcher
	toolbox  model.Toolbox
	timeout  time.Duration
}

// NewResolver returns a resolver. Either dependency may be nil.
func NewResolver(searcher model.SchemaSearcher, toolbox model.Toolbox, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{searcher: searcher, toolbox: toolbox, timeout: timeout}
}

// Resolve returns at most limit normalized schema fragments relevant to the
// question and the normalized table listing. Both lookups run concurrently and
// fail independently: a failed search yields no fragments, a failed listing
// yields TablesFallback.
func (r *Resolver) Resolve(ctx context.Context, question string, limit int) ([]string, string) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		fragments []string
		tables    = TablesFallback
	)

	var eg errgroup.Group
	if r.searcher != nil {
		eg.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			found, err := r.searcher.SearchSchema(ctx, question, limit)
			if err != nil {
				logx.Warn().Err(err).Msg("schema search failed; generating without schema fragments")
				return nil
			}
			for _, f := range found {
				if len(fragments) == limit {
					break
				}
				if f = Normalize(f); f != "" {
					fragments = append(fragments, f)
				}
			}
			return nil
		})
	}
	if r.toolbox != nil {
		eg.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			listing, err := r.toolbox.ListTables(ctx)
			if err != nil {
				logx.Warn().Err(err).Msg("table listing unavailable")
				return nil
			}
			if listing = Normalize(listing); listing != "" {
				tables = listing
			}
			return nil
		})
	}
	_ = eg.Wait()

	return fragments, tables
}
