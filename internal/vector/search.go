package vector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// Searcher answers threshold/limit bounded similarity queries.
type Searcher interface {
	QueryItems(ctx context.Context, query []float32, threshold float64, limit int) ([]models.QueryResult, error)
}

// Search queries every searcher concurrently, merges the hits and re-sorts them by score.
//
// perScopeLimit caps each searcher before the merge and globalLimit truncates the merged
// list (zero or less means no cap). A scope with many strong hits can push out another
// scope's best results when perScopeLimit is smaller than globalLimit requires, so the
// merged list is not an exact global top-K.
func Search(ctx context.Context, searchers []Searcher, query []float32, threshold float64, perScopeLimit, globalLimit int) ([]models.QueryResult, error) {
	perScope := make([][]models.QueryResult, len(searchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range searchers {
		g.Go(func() error {
			results, err := s.QueryItems(gctx, query, threshold, perScopeLimit)
			if err != nil {
				return err
			}
			perScope[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, results := range perScope {
		total += len(results)
	}
	merged := make([]models.QueryResult, 0, total)
	for _, results := range perScope {
		merged = append(merged, results...)
	}
	sortByScore(merged)
	if globalLimit > 0 && len(merged) > globalLimit {
		merged = merged[:globalLimit]
	}
	return merged, nil
}
