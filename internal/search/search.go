package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"wharf/internal/config"
	"wharf/internal/hoster"
	"wharf/internal/logging"
	"wharf/internal/normalize"
	"wharf/internal/score"
	"wharf/internal/services"
)

// Backend is the remote lookup capability the orchestrator fans out to.
// The production implementation is the hoster client; tests swap in
// fakes.
type Backend interface {
	Search(ctx context.Context, query, category string) ([]hoster.File, error)
}

// Request describes one logical search. Season and Episode narrow the
// results to a structured media search when set.
type Request struct {
	Title    string
	Season   int
	Episode  int
	Category string
	Limit    int
}

// Candidate is one accepted, scored result.
type Candidate struct {
	File       hoster.File
	Normalized normalize.Result
	Score      int
	Tier       int
}

// queryParallelism bounds concurrent backend calls per request.
const queryParallelism = 4

// Orchestrator expands a request into alias queries, fans them out, and
// reduces the merged results to a ranked candidate list.
type Orchestrator struct {
	backend Backend
	cfg     *config.Config
	logger  *slog.Logger
}

// New builds an Orchestrator.
func New(backend Backend, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		backend: backend,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "search"),
	}
}

// Search runs the full pipeline for one request. Recall failures are not
// errors: an alias query that fails or returns nothing simply contributes
// nothing, and a request nobody matched yields an empty slice. The only
// error returned is context cancellation.
func (o *Orchestrator) Search(ctx context.Context, req Request) ([]Candidate, error) {
	matcher := score.NewMatcher(req.Title)
	if matcher.Title() == "" {
		return nil, nil
	}
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	ctx = services.WithStage(ctx, services.StageSearch)
	log := logging.WithContext(ctx, o.logger)

	queries := buildQueries(req)
	if budget := o.cfg.Search.QueryBudget; budget > 0 && len(queries) > budget {
		queries = queries[:budget]
	}

	type hit struct {
		file hoster.File
		tier int
	}
	var (
		mu   sync.Mutex
		hits []hit
	)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, queryParallelism)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}
			files, err := o.backend.Search(gctx, q.Text, req.Category)
			if err != nil {
				log.Warn("alias query failed",
					logging.String("query", q.Text),
					logging.Error(err))
				return nil
			}
			mu.Lock()
			for _, f := range files {
				hits = append(hits, hit{file: f, tier: q.Tier})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]hit, len(hits))
	for _, h := range hits {
		ref := h.file.Reference
		if ref == "" {
			continue
		}
		if existing, ok := merged[ref]; !ok || h.tier < existing.tier {
			merged[ref] = h
		}
	}

	pregate := strings.ReplaceAll(stripTrailingYear(matcher.Title()), " ", "")
	out := make([]Candidate, 0, len(merged))
	for _, h := range merged {
		if pregate != "" && !fuzzy.MatchNormalizedFold(pregate, h.file.Filename) {
			continue
		}
		parsed := normalize.Parse(h.file.Filename)
		if !markerMatches(req, parsed) {
			continue
		}
		eval := matcher.Evaluate(parsed)
		if !eval.Accepted {
			continue
		}
		if min := o.cfg.Search.MinScore; min > 0 && eval.Score < min {
			continue
		}
		out = append(out, Candidate{
			File:       h.file,
			Normalized: parsed,
			Score:      eval.Score,
			Tier:       h.tier,
		})
	}
	rankCandidates(out)

	limit := req.Limit
	if limit <= 0 || (o.cfg.Search.MaxResults > 0 && limit > o.cfg.Search.MaxResults) {
		limit = o.cfg.Search.MaxResults
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	log.Info("search complete",
		logging.Int("queries", len(queries)),
		logging.Int("merged", len(merged)),
		logging.Int("accepted", len(out)))
	return out, nil
}

// markerMatches applies the structured-search filter. An episode search
// requires the exact episode; a season search accepts any upload of that
// season, packs included.
func markerMatches(req Request, cand normalize.Result) bool {
	if req.Season > 0 && cand.Season != req.Season {
		return false
	}
	if req.Episode > 0 && cand.Episode != req.Episode {
		return false
	}
	return true
}

// rankCandidates orders by score, then size, then tier. The reference
// tie-break keeps map iteration from leaking into the output order.
func rankCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.File.SizeBytes != b.File.SizeBytes {
			return a.File.SizeBytes > b.File.SizeBytes
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.File.Reference < b.File.Reference
	})
}
