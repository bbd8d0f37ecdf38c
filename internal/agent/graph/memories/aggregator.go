package memories

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

const (
	DefaultEpisodeLimit = 5
	DefaultPatternLimit = 10
	DefaultTimeout      = 5 * time.Second
)

// Aggregator fetches a user's long-term memory for the clarification prompt.
type Aggregator struct {
	provider     model.MemoryProvider
	timeout      time.Duration
	episodeLimit int
	patternLimit int
}

// NewAggregator returns an aggregator over provider. A nil provider yields empty contexts.
func NewAggregator(provider model.MemoryProvider, timeout time.Duration, episodeLimit, patternLimit int) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if episodeLimit <= 0 {
		episodeLimit = DefaultEpisodeLimit
	}
	if patternLimit <= 0 {
		patternLimit = DefaultPatternLimit
	}
	return &Aggregator{
		provider:     provider,
		timeout:      timeout,
		episodeLimit: episodeLimit,
		patternLimit: patternLimit,
	}
}

// UserContext runs the profile, episode and pattern lookups concurrently. Each
// lookup is bounded by its own timeout; a failed lookup contributes its zero
// value and never cancels the others.
func (a *Aggregator) UserContext(ctx context.Context, threadID, userID string) model.UserContext {
	out := model.UserContext{Episodes: []model.QueryEpisode{}, Patterns: []model.SQLPattern{}}
	if a == nil || a.provider == nil {
		return out
	}

	var (
		profile  *model.UserProfile
		episodes []model.QueryEpisode
		patterns []model.SQLPattern
	)

	var eg errgroup.Group
	eg.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		p, err := a.provider.Profile(ctx, userID)
		if err != nil {
			a.warn(err, threadID, userID, model.NamespaceProfile)
			return nil
		}
		profile = p
		return nil
	})
	eg.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		eps, err := a.provider.Episodes(ctx, userID, a.episodeLimit)
		if err != nil {
			a.warn(err, threadID, userID, model.NamespaceEpisodic)
			return nil
		}
		episodes = eps
		return nil
	})
	eg.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		pts, err := a.provider.Patterns(ctx, a.patternLimit)
		if err != nil {
			a.warn(err, threadID, userID, model.NamespacePatterns)
			return nil
		}
		patterns = pts
		return nil
	})
	_ = eg.Wait()

	out.Profile = profile
	if episodes != nil {
		out.Episodes = episodes
	}
	if patterns != nil {
		out.Patterns = patterns
	}
	return out
}

func (a *Aggregator) warn(err error, threadID, userID, namespace string) {
	logx.Warn().Err(err).
		Str("thread_id", threadID).
		Str("user_id", userID).
		Str("namespace", namespace).
		Msg("memory lookup failed; continuing without it")
}
