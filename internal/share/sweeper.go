package share

import (
	"context"
	"time"

	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/metrics"
)

const DefaultSweepInterval = time.Hour

// Sweeper periodically removes tokens that expired longer than the
// manager's retention ago, bounding growth of the token maps.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
}

func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{manager: m, interval: interval, stopCh: make(chan struct{})}
}

// Run collects once immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.Collect(ctx); err != nil {
		logger.L().Warn("initial share token sweep failed", logger.Err(err))
	}
	ticker := s.manager.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Collect(ctx); err != nil {
				logger.L().Error("share token sweep failed", logger.Err(err))
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// Collect removes stale tokens and returns how many were dropped.
func (s *Sweeper) Collect(ctx context.Context) (int, error) {
	m := s.manager
	cutoff := m.clock.Now().Add(-(m.ttl + m.retention))
	entries, err := m.repo.TokensCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	byDoc := make(map[string][]string)
	for _, e := range entries {
		byDoc[e.DocumentID] = append(byDoc[e.DocumentID], e.Token)
	}

	removed := 0
	for docID, tokens := range byDoc {
		if err := m.repo.RemoveShareTokens(ctx, docID, tokens); err != nil {
			logger.L().Warn("failed to remove stale share tokens",
				logger.String("document_id", docID),
				logger.Err(err))
			continue
		}
		for _, t := range tokens {
			m.cacheRemove(t)
		}
		removed += len(tokens)
	}

	if removed > 0 {
		metrics.ShareTokensSwept.Add(float64(removed))
		logger.L().Info("share token sweep completed",
			logger.Int("tokens_removed", removed),
			logger.Int("documents", len(byDoc)))
	} else {
		logger.Debug("no share tokens to sweep")
	}
	return removed, nil
}
