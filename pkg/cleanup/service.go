// Package cleanup enforces ledger retention.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/config"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
)

// Service periodically enforces retention policies:
//   - Deletes commands (with their outcomes) older than CommandTTL
//   - Deletes transitions older than TransitionTTL
//
// All operations are idempotent.
type Service struct {
	config *config.RetentionConfig
	pruner ledger.Pruner
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. A nil cfg uses the defaults.
func NewService(cfg *config.RetentionConfig, pruner ledger.Pruner) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	return &Service{
		config: cfg,
		pruner: pruner,
		now:    time.Now,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"command_ttl", s.config.CommandTTL,
		"transition_ttl", s.config.TransitionTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	now := s.now()
	s.pruneCommands(ctx, now.Add(-s.config.CommandTTL))
	s.pruneTransitions(ctx, now.Add(-s.config.TransitionTTL))
}

func (s *Service) pruneCommands(ctx context.Context, before time.Time) {
	count, err := s.pruner.PruneCommands(ctx, before)
	if err != nil {
		slog.Error("Retention: command cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old commands", "count", count)
	}
}

func (s *Service) pruneTransitions(ctx context.Context, before time.Time) {
	count, err := s.pruner.PruneTransitions(ctx, before)
	if err != nil {
		slog.Error("Retention: transition cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old transitions", "count", count)
	}
}
