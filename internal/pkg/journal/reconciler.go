package journal

import (
	"context"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/royale/internal/pkg/ledger"
	"go.uber.org/zap"
)

// ReconcilerService periodically resolves pending submissions while the server
// runs.
type ReconcilerService struct {
	JournalService *JournalService
	Checker        StatusChecker
	Logger         *zap.Logger

	Interval time.Duration
}

func NewReconcilerService(i do.Injector) (*ReconcilerService, error) {
	journalService := do.MustInvoke[*JournalService](i)
	ledgerClient := do.MustInvoke[*ledger.Client](i)
	logger := do.MustInvoke[*zap.Logger](i)
	interval := do.MustInvokeNamed[time.Duration](i, "reconcile-interval")

	return &ReconcilerService{
		JournalService: journalService,
		Checker:        ledgerClient,
		Logger:         logger.Named("reconciler"),
		Interval:       interval,
	}, nil
}

func (s *ReconcilerService) Start(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}

	go s.run(ctx)
}

func (s *ReconcilerService) run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resolved, err := s.JournalService.Reconcile(ctx, s.Checker, s.Logger)
		if err != nil {
			s.Logger.Error("reconcile failed", zap.Error(err))

			continue
		}

		if resolved > 0 {
			s.Logger.Info("reconciled submissions", zap.Int("resolved", resolved))
		}
	}
}
