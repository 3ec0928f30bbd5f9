package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/do/v2"
	"github.com/vreid/royale/internal/pkg/common"
	"github.com/vreid/royale/internal/pkg/ledger"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

var (
	ErrSubmissionsBucketNotFound = errors.New("submissions bucket doesn't exist")
	ErrSubmissionNotFound        = errors.New("submission not found")
)

// StatusChecker re-queries the outcome of a sent transaction.
type StatusChecker interface {
	Status(ctx context.Context, sig solana.Signature) (ledger.SubmissionStatus, error)
}

// JournalService keeps every submission the ledger client reports, keyed by
// submission ID. IDs are UUIDv7, so key order is submission order.
type JournalService struct {
	DatabaseService *common.DatabaseService
}

func NewJournalService(i do.Injector) (*JournalService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return &JournalService{
		DatabaseService: databaseService,
	}, nil
}

// Record stores submission, replacing any earlier state under the same ID.
func (s *JournalService) Record(_ context.Context, submission ledger.Submission) error {
	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		submissions := tx.Bucket([]byte(common.LedgerSubmissionsBucket))
		if submissions == nil {
			return ErrSubmissionsBucketNotFound
		}

		err := submissions.Put([]byte(submission.ID), data)
		if err != nil {
			return fmt.Errorf("failed to put submission: %w", err)
		}

		return nil
	})
}

func (s *JournalService) Get(_ context.Context, id string) (ledger.Submission, error) {
	var submission ledger.Submission

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		submissions := tx.Bucket([]byte(common.LedgerSubmissionsBucket))
		if submissions == nil {
			return ErrSubmissionsBucketNotFound
		}

		data := submissions.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
		}

		return json.Unmarshal(data, &submission)
	})
	if err != nil {
		return submission, fmt.Errorf("failed to read submission: %w", err)
	}

	return submission, nil
}

// List returns all submissions, oldest first.
func (s *JournalService) List(_ context.Context) ([]ledger.Submission, error) {
	result := []ledger.Submission{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		submissions := tx.Bucket([]byte(common.LedgerSubmissionsBucket))
		if submissions == nil {
			return ErrSubmissionsBucketNotFound
		}

		return submissions.ForEach(func(_, data []byte) error {
			var submission ledger.Submission

			err := json.Unmarshal(data, &submission)
			if err != nil {
				return fmt.Errorf("failed to unmarshal submission: %w", err)
			}

			result = append(result, submission)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return result, nil
}

// Pending returns the submissions whose outcome is still unknown: sent but
// never confirmed or rejected.
func (s *JournalService) Pending(ctx context.Context) ([]ledger.Submission, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(submission ledger.Submission) bool {
		if submission.Signature == (solana.Signature{}) {
			return true
		}

		return submission.Status != ledger.StatusPending && submission.Status != ledger.StatusAmbiguous
	}), nil
}

// Reconcile re-queries every pending submission and stores the outcomes that
// became known. It returns how many submissions were resolved.
func (s *JournalService) Reconcile(ctx context.Context, checker StatusChecker, logger *zap.Logger) (int, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}

	resolved := make([]bool, len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)

	for idx, submission := range pending {
		g.Go(func() error {
			status, err := checker.Status(ctx, submission.Signature)
			if err != nil {
				logger.Warn("failed to query submission status",
					zap.String("id", submission.ID),
					zap.Stringer("signature", submission.Signature),
					zap.Error(err),
				)

				return nil
			}

			if status == ledger.StatusPending || status == submission.Status {
				return nil
			}

			submission.Status = status

			err = s.Record(ctx, submission)
			if err != nil {
				return fmt.Errorf("failed to update submission %s: %w", submission.ID, err)
			}

			resolved[idx] = true

			logger.Info("submission resolved",
				zap.String("id", submission.ID),
				zap.String("instruction", submission.Instruction),
				zap.String("status", string(status)),
			)

			return nil
		})
	}

	err = g.Wait()

	count := 0

	for _, ok := range resolved {
		if ok {
			count++
		}
	}

	//nolint:wrapcheck
	return count, err
}
