package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/google/uuid"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultCommitment     = rpc.CommitmentConfirmed
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

// JSON-RPC error codes that mean the node looked at the transaction and refused it.
var rejectionCodes = map[int]bool{
	-32002: true, // preflight simulation failed
	-32003: true, // signature verification failed
	-32602: true, // invalid params
}

// RPC is the subset of *rpc.Client the ledger client uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

type Options struct {
	Commitment        rpc.CommitmentType
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	RequestsPerSecond float64
	Logger            *zap.Logger
	Recorder          Recorder
}

// Client submits instructions and reads accounts. It keeps no per-caller state
// and may be shared between participants.
type Client struct {
	rpc      RPC
	limiter  *rate.Limiter
	logger   *zap.Logger
	recorder Recorder

	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

func NewClient(r RPC, opts Options) *Client {
	c := &Client{
		rpc:            r,
		limiter:        rate.NewLimiter(rate.Inf, 1),
		logger:         opts.Logger,
		recorder:       opts.Recorder,
		commitment:     opts.Commitment,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
	}

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	if c.commitment == "" {
		c.commitment = DefaultCommitment
	}

	if c.confirmTimeout <= 0 {
		c.confirmTimeout = DefaultConfirmTimeout
	}

	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}

	return c
}

func NewLedgerService(i do.Injector) (*Client, error) {
	rpcURL := do.MustInvokeNamed[string](i, "rpc-url")
	commitment := do.MustInvokeNamed[string](i, "commitment")
	requestsPerSecond := do.MustInvokeNamed[float64](i, "rps")
	confirmTimeout := do.MustInvokeNamed[time.Duration](i, "confirm-timeout")
	logger := do.MustInvoke[*zap.Logger](i)

	// The journal is only provided to commands that write.
	recorder, err := do.InvokeAs[Recorder](i)
	if err != nil {
		recorder = nil
	}

	return NewClient(rpc.New(rpcURL), Options{
		Commitment:        rpc.CommitmentType(commitment),
		ConfirmTimeout:    confirmTimeout,
		RequestsPerSecond: requestsPerSecond,
		Logger:            logger.Named("ledger"),
		Recorder:          recorder,
	}), nil
}

func (c *Client) wait(ctx context.Context) error {
	//nolint:wrapcheck
	return c.limiter.Wait(ctx)
}

// Submit signs ix with signers, broadcasts it and blocks until the requested
// commitment is observed or a terminal failure is known. The first signer pays.
//
//nolint:funlen
func (c *Client) Submit(
	ctx context.Context,
	ix Instruction,
	signers []solana.PrivateKey,
	opts SubmitOptions,
) (solana.Signature, error) {
	name := ix.Name()

	commitment := opts.Commitment
	if commitment == "" {
		commitment = c.commitment
	}

	logger := c.logger.With(
		zap.String("instruction", name),
		zap.Bool("skip_preflight", opts.SkipPreflight),
	)

	submission := Submission{
		ID:          newSubmissionID(),
		Instruction: name,
		Timestamp:   time.Now(),
	}

	tx, err := c.buildTransaction(ctx, ix, signers)
	if err != nil {
		return c.fail(ctx, logger, submission, err)
	}

	err = c.wait(ctx)
	if err != nil {
		return c.fail(ctx, logger, submission, &SubmitError{Instruction: name, Kind: ErrTransport, Cause: err})
	}

	sig := tx.Signatures[0]
	submission.Signature = sig

	sent, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: commitment,
	})
	if err != nil {
		return c.fail(ctx, logger, submission, classifySendError(name, sig, err))
	}

	if !sent.IsZero() && !sent.Equals(sig) {
		logger.Warn("node returned an unexpected signature", zap.Stringer("returned", sent), zap.Stringer("signed", sig))
	}

	submission.Status = StatusPending
	c.record(ctx, logger, submission)

	logger = logger.With(zap.Stringer("signature", sig))
	logger.Debug("transaction sent")

	started := time.Now()

	err = c.awaitCommitment(ctx, name, sig, commitment)
	if err != nil {
		return c.fail(ctx, logger, submission, err)
	}

	confirmationDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	submissionsTotal.WithLabelValues(name, string(StatusConfirmed)).Inc()

	submission.Status = StatusConfirmed
	c.record(ctx, logger, submission)

	logger.Info("transaction confirmed", zap.String("commitment", string(commitment)))

	return sig, nil
}

func (c *Client) buildTransaction(
	ctx context.Context,
	ix Instruction,
	signers []solana.PrivateKey,
) (*solana.Transaction, error) {
	name := ix.Name()

	if len(signers) == 0 {
		return nil, &SubmitError{Instruction: name, Kind: ErrLocal, Cause: errors.New("no signers")}
	}

	err := c.wait(ctx)
	if err != nil {
		return nil, &SubmitError{Instruction: name, Kind: ErrTransport, Cause: err}
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, &SubmitError{
			Instruction: name,
			Kind:        ErrTransport,
			Cause:       fmt.Errorf("failed to get latest blockhash: %w", err),
		}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(signers[0].PublicKey()),
	)
	if err != nil {
		return nil, &SubmitError{Instruction: name, Kind: ErrLocal, Cause: fmt.Errorf("failed to build transaction: %w", err)}
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for idx := range signers {
			if signers[idx].PublicKey().Equals(key) {
				return &signers[idx]
			}
		}

		return nil
	})
	if err != nil {
		return nil, &SubmitError{Instruction: name, Kind: ErrLocal, Cause: fmt.Errorf("failed to sign transaction: %w", err)}
	}

	return tx, nil
}

func (c *Client) awaitCommitment(
	ctx context.Context,
	name string,
	sig solana.Signature,
	commitment rpc.CommitmentType,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error

	for {
		status, err := c.signatureStatus(ctx, sig)

		switch {
		case err != nil:
			lastErr = err
		case status == nil:
		case status.Err != nil:
			code, hasCode := customCode(status.Err)

			submitErr := &SubmitError{
				Instruction: name,
				Signature:   sig,
				Kind:        ErrRejected,
				Cause:       fmt.Errorf("transaction failed: %v", status.Err),
			}
			if hasCode {
				submitErr.Code = &code
			}

			return submitErr
		case reached(status.ConfirmationStatus, commitment):
			return nil
		}

		select {
		case <-ctx.Done():
			cause := ctx.Err()
			if lastErr != nil {
				cause = fmt.Errorf("%w (last poll error: %w)", cause, lastErr)
			}

			return &SubmitError{Instruction: name, Signature: sig, Kind: ErrFinalityTimeout, Cause: cause}
		case <-ticker.C:
		}
	}
}

func (c *Client) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}

	return out.Value[0], nil
}

// Status re-queries the ledger for a previously sent signature. A signature the
// ledger does not know about is still pending from the caller's point of view.
func (c *Client) Status(ctx context.Context, sig solana.Signature) (SubmissionStatus, error) {
	status, err := c.signatureStatus(ctx, sig)
	if err != nil {
		return StatusAmbiguous, err
	}

	switch {
	case status == nil:
		return StatusPending, nil
	case status.Err != nil:
		return StatusRejected, nil
	case reached(status.ConfirmationStatus, c.commitment):
		return StatusConfirmed, nil
	default:
		return StatusPending, nil
	}
}

// FetchAccount returns the raw account data, or ErrAccountNotFound.
func (c *Client) FetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	err := c.wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	out, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		accountFetchesTotal.WithLabelValues("not_found").Inc()

		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	if err != nil {
		accountFetchesTotal.WithLabelValues("error").Inc()

		return nil, fmt.Errorf("%w: failed to get account %s: %w", ErrTransport, addr, err)
	}

	accountFetchesTotal.WithLabelValues("found").Inc()

	return out.Value.Data.GetBinary(), nil
}

// TokenBalance returns the raw amount held by a token account.
func (c *Client) TokenBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	err := c.wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	out, err := c.rpc.GetTokenAccountBalance(ctx, addr, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance of %s: %w", addr, err)
	}

	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", out.Value.Amount, err)
	}

	return amount, nil
}

func (c *Client) fail(ctx context.Context, logger *zap.Logger, submission Submission, err error) (solana.Signature, error) {
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		submitErr = &SubmitError{Instruction: submission.Instruction, Kind: ErrLocal, Cause: err}
	}

	submission.Error = submitErr.Error()

	switch {
	case errors.Is(submitErr.Kind, ErrRejected):
		submission.Status = StatusRejected
	case errors.Is(submitErr.Kind, ErrFinalityTimeout), errors.Is(submitErr.Kind, ErrUnknownOutcome):
		submission.Status = StatusAmbiguous
	default:
		submission.Status = StatusTransport
	}

	submissionsTotal.WithLabelValues(submission.Instruction, string(submission.Status)).Inc()

	logger.Warn("submission failed",
		zap.String("status", string(submission.Status)),
		zap.Error(submitErr),
		zap.Strings("logs", submitErr.Logs),
	)

	if !errors.Is(submitErr.Kind, ErrLocal) {
		c.record(ctx, logger, submission)
	}

	return submitErr.Signature, submitErr
}

func (c *Client) record(ctx context.Context, logger *zap.Logger, submission Submission) {
	if c.recorder == nil {
		return
	}

	err := c.recorder.Record(context.WithoutCancel(ctx), submission)
	if err != nil {
		logger.Error("failed to record submission", zap.String("id", submission.ID), zap.Error(err))
	}
}

func newSubmissionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// classifySendError separates a node verdict from a send whose fate is unknown.
// The transaction is already signed, so sig is its identity either way.
func classifySendError(name string, sig solana.Signature, err error) *SubmitError {
	submitErr := &SubmitError{Instruction: name, Signature: sig, Kind: ErrUnknownOutcome, Cause: err}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || !rejectionCodes[rpcErr.Code] {
		return submitErr
	}

	submitErr.Kind = ErrRejected

	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return submitErr
	}

	if code, ok := customCode(data["err"]); ok {
		submitErr.Code = &code
	}

	if logs, ok := data["logs"].([]any); ok {
		for _, line := range logs {
			if s, ok := line.(string); ok {
				submitErr.Logs = append(submitErr.Logs, s)
			}
		}
	}

	return submitErr
}

// customCode digs the program error out of an InstructionError, e.g.
// {"InstructionError":[0,{"Custom":6000}]}.
func customCode(v any) (uint32, bool) {
	switch value := v.(type) {
	case map[string]any:
		if raw, ok := value["Custom"]; ok {
			return toUint32(raw)
		}

		for _, nested := range value {
			if code, ok := customCode(nested); ok {
				return code, true
			}
		}
	case []any:
		for _, nested := range value {
			if code, ok := customCode(nested); ok {
				return code, true
			}
		}
	}

	return 0, false
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n > float64(^uint32(0)) {
			return 0, false
		}

		return uint32(n), true
	case int:
		if n < 0 || uint64(n) > math.MaxUint32 {
			return 0, false
		}

		return uint32(n), true
	case uint32:
		return n, true
	default:
		s := fmt.Sprint(n)

		parsed, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, false
		}

		return uint32(parsed), true
	}
}

var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

var requiredRank = map[rpc.CommitmentType]int{
	rpc.CommitmentProcessed: 1,
	rpc.CommitmentConfirmed: 2,
	rpc.CommitmentFinalized: 3,
}

func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	need, ok := requiredRank[commitment]
	if !ok {
		need = requiredRank[DefaultCommitment]
	}

	return commitmentRank[status] >= need
}
