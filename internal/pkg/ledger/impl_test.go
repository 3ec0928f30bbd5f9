package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/program"
)

type fakeRPC struct {
	mu sync.Mutex

	blockhashErr error
	sendErr      error
	statuses     []*rpc.SignatureStatusesResult
	accounts     map[solana.PublicKey][]byte

	sent     []*solana.Transaction
	sentOpts []rpc.TransactionOpts
}

func (f *fakeRPC) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}

	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}},
	}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(
	_ context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, tx)
	f.sentOpts = append(f.sentOpts, opts)

	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}

	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(
	_ context.Context,
	_ bool,
	_ ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var next *rpc.SignatureStatusesResult
	if len(f.statuses) > 0 {
		next = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}

	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{next}}, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(
	_ context.Context,
	account solana.PublicKey,
	_ *rpc.GetAccountInfoOpts,
) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}

	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)},
	}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(
	_ context.Context,
	_ solana.PublicKey,
	_ rpc.CommitmentType,
) (*rpc.GetTokenAccountBalanceResult, error) {
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: "1500"}}, nil
}

type memoryRecorder struct {
	mu          sync.Mutex
	submissions []ledger.Submission
}

func (r *memoryRecorder) Record(_ context.Context, submission ledger.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.submissions = append(r.submissions, submission)

	return nil
}

func confirmed(status rpc.ConfirmationStatusType) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{ConfirmationStatus: status}
}

func newSigner(t *testing.T) solana.PrivateKey {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	return key
}

func finishInstruction(signer solana.PublicKey) *program.Instruction {
	return program.NewFinishInstruction(program.DefaultProgramID, program.FinishAccounts{Winner: signer})
}

func newClient(r ledger.RPC, recorder ledger.Recorder) *ledger.Client {
	return ledger.NewClient(r, ledger.Options{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Recorder:       recorder,
	})
}

func TestSubmitWaitsForCommitment(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{
		nil,
		confirmed(rpc.ConfirmationStatusProcessed),
		confirmed(rpc.ConfirmationStatusConfirmed),
	}}
	recorder := &memoryRecorder{}
	signer := newSigner(t)

	sig, err := newClient(fake, recorder).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{},
	)
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	assert.Equal(t, fake.sent[0].Signatures[0], sig)
	require.NoError(t, fake.sent[0].VerifySignatures())
	assert.False(t, fake.sentOpts[0].SkipPreflight)

	require.Len(t, recorder.submissions, 2)
	assert.Equal(t, ledger.StatusPending, recorder.submissions[0].Status)
	assert.Equal(t, ledger.StatusConfirmed, recorder.submissions[1].Status)
	assert.Equal(t, recorder.submissions[0].ID, recorder.submissions[1].ID)
	assert.Equal(t, program.InstructionFinishBattle, recorder.submissions[1].Instruction)
}

func TestSubmitPassesSkipPreflight(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{confirmed(rpc.ConfirmationStatusFinalized)}}
	signer := newSigner(t)

	_, err := newClient(fake, nil).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{SkipPreflight: true},
	)
	require.NoError(t, err)

	require.Len(t, fake.sentOpts, 1)
	assert.True(t, fake.sentOpts[0].SkipPreflight)
}

func TestSubmitPreflightRejection(t *testing.T) {
	t.Parallel()

	rpcErr := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1770",
		Data: map[string]any{
			"err": map[string]any{
				"InstructionError": []any{0.0, map[string]any{"Custom": 6000.0}},
			},
			"logs": []any{"Program log: AnchorError occurred. Error Code: InvalidStatistics."},
		},
	}
	fake := &fakeRPC{sendErr: rpcErr}
	recorder := &memoryRecorder{}
	signer := newSigner(t)

	_, err := newClient(fake, recorder).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{},
	)
	require.ErrorIs(t, err, ledger.ErrRejected)
	assert.NotErrorIs(t, err, ledger.ErrTransport)

	var verbatim *jsonrpc.RPCError
	require.ErrorAs(t, err, &verbatim)
	assert.Same(t, rpcErr, verbatim)

	code, ok := ledger.ProgramCode(err)
	require.True(t, ok)
	assert.Equal(t, program.ErrInvalidStatistics.Code, code)

	var submitErr *ledger.SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, program.InstructionFinishBattle, submitErr.Instruction)
	assert.Len(t, submitErr.Logs, 1)

	require.Len(t, recorder.submissions, 1)
	assert.Equal(t, ledger.StatusRejected, recorder.submissions[0].Status)
}

func TestSubmitTransportFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{blockhashErr: errors.New("dial tcp: connection refused")}
	recorder := &memoryRecorder{}
	signer := newSigner(t)

	sig, err := newClient(fake, recorder).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{},
	)
	require.ErrorIs(t, err, ledger.ErrTransport)
	assert.True(t, sig.IsZero())
	assert.Empty(t, fake.sent)

	_, ok := ledger.ProgramCode(err)
	assert.False(t, ok)

	require.Len(t, recorder.submissions, 1)
	assert.Equal(t, ledger.StatusTransport, recorder.submissions[0].Status)
}

func TestSubmitSendFailureKeepsSignature(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{
		sendErr:  context.DeadlineExceeded,
		statuses: []*rpc.SignatureStatusesResult{confirmed(rpc.ConfirmationStatusConfirmed)},
	}
	recorder := &memoryRecorder{}
	signer := newSigner(t)
	client := newClient(fake, recorder)

	sig, err := client.Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{},
	)
	require.ErrorIs(t, err, ledger.ErrUnknownOutcome)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ledger.ErrTransport)
	assert.NotErrorIs(t, err, ledger.ErrRejected)

	require.Len(t, fake.sent, 1)
	assert.Equal(t, fake.sent[0].Signatures[0], sig)

	var submitErr *ledger.SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, sig, submitErr.Signature)

	require.Len(t, recorder.submissions, 1)
	assert.Equal(t, ledger.StatusAmbiguous, recorder.submissions[0].Status)
	assert.Equal(t, sig, recorder.submissions[0].Signature)

	status, err := client.Status(t.Context(), recorder.submissions[0].Signature)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, status)
}

func TestSubmitExecutionFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		Err: map[string]any{
			"InstructionError": []any{0.0, map[string]any{"Custom": 6004.0}},
		},
	}}}
	signer := newSigner(t)

	sig, err := newClient(fake, nil).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{SkipPreflight: true},
	)
	require.ErrorIs(t, err, ledger.ErrRejected)
	assert.NotEqual(t, solana.Signature{}, sig)

	code, ok := ledger.ProgramCode(err)
	require.True(t, ok)
	assert.Equal(t, program.ErrInsufficientActionPoints.Code, code)
}

func TestSubmitExecutionFailureCodeOutOfRange(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		Err: map[string]any{
			"InstructionError": []any{0, map[string]any{"Custom": 1 << 33}},
		},
	}}}
	signer := newSigner(t)

	_, err := newClient(fake, nil).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{SkipPreflight: true},
	)
	require.ErrorIs(t, err, ledger.ErrRejected)

	_, ok := ledger.ProgramCode(err)
	assert.False(t, ok)
}

func TestSubmitFinalityTimeoutIsAmbiguous(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{confirmed(rpc.ConfirmationStatusProcessed)}}
	recorder := &memoryRecorder{}
	signer := newSigner(t)

	sig, err := ledger.NewClient(fake, ledger.Options{
		Commitment:     rpc.CommitmentFinalized,
		ConfirmTimeout: 20 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Recorder:       recorder,
	}).Submit(
		t.Context(),
		finishInstruction(signer.PublicKey()),
		[]solana.PrivateKey{signer},
		ledger.SubmitOptions{},
	)
	require.ErrorIs(t, err, ledger.ErrFinalityTimeout)
	assert.NotErrorIs(t, err, ledger.ErrRejected)
	assert.Equal(t, fake.sent[0].Signatures[0], sig)

	last := recorder.submissions[len(recorder.submissions)-1]
	assert.Equal(t, ledger.StatusAmbiguous, last.Status)
	assert.Equal(t, sig, last.Signature)
}

func TestSubmitWithoutSigners(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{}

	_, err := newClient(fake, nil).Submit(
		t.Context(),
		finishInstruction(solana.PublicKey{}),
		nil,
		ledger.SubmitOptions{},
	)
	require.ErrorIs(t, err, ledger.ErrLocal)
	assert.Empty(t, fake.sent)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{
		nil,
		confirmed(rpc.ConfirmationStatusProcessed),
		confirmed(rpc.ConfirmationStatusFinalized),
		{Err: map[string]any{"InstructionError": []any{0.0, "InvalidAccountData"}}},
	}}
	client := newClient(fake, nil)

	for _, expected := range []ledger.SubmissionStatus{
		ledger.StatusPending,
		ledger.StatusPending,
		ledger.StatusConfirmed,
		ledger.StatusRejected,
	} {
		status, err := client.Status(t.Context(), solana.Signature{9})
		require.NoError(t, err)
		assert.Equal(t, expected, status)
	}
}

func TestFetchAccount(t *testing.T) {
	t.Parallel()

	known := solana.PublicKey{1}
	fake := &fakeRPC{accounts: map[solana.PublicKey][]byte{known: {0xde, 0xad}}}
	client := newClient(fake, nil)

	data, err := client.FetchAccount(t.Context(), known)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, data)

	_, err = client.FetchAccount(t.Context(), solana.PublicKey{2})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestTokenBalance(t *testing.T) {
	t.Parallel()

	balance, err := newClient(&fakeRPC{}, nil).TokenBalance(t.Context(), solana.PublicKey{3})
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), balance)
}
