package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrLocal covers failures before anything reached the network: building or
	// signing the transaction.
	ErrLocal = errors.New("local failure")
	// ErrTransport means the transaction never reached the ledger as far as we can
	// tell. The caller may retry.
	ErrTransport = errors.New("transport failure")
	// ErrRejected means the ledger refused the instruction, either in preflight
	// simulation or at execution.
	ErrRejected = errors.New("instruction rejected")
	// ErrFinalityTimeout means the transaction was sent but finality was not
	// observed in time. The outcome is unknown until state is re-read.
	ErrFinalityTimeout = errors.New("finality not observed")
	// ErrUnknownOutcome means broadcasting a signed transaction failed without a
	// verdict from the node. It may still land, so re-read state before retrying.
	ErrUnknownOutcome = errors.New("send outcome unknown")

	ErrAccountNotFound = errors.New("account not found")
)

// Instruction is a solana instruction with a name for error reporting.
type Instruction interface {
	solana.Instruction

	Name() string
}

type SubmitOptions struct {
	// SkipPreflight bypasses the node's simulation before broadcast. Needed when
	// the outcome depends on state a simulator cannot reproduce.
	SkipPreflight bool
	// Commitment overrides the client default when set.
	Commitment rpc.CommitmentType
}

type SubmitError struct {
	Instruction string
	Signature   solana.Signature
	Kind        error
	Cause       error

	// Code is the custom program error code, when the ledger reported one.
	Code *uint32
	Logs []string
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Instruction, e.Kind)

	if e.Signature != (solana.Signature{}) {
		msg += fmt.Sprintf(" (signature %s)", e.Signature)
	}

	if e.Code != nil {
		msg += fmt.Sprintf(" [custom program error %d]", *e.Code)
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *SubmitError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// ProgramCode returns the custom program error code carried by err, if any.
func ProgramCode(err error) (uint32, bool) {
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) || submitErr.Code == nil {
		return 0, false
	}

	return *submitErr.Code, true
}

type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusConfirmed SubmissionStatus = "confirmed"
	StatusRejected  SubmissionStatus = "rejected"
	StatusTransport SubmissionStatus = "transport"
	StatusAmbiguous SubmissionStatus = "ambiguous"
)

type Submission struct {
	ID          string           `json:"id"`
	Instruction string           `json:"instruction"`
	Signature   solana.Signature `json:"signature"`
	Status      SubmissionStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Recorder receives every submission state change. Recording failures never
// change the outcome reported to the caller.
type Recorder interface {
	Record(ctx context.Context, submission Submission) error
}
