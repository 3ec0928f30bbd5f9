package simnet

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/program"
)

const (
	DefaultStatBudget = 100
	BaseAttack        = 100
	BaseDefense       = 50
	BaseHealth        = 750
	HealthPerDefense  = 5
)

var errTokenInsufficientFunds = program.ProgramError{Code: 1, Name: "InsufficientFunds", Message: "insufficient funds"}

// Rejections the simulator raises for rules the deployed program's error table
// does not name. The codes are local to the simulator and never looked up.
var (
	ErrWrongBattlegroundStatus = program.ProgramError{Code: 6100, Name: "WrongBattlegroundStatus", Message: "wrong battleground status"}
	ErrActionCooldown          = program.ProgramError{Code: 6101, Name: "ActionCooldown", Message: "action cooldown has not elapsed"}
	ErrNotWinner               = program.ProgramError{Code: 6102, Name: "NotWinner", Message: "signer is not the winner"}
	ErrParticipantDead         = program.ProgramError{Code: 6103, Name: "ParticipantDead", Message: "participant is dead"}
	ErrWhitelistProofInvalid   = program.ProgramError{Code: 6104, Name: "WhitelistProofInvalid", Message: "invalid whitelist proof"}
)

type Config struct {
	ProgramID      solana.PublicKey
	GameMaster     solana.PublicKey
	FeeBasisPoints uint16
	StatBudget     uint32
	Clock          func() time.Time
}

type BattlegroundConfig struct {
	ID                 uint64
	PotMint            solana.PublicKey
	EntryFee           uint64
	ActionPointsPerDay uint32
	ParticipantsCap    uint32
	Cooldown           time.Duration
	// Non-nil restricts entry to callers presenting exactly this proof.
	Whitelist []program.ProofNode
}

type battlegroundState struct {
	BattlegroundConfig

	address      solana.PublicKey
	authority    solana.PublicKey
	status       program.BattlegroundStatus
	startTime    time.Time
	participants []solana.PublicKey
}

// Submitted is what the network saw for one submission, accepted or not.
type Submitted struct {
	Instruction string
	Options     ledger.SubmitOptions
	Err         error
}
