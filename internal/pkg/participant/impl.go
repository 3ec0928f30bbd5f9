package participant

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/battleground"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/program"
)

var (
	ErrNotJoined = errors.New("participant has not joined")
	ErrNoSession = errors.New("session has no ledger")
	ErrNoTarget  = errors.New("action needs a target participant")
)

// Ledger is what a participant needs from the ledger client.
type Ledger interface {
	Submit(
		ctx context.Context,
		ix ledger.Instruction,
		signers []solana.PrivateKey,
		opts ledger.SubmitOptions,
	) (solana.Signature, error)
	FetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error)
}

// Session is a ready-to-use ledger connection plus the key that signs for the
// player. It carries no per-participant state and can be shared.
type Session struct {
	Ledger Ledger
	Signer solana.PrivateKey
}

type Addresses struct {
	battleground.Addresses

	Participant solana.PublicKey `json:"participant"`
}

// Participant drives one NFT through join, actions and finish on one
// battleground. Phase rules are enforced by the program, not here.
type Participant struct {
	battleground *battleground.Battleground
	session      Session

	nft         solana.PublicKey
	nftMetadata solana.PublicKey
	addresses   Addresses
}

func New(bg *battleground.Battleground, nft solana.PublicKey, session Session) (*Participant, error) {
	if session.Ledger == nil {
		return nil, ErrNoSession
	}

	derived, err := bg.Deriver().Participant(bg.Addresses.Battleground, nft)
	if err != nil {
		return nil, fmt.Errorf("failed to derive participant address: %w", err)
	}

	metadata, err := address.TokenMetadata(nft)
	if err != nil {
		return nil, fmt.Errorf("failed to derive nft metadata address: %w", err)
	}

	return &Participant{
		battleground: bg,
		session:      session,
		nft:          nft,
		nftMetadata:  metadata.Address,
		addresses: Addresses{
			Addresses:   bg.Addresses,
			Participant: derived.Address,
		},
	}, nil
}

func (p *Participant) Addresses() Addresses {
	return p.addresses
}

func (p *Participant) NFT() solana.PublicKey {
	return p.nft
}

func (p *Participant) signer() solana.PublicKey {
	return p.session.Signer.PublicKey()
}

func (p *Participant) submit(ctx context.Context, ix ledger.Instruction, opts ledger.SubmitOptions) (solana.Signature, error) {
	//nolint:wrapcheck // SubmitError already names the instruction
	return p.session.Ledger.Submit(ctx, ix, []solana.PrivateKey{p.session.Signer}, opts)
}

// Join enters the battleground with the given stat allocation. The budget is
// checked by the program only. proof is nil for unrestricted battlegrounds.
//
//nolint:funlen
func (p *Participant) Join(ctx context.Context, attack, defense uint32, proof []program.ProofNode) (solana.Signature, error) {
	config, err := p.battleground.Config(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to read game master: %w", err)
	}

	potMint := p.addresses.PotMint
	signer := p.signer()

	potAccount, err := p.battleground.PotAccount()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve pot account: %w", err)
	}

	devAccount, err := address.ResolveStorage(potMint, config.GameMaster, address.OwnerProgram)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve dev account: %w", err)
	}

	playerAccount, err := address.ResolveStorage(potMint, signer, address.OwnerWallet)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve player account: %w", err)
	}

	playerNftAccount, err := address.ResolveStorage(p.nft, signer, address.OwnerWallet)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve player nft account: %w", err)
	}

	ix, err := program.NewJoinInstruction(p.battleground.ProgramID(), program.JoinArgs{
		Attack:         attack,
		Defense:        defense,
		WhitelistProof: proof,
	}, program.JoinAccounts{
		Signer:                signer,
		GameMaster:            config.GameMaster,
		BattleRoyale:          p.addresses.BattleRoyale,
		Authority:             p.addresses.Authority,
		Battleground:          p.addresses.Battleground,
		Participant:           p.addresses.Participant,
		PotMint:               potMint,
		NftMint:               p.nft,
		NftMetadata:           p.nftMetadata,
		PotAccount:            potAccount,
		DevAccount:            devAccount,
		PlayerAccount:         playerAccount,
		PlayerNftTokenAccount: playerNftAccount,
	})
	if err != nil {
		return solana.Signature{}, err //nolint:wrapcheck
	}

	return p.submit(ctx, ix, ledger.SubmitOptions{})
}

// Action spends actionPoints on target. Whether target belongs to the same
// battleground is for the program to decide.
func (p *Participant) Action(
	ctx context.Context,
	target *Participant,
	actionType program.ActionType,
	actionPoints uint32,
) (solana.Signature, error) {
	if target == nil {
		return solana.Signature{}, ErrNoTarget
	}

	playerNftAccount, err := address.ResolveStorage(p.nft, p.signer(), address.OwnerWallet)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve player nft account: %w", err)
	}

	ix, err := program.NewActionInstruction(p.battleground.ProgramID(), program.ActionArgs{
		ActionType:   actionType,
		ActionPoints: actionPoints,
	}, program.ActionAccounts{
		Signer:                 p.signer(),
		BattleRoyaleState:      p.addresses.BattleRoyale,
		BattlegroundState:      p.addresses.Battleground,
		ParticipantState:       p.addresses.Participant,
		TargetParticipantState: target.addresses.Participant,
		PlayerNftTokenAccount:  playerNftAccount,
	})
	if err != nil {
		return solana.Signature{}, err //nolint:wrapcheck
	}

	return p.submit(ctx, ix, ledger.SubmitOptions{})
}

// FinishBattle claims the pot. The program alone decides who won, so the
// transaction skips preflight and a loser learns about it from the rejection.
func (p *Participant) FinishBattle(ctx context.Context) (solana.Signature, error) {
	potMint := p.addresses.PotMint
	signer := p.signer()

	potAccount, err := p.battleground.PotAccount()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve pot account: %w", err)
	}

	winnerAccount, err := address.ResolveStorage(potMint, signer, address.OwnerWallet)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve winner account: %w", err)
	}

	winnerNftAccount, err := address.ResolveStorage(p.nft, signer, address.OwnerWallet)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to resolve winner nft account: %w", err)
	}

	ix := program.NewFinishInstruction(p.battleground.ProgramID(), program.FinishAccounts{
		BattleRoyale:          p.addresses.BattleRoyale,
		Battleground:          p.addresses.Battleground,
		Authority:             p.addresses.Authority,
		Participant:           p.addresses.Participant,
		Winner:                signer,
		NftMint:               p.nft,
		PotMint:               potMint,
		PotAccount:            potAccount,
		WinnerAccount:         winnerAccount,
		WinnerNftTokenAccount: winnerNftAccount,
	})

	return p.submit(ctx, ix, ledger.SubmitOptions{SkipPreflight: true})
}

// State reads the participant record. ErrNotJoined means the account does not
// exist yet.
func (p *Participant) State(ctx context.Context) (*program.ParticipantState, error) {
	data, err := p.session.Ledger.FetchAccount(ctx, p.addresses.Participant)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrNotJoined, err)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch participant state: %w", err)
	}

	state, err := program.DecodeParticipantState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode participant state: %w", err)
	}

	return state, nil
}
