package battleground

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/program"
)

// StateReader reads raw account data from the ledger.
type StateReader interface {
	FetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error)
}

type Addresses struct {
	BattleRoyale solana.PublicKey `json:"battle_royale"`
	Battleground solana.PublicKey `json:"battleground"`
	Authority    solana.PublicKey `json:"authority"`
	PotMint      solana.PublicKey `json:"pot_mint"`
}

// Battleground is the match a participant enters. It only knows the
// match-scoped addresses; mutable match configuration is read on demand.
type Battleground struct {
	ID        uint64
	Addresses Addresses

	deriver *address.Deriver
	reader  StateReader
}

func New(deriver *address.Deriver, id uint64, potMint solana.PublicKey, reader StateReader) (*Battleground, error) {
	battleRoyale, err := deriver.BattleRoyale()
	if err != nil {
		return nil, fmt.Errorf("failed to derive battle royale address: %w", err)
	}

	state, err := deriver.Battleground(id)
	if err != nil {
		return nil, fmt.Errorf("failed to derive battleground address: %w", err)
	}

	authority, err := deriver.Authority(id)
	if err != nil {
		return nil, fmt.Errorf("failed to derive battleground authority: %w", err)
	}

	return &Battleground{
		ID: id,
		Addresses: Addresses{
			BattleRoyale: battleRoyale.Address,
			Battleground: state.Address,
			Authority:    authority.Address,
			PotMint:      potMint,
		},
		deriver: deriver,
		reader:  reader,
	}, nil
}

func (b *Battleground) Deriver() *address.Deriver {
	return b.deriver
}

func (b *Battleground) ProgramID() solana.PublicKey {
	return b.deriver.ProgramID
}

// Config reads the battle royale state. It is never cached because the game
// master can change between reads.
func (b *Battleground) Config(ctx context.Context) (*program.BattleRoyaleState, error) {
	data, err := b.reader.FetchAccount(ctx, b.Addresses.BattleRoyale)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch battle royale state: %w", err)
	}

	state, err := program.DecodeBattleRoyaleState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode battle royale state: %w", err)
	}

	return state, nil
}

// PotAccount is the pot's token account, owned by the battleground authority.
func (b *Battleground) PotAccount() (solana.PublicKey, error) {
	//nolint:wrapcheck
	return address.ResolveStorage(b.Addresses.PotMint, b.Addresses.Authority, address.OwnerProgram)
}
