package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/program"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var (
	ErrInvalidSeeds  = errors.New("invalid seeds")
	ErrNoViableBump  = errors.New("unable to find a viable program address bump")
	ErrOwnerKind     = errors.New("owner kind must be specified")
	ErrOwnerOffCurve = errors.New("wallet owner is not on the ed25519 curve")
)

type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Deriver computes program-derived addresses for one program. It holds no state
// beyond the program ID and is safe to share.
type Deriver struct {
	ProgramID solana.PublicKey
}

func NewDeriver(programID solana.PublicKey) *Deriver {
	return &Deriver{ProgramID: programID}
}

func (d *Deriver) Derive(seedTag string, parent solana.PublicKey, identity []byte) (Derived, error) {
	return d.DeriveSeeds([]byte(seedTag), parent[:], identity)
}

func (d *Deriver) DeriveSeeds(seeds ...[]byte) (Derived, error) {
	return FindProgramAddress(d.ProgramID, seeds...)
}

func (d *Deriver) BattleRoyale() (Derived, error) {
	return d.DeriveSeeds([]byte(program.BattleRoyaleStateSeed))
}

func (d *Deriver) Battleground(id uint64) (Derived, error) {
	return d.DeriveSeeds([]byte(program.BattlegroundStateSeed), idSeed(id))
}

func (d *Deriver) Authority(id uint64) (Derived, error) {
	return d.DeriveSeeds([]byte(program.BattlegroundAuthoritySeed), idSeed(id))
}

func (d *Deriver) Participant(battleground, nftMint solana.PublicKey) (Derived, error) {
	return d.Derive(program.ParticipantStateSeed, battleground, nftMint[:])
}

func idSeed(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)

	return buf
}

// FindProgramAddress walks bumps from 255 down to 1 and keeps the first candidate
// that falls off the curve, the same canonical bump the program's runtime selects.
// Bump 0 is never tried.
func FindProgramAddress(programID solana.PublicKey, seeds ...[]byte) (Derived, error) {
	if len(seeds) >= MaxSeeds {
		return Derived{}, fmt.Errorf("%w: %d seeds, at most %d allowed with the bump", ErrInvalidSeeds, len(seeds), MaxSeeds-1)
	}

	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Derived{}, fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeeds, i, len(seed))
		}
	}

	candidate := make([][]byte, len(seeds)+1)
	copy(candidate, seeds)

	for bump := math.MaxUint8; bump > 0; bump-- {
		candidate[len(seeds)] = []byte{byte(bump)}

		addr, err := solana.CreateProgramAddress(candidate, programID)
		if err == nil {
			return Derived{Address: addr, Bump: uint8(bump)}, nil
		}
	}

	return Derived{}, fmt.Errorf("%w for program %s", ErrNoViableBump, programID)
}

// TokenMetadata is the Metaplex metadata account of a mint.
func TokenMetadata(mint solana.PublicKey) (Derived, error) {
	metadataProgram := solana.TokenMetadataProgramID

	return FindProgramAddress(metadataProgram, []byte("metadata"), metadataProgram[:], mint[:])
}

// OwnerKind states whether a storage owner is an end-user wallet or a
// program-controlled address. The zero value is deliberately invalid.
type OwnerKind int

const (
	OwnerWallet OwnerKind = iota + 1
	OwnerProgram
)

// ResolveStorage returns the associated token account of owner for mint.
func ResolveStorage(mint, owner solana.PublicKey, kind OwnerKind) (solana.PublicKey, error) {
	switch kind {
	case OwnerWallet:
		if !solana.IsOnCurve(owner[:]) {
			return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrOwnerOffCurve, owner)
		}
	case OwnerProgram:
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: got %d", ErrOwnerKind, kind)
	}

	derived, err := FindProgramAddress(
		solana.SPLAssociatedTokenAccountProgramID,
		owner[:],
		solana.TokenProgramID[:],
		mint[:],
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to resolve storage for %s: %w", owner, err)
	}

	return derived.Address, nil
}
