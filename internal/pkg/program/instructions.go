package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Instruction is a program instruction that remembers its name for error reporting.
type Instruction struct {
	name      string
	programID solana.PublicKey
	accounts  solana.AccountMetaSlice
	data      []byte
}

func (ix *Instruction) Name() string {
	return ix.name
}

func (ix *Instruction) ProgramID() solana.PublicKey {
	return ix.programID
}

func (ix *Instruction) Accounts() []*solana.AccountMeta {
	return ix.accounts
}

func (ix *Instruction) Data() ([]byte, error) {
	return ix.data, nil
}

type JoinAccounts struct {
	Signer                solana.PublicKey
	GameMaster            solana.PublicKey
	BattleRoyale          solana.PublicKey
	Authority             solana.PublicKey
	Battleground          solana.PublicKey
	Participant           solana.PublicKey
	PotMint               solana.PublicKey
	NftMint               solana.PublicKey
	NftMetadata           solana.PublicKey
	PotAccount            solana.PublicKey
	DevAccount            solana.PublicKey
	PlayerAccount         solana.PublicKey
	PlayerNftTokenAccount solana.PublicKey
}

func (a JoinAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.GameMaster, false, false),
		solana.NewAccountMeta(a.BattleRoyale, false, false),
		solana.NewAccountMeta(a.Authority, false, false),
		solana.NewAccountMeta(a.Battleground, true, false),
		solana.NewAccountMeta(a.Participant, true, false),
		solana.NewAccountMeta(a.PotMint, false, false),
		solana.NewAccountMeta(a.NftMint, false, false),
		solana.NewAccountMeta(a.NftMetadata, false, false),
		solana.NewAccountMeta(a.PotAccount, true, false),
		solana.NewAccountMeta(a.DevAccount, true, false),
		solana.NewAccountMeta(a.PlayerAccount, true, false),
		solana.NewAccountMeta(a.PlayerNftTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
}

func ParseJoinAccounts(metas []*solana.AccountMeta) (JoinAccounts, error) {
	keys, err := accountKeys(metas, 17)
	if err != nil {
		return JoinAccounts{}, err
	}

	return JoinAccounts{
		Signer:                keys[0],
		GameMaster:            keys[1],
		BattleRoyale:          keys[2],
		Authority:             keys[3],
		Battleground:          keys[4],
		Participant:           keys[5],
		PotMint:               keys[6],
		NftMint:               keys[7],
		NftMetadata:           keys[8],
		PotAccount:            keys[9],
		DevAccount:            keys[10],
		PlayerAccount:         keys[11],
		PlayerNftTokenAccount: keys[12],
	}, nil
}

func NewJoinInstruction(programID solana.PublicKey, args JoinArgs, accounts JoinAccounts) (*Instruction, error) {
	data, err := EncodeJoinArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", InstructionJoinBattleground, err)
	}

	return &Instruction{
		name:      InstructionJoinBattleground,
		programID: programID,
		accounts:  accounts.metas(),
		data:      data,
	}, nil
}

type ActionAccounts struct {
	Signer                 solana.PublicKey
	BattleRoyaleState      solana.PublicKey
	BattlegroundState      solana.PublicKey
	ParticipantState       solana.PublicKey
	TargetParticipantState solana.PublicKey
	PlayerNftTokenAccount  solana.PublicKey
}

func (a ActionAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, false, true),
		solana.NewAccountMeta(a.BattleRoyaleState, false, false),
		solana.NewAccountMeta(a.BattlegroundState, true, false),
		solana.NewAccountMeta(a.ParticipantState, true, false),
		solana.NewAccountMeta(a.TargetParticipantState, true, false),
		solana.NewAccountMeta(a.PlayerNftTokenAccount, false, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
	}
}

func ParseActionAccounts(metas []*solana.AccountMeta) (ActionAccounts, error) {
	keys, err := accountKeys(metas, 7)
	if err != nil {
		return ActionAccounts{}, err
	}

	return ActionAccounts{
		Signer:                 keys[0],
		BattleRoyaleState:      keys[1],
		BattlegroundState:      keys[2],
		ParticipantState:       keys[3],
		TargetParticipantState: keys[4],
		PlayerNftTokenAccount:  keys[5],
	}, nil
}

func NewActionInstruction(programID solana.PublicKey, args ActionArgs, accounts ActionAccounts) (*Instruction, error) {
	data, err := EncodeActionArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", InstructionParticipantAction, err)
	}

	return &Instruction{
		name:      InstructionParticipantAction,
		programID: programID,
		accounts:  accounts.metas(),
		data:      data,
	}, nil
}

type FinishAccounts struct {
	BattleRoyale          solana.PublicKey
	Battleground          solana.PublicKey
	Authority             solana.PublicKey
	Participant           solana.PublicKey
	Winner                solana.PublicKey
	NftMint               solana.PublicKey
	PotMint               solana.PublicKey
	PotAccount            solana.PublicKey
	WinnerAccount         solana.PublicKey
	WinnerNftTokenAccount solana.PublicKey
}

func (a FinishAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.BattleRoyale, false, false),
		solana.NewAccountMeta(a.Battleground, true, false),
		solana.NewAccountMeta(a.Authority, false, false),
		solana.NewAccountMeta(a.Participant, false, false),
		solana.NewAccountMeta(a.Winner, true, true),
		solana.NewAccountMeta(a.NftMint, false, false),
		solana.NewAccountMeta(a.PotMint, false, false),
		solana.NewAccountMeta(a.PotAccount, true, false),
		solana.NewAccountMeta(a.WinnerAccount, true, false),
		solana.NewAccountMeta(a.WinnerNftTokenAccount, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
}

func ParseFinishAccounts(metas []*solana.AccountMeta) (FinishAccounts, error) {
	keys, err := accountKeys(metas, 14)
	if err != nil {
		return FinishAccounts{}, err
	}

	return FinishAccounts{
		BattleRoyale:          keys[0],
		Battleground:          keys[1],
		Authority:             keys[2],
		Participant:           keys[3],
		Winner:                keys[4],
		NftMint:               keys[5],
		PotMint:               keys[6],
		PotAccount:            keys[7],
		WinnerAccount:         keys[8],
		WinnerNftTokenAccount: keys[9],
	}, nil
}

func NewFinishInstruction(programID solana.PublicKey, accounts FinishAccounts) *Instruction {
	return &Instruction{
		name:      InstructionFinishBattle,
		programID: programID,
		accounts:  accounts.metas(),
		data:      EncodeFinishArgs(),
	}
}

func accountKeys(metas []*solana.AccountMeta, expected int) ([]solana.PublicKey, error) {
	if len(metas) != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrAccountCount, expected, len(metas))
	}

	keys := make([]solana.PublicKey, 0, len(metas))
	for _, meta := range metas {
		keys = append(keys, meta.PublicKey)
	}

	return keys, nil
}
