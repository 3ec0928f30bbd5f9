package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor's placeholder ID; deployments override it with --program-id.
var DefaultProgramID = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

const (
	BattleRoyaleStateSeed     = "battle_royale"
	BattlegroundStateSeed     = "battleground"
	BattlegroundAuthoritySeed = "authority"
	ParticipantStateSeed      = "participant"
)

const (
	InstructionJoinBattleground  = "join_battleground"
	InstructionParticipantAction = "participant_action"
	InstructionFinishBattle      = "finish_battle"
)

const (
	AccountParticipantState  = "ParticipantState"
	AccountBattleRoyaleState = "BattleRoyaleState"
)

const DiscriminatorLength = 8

var (
	ErrUnknownActionType     = errors.New("unknown action type")
	ErrUnknownInstruction    = errors.New("unknown instruction")
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	ErrAccountCount          = errors.New("unexpected number of accounts")
	ErrProofTooLong          = errors.New("proof longer than instruction data")
)

type Discriminator [DiscriminatorLength]byte

func InstructionDiscriminator(name string) Discriminator {
	return hashDiscriminator("global:" + name)
}

func AccountDiscriminator(name string) Discriminator {
	return hashDiscriminator("account:" + name)
}

func hashDiscriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))

	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])

	return d
}

var instructionNames = map[Discriminator]string{
	InstructionDiscriminator(InstructionJoinBattleground):  InstructionJoinBattleground,
	InstructionDiscriminator(InstructionParticipantAction): InstructionParticipantAction,
	InstructionDiscriminator(InstructionFinishBattle):      InstructionFinishBattle,
}

// InstructionName resolves the instruction encoded in data by its discriminator.
func InstructionName(data []byte) (string, error) {
	if len(data) < DiscriminatorLength {
		return "", fmt.Errorf("%w: data too short", ErrUnknownInstruction)
	}

	var d Discriminator
	copy(d[:], data[:DiscriminatorLength])

	name, ok := instructionNames[d]
	if !ok {
		return "", fmt.Errorf("%w: %x", ErrUnknownInstruction, d)
	}

	return name, nil
}

func EncodeJoinArgs(args JoinArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	d := InstructionDiscriminator(InstructionJoinBattleground)

	err := enc.WriteBytes(d[:], false)
	if err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}

	err = enc.WriteUint32(args.Attack, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to write attack: %w", err)
	}

	err = enc.WriteUint32(args.Defense, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to write defense: %w", err)
	}

	err = enc.WriteBool(args.WhitelistProof != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to write proof option: %w", err)
	}

	if args.WhitelistProof == nil {
		return buf.Bytes(), nil
	}

	//nolint:gosec // proofs are bounded by transaction size
	err = enc.WriteUint32(uint32(len(args.WhitelistProof)), binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to write proof length: %w", err)
	}

	for _, node := range args.WhitelistProof {
		err = enc.WriteBytes(node[:], false)
		if err != nil {
			return nil, fmt.Errorf("failed to write proof node: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func DecodeJoinArgs(data []byte) (JoinArgs, error) {
	var args JoinArgs

	dec, err := instructionDecoder(data, InstructionJoinBattleground)
	if err != nil {
		return args, err
	}

	args.Attack, err = dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return args, fmt.Errorf("failed to read attack: %w", err)
	}

	args.Defense, err = dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return args, fmt.Errorf("failed to read defense: %w", err)
	}

	present, err := dec.ReadBool()
	if err != nil {
		return args, fmt.Errorf("failed to read proof option: %w", err)
	}

	if !present {
		return args, nil
	}

	count, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return args, fmt.Errorf("failed to read proof length: %w", err)
	}

	nodeSize := len(ProofNode{})
	if int64(count) > int64(dec.Remaining()/nodeSize) {
		return args, fmt.Errorf("%w: %d proof nodes declared, %d bytes left", ErrProofTooLong, count, dec.Remaining())
	}

	args.WhitelistProof = make([]ProofNode, 0, count)

	for range count {
		raw, err := dec.ReadNBytes(nodeSize)
		if err != nil {
			return args, fmt.Errorf("failed to read proof node: %w", err)
		}

		var node ProofNode
		copy(node[:], raw)
		args.WhitelistProof = append(args.WhitelistProof, node)
	}

	return args, nil
}

func EncodeActionArgs(args ActionArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	d := InstructionDiscriminator(InstructionParticipantAction)

	err := enc.WriteBytes(d[:], false)
	if err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}

	err = enc.WriteUint8(uint8(args.ActionType))
	if err != nil {
		return nil, fmt.Errorf("failed to write action type: %w", err)
	}

	err = enc.WriteUint32(args.ActionPoints, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to write action points: %w", err)
	}

	return buf.Bytes(), nil
}

func DecodeActionArgs(data []byte) (ActionArgs, error) {
	var args ActionArgs

	dec, err := instructionDecoder(data, InstructionParticipantAction)
	if err != nil {
		return args, err
	}

	actionType, err := dec.ReadUint8()
	if err != nil {
		return args, fmt.Errorf("failed to read action type: %w", err)
	}

	args.ActionType = ActionType(actionType)

	args.ActionPoints, err = dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return args, fmt.Errorf("failed to read action points: %w", err)
	}

	return args, nil
}

func EncodeFinishArgs() []byte {
	d := InstructionDiscriminator(InstructionFinishBattle)

	return d[:]
}

func instructionDecoder(data []byte, name string) (*bin.Decoder, error) {
	got, err := InstructionName(data)
	if err != nil {
		return nil, err
	}

	if got != name {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnknownInstruction, name, got)
	}

	return bin.NewBorshDecoder(data[DiscriminatorLength:]), nil
}

func accountDecoder(data []byte, name string) (*bin.Decoder, error) {
	want := AccountDiscriminator(name)

	if len(data) < DiscriminatorLength || !bytes.Equal(data[:DiscriminatorLength], want[:]) {
		return nil, fmt.Errorf("%w: expected %s", ErrDiscriminatorMismatch, name)
	}

	return bin.NewBorshDecoder(data[DiscriminatorLength:]), nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err //nolint:wrapcheck
	}

	return solana.PublicKeyFromBytes(raw), nil
}

func DecodeParticipantState(data []byte) (*ParticipantState, error) {
	dec, err := accountDecoder(data, AccountParticipantState)
	if err != nil {
		return nil, err
	}

	state := &ParticipantState{}

	state.Bump, err = dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read bump: %w", err)
	}

	state.Battleground, err = readPublicKey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read battleground: %w", err)
	}

	state.NftMint, err = readPublicKey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read nft mint: %w", err)
	}

	for _, field := range []*uint16{
		&state.Attack,
		&state.Defense,
		&state.HealthPoints,
		&state.ActionPointsSpent,
	} {
		*field, err = dec.ReadUint16(binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("failed to read participant stats: %w", err)
		}
	}

	state.Alive, err = dec.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("failed to read alive flag: %w", err)
	}

	return state, nil
}

func EncodeParticipantState(state ParticipantState) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	d := AccountDiscriminator(AccountParticipantState)

	for _, step := range []func() error{
		func() error { return enc.WriteBytes(d[:], false) },
		func() error { return enc.WriteUint8(state.Bump) },
		func() error { return enc.WriteBytes(state.Battleground[:], false) },
		func() error { return enc.WriteBytes(state.NftMint[:], false) },
		func() error { return enc.WriteUint16(state.Attack, binary.LittleEndian) },
		func() error { return enc.WriteUint16(state.Defense, binary.LittleEndian) },
		func() error { return enc.WriteUint16(state.HealthPoints, binary.LittleEndian) },
		func() error { return enc.WriteUint16(state.ActionPointsSpent, binary.LittleEndian) },
		func() error { return enc.WriteBool(state.Alive) },
	} {
		err := step()
		if err != nil {
			return nil, fmt.Errorf("failed to encode participant state: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func DecodeBattleRoyaleState(data []byte) (*BattleRoyaleState, error) {
	dec, err := accountDecoder(data, AccountBattleRoyaleState)
	if err != nil {
		return nil, err
	}

	state := &BattleRoyaleState{}

	state.Bump, err = dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read bump: %w", err)
	}

	state.GameMaster, err = readPublicKey(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read game master: %w", err)
	}

	state.Fee, err = dec.ReadUint16(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee: %w", err)
	}

	state.LastBattlegroundID, err = dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read last battleground id: %w", err)
	}

	return state, nil
}

func EncodeBattleRoyaleState(state BattleRoyaleState) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	d := AccountDiscriminator(AccountBattleRoyaleState)

	for _, step := range []func() error{
		func() error { return enc.WriteBytes(d[:], false) },
		func() error { return enc.WriteUint8(state.Bump) },
		func() error { return enc.WriteBytes(state.GameMaster[:], false) },
		func() error { return enc.WriteUint16(state.Fee, binary.LittleEndian) },
		func() error { return enc.WriteUint64(state.LastBattlegroundID, binary.LittleEndian) },
	} {
		err := step()
		if err != nil {
			return nil, fmt.Errorf("failed to encode battle royale state: %w", err)
		}
	}

	return buf.Bytes(), nil
}
