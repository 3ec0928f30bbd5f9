package program_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/royale/internal/pkg/program"
)

func TestDiscriminators(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		program.Discriminator{10, 159, 177, 252, 49, 186, 145, 65},
		program.InstructionDiscriminator(program.InstructionJoinBattleground))
	assert.Equal(t,
		program.Discriminator{222, 108, 158, 147, 89, 86, 181, 112},
		program.InstructionDiscriminator(program.InstructionParticipantAction))
	assert.Equal(t,
		program.Discriminator{40, 116, 247, 50, 225, 221, 175, 82},
		program.InstructionDiscriminator(program.InstructionFinishBattle))
	assert.Equal(t,
		program.Discriminator{94, 173, 138, 206, 211, 209, 252, 75},
		program.AccountDiscriminator(program.AccountParticipantState))
	assert.Equal(t,
		program.Discriminator{163, 78, 151, 20, 114, 109, 7, 217},
		program.AccountDiscriminator(program.AccountBattleRoyaleState))
}

func TestInstructionName(t *testing.T) {
	t.Parallel()

	name, err := program.InstructionName(program.EncodeFinishArgs())
	require.NoError(t, err)
	assert.Equal(t, program.InstructionFinishBattle, name)

	_, err = program.InstructionName([]byte{1, 2, 3})
	require.ErrorIs(t, err, program.ErrUnknownInstruction)

	_, err = program.InstructionName(make([]byte, 8))
	require.ErrorIs(t, err, program.ErrUnknownInstruction)
}

func TestEncodeJoinArgs(t *testing.T) {
	t.Parallel()

	data, err := program.EncodeJoinArgs(program.JoinArgs{Attack: 5, Defense: 3})
	require.NoError(t, err)

	assert.Equal(t, []byte{
		10, 159, 177, 252, 49, 186, 145, 65,
		5, 0, 0, 0,
		3, 0, 0, 0,
		0,
	}, data)

	args, err := program.DecodeJoinArgs(data)
	require.NoError(t, err)
	assert.Equal(t, program.JoinArgs{Attack: 5, Defense: 3}, args)
}

func TestEncodeJoinArgsWithProof(t *testing.T) {
	t.Parallel()

	proof := []program.ProofNode{{0xaa}, {0xbb}}

	data, err := program.EncodeJoinArgs(program.JoinArgs{Attack: 1, Defense: 2, WhitelistProof: proof})
	require.NoError(t, err)

	// discriminator + two u32 + option tag + vec length + two nodes
	require.Len(t, data, 8+4+4+1+4+2*32)
	assert.Equal(t, byte(1), data[16])
	assert.Equal(t, []byte{2, 0, 0, 0}, data[17:21])
	assert.Equal(t, byte(0xaa), data[21])
	assert.Equal(t, byte(0xbb), data[53])

	args, err := program.DecodeJoinArgs(data)
	require.NoError(t, err)
	assert.Equal(t, proof, args.WhitelistProof)

	empty, err := program.EncodeJoinArgs(program.JoinArgs{WhitelistProof: []program.ProofNode{}})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0}, empty[16:])
}

func TestDecodeJoinArgsRejectsOversizedProof(t *testing.T) {
	t.Parallel()

	data, err := program.EncodeJoinArgs(program.JoinArgs{Attack: 1, Defense: 2, WhitelistProof: []program.ProofNode{{0xaa}}})
	require.NoError(t, err)

	// claim four billion nodes while carrying one
	copy(data[17:21], []byte{0xff, 0xff, 0xff, 0xff})

	_, err = program.DecodeJoinArgs(data)
	require.ErrorIs(t, err, program.ErrProofTooLong)

	// one node declared too many
	copy(data[17:21], []byte{2, 0, 0, 0})

	_, err = program.DecodeJoinArgs(data)
	require.ErrorIs(t, err, program.ErrProofTooLong)
}

func TestEncodeActionArgs(t *testing.T) {
	t.Parallel()

	data, err := program.EncodeActionArgs(program.ActionArgs{ActionType: program.ActionHeal, ActionPoints: 258})
	require.NoError(t, err)

	assert.Equal(t, []byte{
		222, 108, 158, 147, 89, 86, 181, 112,
		1,
		2, 1, 0, 0,
	}, data)

	args, err := program.DecodeActionArgs(data)
	require.NoError(t, err)
	assert.Equal(t, program.ActionHeal, args.ActionType)
	assert.Equal(t, uint32(258), args.ActionPoints)

	_, err = program.DecodeJoinArgs(data)
	require.ErrorIs(t, err, program.ErrUnknownInstruction)
}

func TestParticipantState(t *testing.T) {
	t.Parallel()

	state := program.ParticipantState{
		Bump:              254,
		Battleground:      solana.SystemProgramID,
		NftMint:           solana.TokenProgramID,
		Attack:            105,
		Defense:           53,
		HealthPoints:      1015,
		ActionPointsSpent: 7,
		Alive:             true,
	}

	data, err := program.EncodeParticipantState(state)
	require.NoError(t, err)
	require.Len(t, data, 8+1+32+32+4*2+1)

	decoded, err := program.DecodeParticipantState(data)
	require.NoError(t, err)
	assert.Equal(t, state, *decoded)

	_, err = program.DecodeBattleRoyaleState(data)
	require.ErrorIs(t, err, program.ErrDiscriminatorMismatch)

	_, err = program.DecodeParticipantState(data[:20])
	require.Error(t, err)
}

func TestBattleRoyaleState(t *testing.T) {
	t.Parallel()

	state := program.BattleRoyaleState{
		Bump:               255,
		GameMaster:         solana.SysVarRentPubkey,
		Fee:                500,
		LastBattlegroundID: 42,
	}

	data, err := program.EncodeBattleRoyaleState(state)
	require.NoError(t, err)

	decoded, err := program.DecodeBattleRoyaleState(data)
	require.NoError(t, err)
	assert.Equal(t, state, *decoded)
}

func TestInstructionAccounts(t *testing.T) {
	t.Parallel()

	signer := solana.NewWallet().PublicKey()
	participant := solana.NewWallet().PublicKey()

	join, err := program.NewJoinInstruction(program.DefaultProgramID, program.JoinArgs{}, program.JoinAccounts{
		Signer:      signer,
		Participant: participant,
	})
	require.NoError(t, err)

	metas := join.Accounts()
	require.Len(t, metas, 17)
	assert.True(t, metas[0].IsSigner)
	assert.True(t, metas[0].IsWritable)
	assert.Equal(t, participant, metas[5].PublicKey)
	assert.Equal(t, solana.SysVarRentPubkey, metas[16].PublicKey)

	parsed, err := program.ParseJoinAccounts(metas)
	require.NoError(t, err)
	assert.Equal(t, signer, parsed.Signer)
	assert.Equal(t, participant, parsed.Participant)

	action, err := program.NewActionInstruction(program.DefaultProgramID, program.ActionArgs{}, program.ActionAccounts{Signer: signer})
	require.NoError(t, err)
	require.Len(t, action.Accounts(), 7)
	assert.True(t, action.Accounts()[0].IsSigner)
	assert.False(t, action.Accounts()[0].IsWritable)
	assert.Equal(t, solana.SysVarClockPubkey, action.Accounts()[6].PublicKey)

	finish := program.NewFinishInstruction(program.DefaultProgramID, program.FinishAccounts{Winner: signer})
	require.Len(t, finish.Accounts(), 14)
	assert.Equal(t, signer, finish.Accounts()[4].PublicKey)
	assert.True(t, finish.Accounts()[4].IsSigner)
	assert.Equal(t, program.InstructionFinishBattle, finish.Name())

	_, err = program.ParseFinishAccounts(metas)
	require.ErrorIs(t, err, program.ErrAccountCount)
}

func TestActionType(t *testing.T) {
	t.Parallel()

	for _, actionType := range []program.ActionType{program.ActionAttack, program.ActionHeal, program.ActionFlee} {
		parsed, err := program.ParseActionType(actionType.String())
		require.NoError(t, err)
		assert.Equal(t, actionType, parsed)
	}

	_, err := program.ParseActionType("dance")
	require.ErrorIs(t, err, program.ErrUnknownActionType)
}

func TestLookupError(t *testing.T) {
	t.Parallel()

	e, ok := program.LookupError(6004)
	require.True(t, ok)
	assert.Equal(t, "InsufficientActionPoints", e.Name)
	assert.Equal(t, program.ErrInsufficientActionPoints, e)

	e, ok = program.LookupError(3012)
	require.True(t, ok)
	assert.Equal(t, program.ErrAccountNotInit, e)

	for code := uint32(6005); code < 6010; code++ {
		_, ok = program.LookupError(code)
		assert.False(t, ok, code)
	}

	_, ok = program.LookupError(6100)
	assert.False(t, ok)
}
