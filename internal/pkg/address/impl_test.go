package address_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/program"
)

func randomKey(t *testing.T) solana.PublicKey {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	return key.PublicKey()
}

func TestParticipantIsDeterministic(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)
	battleground := randomKey(t)
	nft := randomKey(t)

	first, err := deriver.Participant(battleground, nft)
	require.NoError(t, err)

	second, err := deriver.Participant(battleground, nft)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParticipantMatchesLibraryDerivation(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)
	battleground := randomKey(t)
	nft := randomKey(t)

	derived, err := deriver.Participant(battleground, nft)
	require.NoError(t, err)

	expected, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(program.ParticipantStateSeed), battleground[:], nft[:]},
		program.DefaultProgramID,
	)
	require.NoError(t, err)

	assert.Equal(t, expected, derived.Address)
	assert.Equal(t, bump, derived.Bump)
}

func TestBumpSearchMatchesLibrary(t *testing.T) {
	t.Parallel()

	for range 64 {
		seed := randomKey(t)

		derived, err := address.FindProgramAddress(program.DefaultProgramID, []byte("seed"), seed[:])
		require.NoError(t, err)

		expected, bump, err := solana.FindProgramAddress([][]byte{[]byte("seed"), seed[:]}, program.DefaultProgramID)
		require.NoError(t, err)

		assert.Equal(t, expected, derived.Address)
		assert.Equal(t, bump, derived.Bump)
		assert.NotZero(t, derived.Bump)
	}
}

func TestBumpIsCanonical(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)

	derived, err := deriver.Battleground(42)
	require.NoError(t, err)

	seeds := [][]byte{[]byte(program.BattlegroundStateSeed), {42, 0, 0, 0, 0, 0, 0, 0}}

	for bump := 255; bump > int(derived.Bump); bump-- {
		_, err := solana.CreateProgramAddress(append(seeds, []byte{byte(bump)}), program.DefaultProgramID)
		assert.Error(t, err, "bump %d should be on curve", bump)
	}

	addr, err := solana.CreateProgramAddress(append(seeds, []byte{derived.Bump}), program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, addr, derived.Address)
}

func TestParticipantsDoNotCollide(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)
	battleground := randomKey(t)

	seen := map[solana.PublicKey]solana.PublicKey{}

	for range 64 {
		nft := randomKey(t)

		derived, err := deriver.Participant(battleground, nft)
		require.NoError(t, err)

		other, exists := seen[derived.Address]
		require.False(t, exists, "%s collides with %s", nft, other)

		seen[derived.Address] = nft
	}
}

func TestBattlegroundScopedAddressesDiffer(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)

	state, err := deriver.Battleground(1)
	require.NoError(t, err)

	authority, err := deriver.Authority(1)
	require.NoError(t, err)

	next, err := deriver.Battleground(2)
	require.NoError(t, err)

	assert.NotEqual(t, state.Address, authority.Address)
	assert.NotEqual(t, state.Address, next.Address)
}

func TestInvalidSeeds(t *testing.T) {
	t.Parallel()

	_, err := address.FindProgramAddress(program.DefaultProgramID, make([]byte, address.MaxSeedLength+1))
	require.ErrorIs(t, err, address.ErrInvalidSeeds)

	seeds := make([][]byte, address.MaxSeeds)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}

	_, err = address.FindProgramAddress(program.DefaultProgramID, seeds...)
	require.ErrorIs(t, err, address.ErrInvalidSeeds)
}

func TestResolveStorageForWallet(t *testing.T) {
	t.Parallel()

	mint := randomKey(t)
	owner := randomKey(t)

	resolved, err := address.ResolveStorage(mint, owner, address.OwnerWallet)
	require.NoError(t, err)

	expected, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	assert.Equal(t, expected, resolved)

	again, err := address.ResolveStorage(mint, owner, address.OwnerProgram)
	require.NoError(t, err)
	assert.Equal(t, resolved, again)
}

func TestResolveStorageRequiresOwnerKind(t *testing.T) {
	t.Parallel()

	_, err := address.ResolveStorage(randomKey(t), randomKey(t), 0)
	require.ErrorIs(t, err, address.ErrOwnerKind)
}

func TestResolveStorageForProgramOwner(t *testing.T) {
	t.Parallel()

	deriver := address.NewDeriver(program.DefaultProgramID)

	authority, err := deriver.Authority(7)
	require.NoError(t, err)

	mint := randomKey(t)

	_, err = address.ResolveStorage(mint, authority.Address, address.OwnerWallet)
	require.ErrorIs(t, err, address.ErrOwnerOffCurve)

	resolved, err := address.ResolveStorage(mint, authority.Address, address.OwnerProgram)
	require.NoError(t, err)
	assert.NotEqual(t, solana.PublicKey{}, resolved)
}
