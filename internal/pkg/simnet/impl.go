// Package simnet is an in-memory ledger that executes the battle royale program's
// rules. It stands in for a validator in tests and local experiments.
package simnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/program"
)

var ErrUnknownBattleground = errors.New("unknown battleground")

// Network serializes every submission behind one lock, which is the only
// ordering guarantee it offers, same as a real ledger.
type Network struct {
	mu sync.Mutex

	config  Config
	deriver *address.Deriver

	battleRoyale     solana.PublicKey
	battleRoyaleBump uint8

	accounts      map[solana.PublicKey][]byte
	balances      map[solana.PublicKey]uint64
	battlegrounds map[solana.PublicKey]*battlegroundState
	lastAction    map[solana.PublicKey]time.Time

	signatures uint64
	history    []Submitted
}

func New(config Config) (*Network, error) {
	if config.ProgramID == (solana.PublicKey{}) {
		config.ProgramID = program.DefaultProgramID
	}

	if config.StatBudget == 0 {
		config.StatBudget = DefaultStatBudget
	}

	if config.Clock == nil {
		config.Clock = time.Now
	}

	deriver := address.NewDeriver(config.ProgramID)

	battleRoyale, err := deriver.BattleRoyale()
	if err != nil {
		return nil, fmt.Errorf("failed to derive battle royale address: %w", err)
	}

	n := &Network{
		config:           config,
		deriver:          deriver,
		battleRoyale:     battleRoyale.Address,
		battleRoyaleBump: battleRoyale.Bump,
		accounts:         map[solana.PublicKey][]byte{},
		balances:         map[solana.PublicKey]uint64{},
		battlegrounds:    map[solana.PublicKey]*battlegroundState{},
		lastAction:       map[solana.PublicKey]time.Time{},
	}

	err = n.writeBattleRoyale(0)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Network) Deriver() *address.Deriver {
	return n.deriver
}

func (n *Network) writeBattleRoyale(lastID uint64) error {
	data, err := program.EncodeBattleRoyaleState(program.BattleRoyaleState{
		Bump:               n.battleRoyaleBump,
		GameMaster:         n.config.GameMaster,
		Fee:                n.config.FeeBasisPoints,
		LastBattlegroundID: lastID,
	})
	if err != nil {
		return fmt.Errorf("failed to write battle royale state: %w", err)
	}

	n.accounts[n.battleRoyale] = data

	return nil
}

// SetGameMaster changes the fee recipient for subsequent joins.
func (n *Network) SetGameMaster(gameMaster solana.PublicKey) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	state, err := program.DecodeBattleRoyaleState(n.accounts[n.battleRoyale])
	if err != nil {
		return fmt.Errorf("failed to read battle royale state: %w", err)
	}

	n.config.GameMaster = gameMaster

	return n.writeBattleRoyale(state.LastBattlegroundID)
}

func (n *Network) CreateBattleground(config BattlegroundConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	state, err := n.deriver.Battleground(config.ID)
	if err != nil {
		return fmt.Errorf("failed to derive battleground: %w", err)
	}

	authority, err := n.deriver.Authority(config.ID)
	if err != nil {
		return fmt.Errorf("failed to derive authority: %w", err)
	}

	if config.ParticipantsCap == 0 {
		config.ParticipantsCap = ^uint32(0)
	}

	n.battlegrounds[state.Address] = &battlegroundState{
		BattlegroundConfig: config,
		address:            state.Address,
		authority:          authority.Address,
		status:             program.StatusPreparing,
	}

	return n.writeBattleRoyale(config.ID)
}

// StartBattle moves a battleground from preparing to ongoing.
func (n *Network) StartBattle(id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	bg, err := n.battleground(id)
	if err != nil {
		return err
	}

	bg.status = program.StatusOngoing
	bg.startTime = n.config.Clock()

	return nil
}

func (n *Network) Status(id uint64) (program.BattlegroundStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	bg, err := n.battleground(id)
	if err != nil {
		return 0, err
	}

	return bg.status, nil
}

func (n *Network) battleground(id uint64) (*battlegroundState, error) {
	state, err := n.deriver.Battleground(id)
	if err != nil {
		return nil, fmt.Errorf("failed to derive battleground: %w", err)
	}

	bg, ok := n.battlegrounds[state.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBattleground, id)
	}

	return bg, nil
}

// Mint credits amount of mint to owner's associated token account.
func (n *Network) Mint(mint, owner solana.PublicKey, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	account, err := address.ResolveStorage(mint, owner, address.OwnerProgram)
	if err != nil {
		return fmt.Errorf("failed to resolve token account: %w", err)
	}

	n.balances[account] += amount

	return nil
}

func (n *Network) Balance(account solana.PublicKey) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.balances[account]
}

func (n *Network) TokenBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	return n.Balance(account), nil
}

func (n *Network) History() []Submitted {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.history)
}

func (n *Network) FetchAccount(_ context.Context, addr solana.PublicKey) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, ok := n.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}

	return slices.Clone(data), nil
}

// Submit executes ix atomically: either every effect is applied or none is.
func (n *Network) Submit(
	_ context.Context,
	ix ledger.Instruction,
	signers []solana.PrivateKey,
	opts ledger.SubmitOptions,
) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sig := n.nextSignature()

	err := n.execute(ix, signers)

	n.history = append(n.history, Submitted{Instruction: ix.Name(), Options: opts, Err: err})

	if err == nil {
		return sig, nil
	}

	var programErr program.ProgramError
	if !errors.As(err, &programErr) {
		return solana.Signature{}, &ledger.SubmitError{Instruction: ix.Name(), Kind: ledger.ErrRejected, Cause: err}
	}

	submitErr := &ledger.SubmitError{
		Instruction: ix.Name(),
		Kind:        ledger.ErrRejected,
		Cause:       programErr,
		Code:        &programErr.Code,
	}

	// Without preflight the failed transaction still lands and has a signature.
	if opts.SkipPreflight {
		submitErr.Signature = sig
	}

	return submitErr.Signature, submitErr
}

func (n *Network) nextSignature() solana.Signature {
	n.signatures++

	var sig solana.Signature
	binary.LittleEndian.PutUint64(sig[:8], n.signatures)

	return sig
}

func (n *Network) execute(ix ledger.Instruction, signers []solana.PrivateKey) error {
	if !ix.ProgramID().Equals(n.config.ProgramID) {
		return fmt.Errorf("%w: program %s", ErrUnknownProgram, ix.ProgramID())
	}

	for _, meta := range ix.Accounts() {
		if meta.IsSigner && !slices.ContainsFunc(signers, func(key solana.PrivateKey) bool {
			return key.PublicKey().Equals(meta.PublicKey)
		}) {
			return fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
		}
	}

	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("failed to read instruction data: %w", err)
	}

	name, err := program.InstructionName(data)
	if err != nil {
		return err //nolint:wrapcheck
	}

	switch name {
	case program.InstructionJoinBattleground:
		return n.join(data, ix.Accounts())
	case program.InstructionParticipantAction:
		return n.action(data, ix.Accounts())
	case program.InstructionFinishBattle:
		return n.finish(ix.Accounts())
	default:
		return fmt.Errorf("%w: %s", program.ErrUnknownInstruction, name)
	}
}

var (
	ErrUnknownProgram   = errors.New("unknown program")
	ErrMissingSignature = errors.New("missing signature")
)

func (n *Network) ata(mint, owner solana.PublicKey) solana.PublicKey {
	account, err := address.ResolveStorage(mint, owner, address.OwnerProgram)
	if err != nil {
		return solana.PublicKey{}
	}

	return account
}

func (n *Network) participant(addr solana.PublicKey) (*program.ParticipantState, error) {
	data, ok := n.accounts[addr]
	if !ok {
		return nil, program.ErrAccountNotInit
	}

	state, err := program.DecodeParticipantState(data)
	if err != nil {
		return nil, program.ErrAccountNotInit
	}

	return state, nil
}

func (n *Network) holdsNft(holder, mint, tokenAccount solana.PublicKey) bool {
	return tokenAccount.Equals(n.ata(mint, holder)) && n.balances[tokenAccount] == 1
}

//nolint:cyclop,funlen // Mirrors the program's account constraints one by one
func (n *Network) join(data []byte, metas []*solana.AccountMeta) error {
	args, err := program.DecodeJoinArgs(data)
	if err != nil {
		return err //nolint:wrapcheck
	}

	accounts, err := program.ParseJoinAccounts(metas)
	if err != nil {
		return err //nolint:wrapcheck
	}

	bg, ok := n.battlegrounds[accounts.Battleground]
	if !ok {
		return program.ErrAccountNotInit
	}

	switch {
	case !accounts.BattleRoyale.Equals(n.battleRoyale),
		!accounts.Authority.Equals(bg.authority),
		!accounts.PotMint.Equals(bg.PotMint),
		!accounts.GameMaster.Equals(n.config.GameMaster):
		return program.ErrConstraintRaw
	}

	expected, err := n.deriver.Participant(bg.address, accounts.NftMint)
	if err != nil || !expected.Address.Equals(accounts.Participant) {
		return program.ErrConstraintRaw
	}

	if bg.status != program.StatusPreparing {
		return ErrWrongBattlegroundStatus
	}

	//nolint:gosec // participant count never approaches the cap type
	if uint32(len(bg.participants)) >= bg.ParticipantsCap {
		return program.ErrConstraintRaw
	}

	if bg.Whitelist != nil && !slices.Equal(bg.Whitelist, args.WhitelistProof) {
		return ErrWhitelistProofInvalid
	}

	if _, exists := n.accounts[accounts.Participant]; exists {
		return program.ErrAccountAlreadyInUse
	}

	if uint64(args.Attack)+uint64(args.Defense) > uint64(n.config.StatBudget) {
		return program.ErrInvalidStatistics
	}

	if !n.holdsNft(accounts.Signer, accounts.NftMint, accounts.PlayerNftTokenAccount) {
		return program.ErrConstraintRaw
	}

	switch {
	case !accounts.PotAccount.Equals(n.ata(bg.PotMint, bg.authority)),
		!accounts.DevAccount.Equals(n.ata(bg.PotMint, accounts.GameMaster)),
		!accounts.PlayerAccount.Equals(n.ata(bg.PotMint, accounts.Signer)):
		return program.ErrConstraintRaw
	}

	if n.balances[accounts.PlayerAccount] < bg.EntryFee {
		return errTokenInsufficientFunds
	}

	defense := args.Defense + BaseDefense

	//nolint:gosec // stats are bounded by the budget
	state, err := program.EncodeParticipantState(program.ParticipantState{
		Bump:         expected.Bump,
		Battleground: bg.address,
		NftMint:      accounts.NftMint,
		Attack:       uint16(args.Attack + BaseAttack),
		Defense:      uint16(defense),
		HealthPoints: uint16(BaseHealth + defense*HealthPerDefense),
		Alive:        true,
	})
	if err != nil {
		return err //nolint:wrapcheck
	}

	devFee := bg.EntryFee * uint64(n.config.FeeBasisPoints) / 10000

	n.accounts[accounts.Participant] = state
	bg.participants = append(bg.participants, accounts.Participant)
	n.balances[accounts.PlayerAccount] -= bg.EntryFee
	n.balances[accounts.PotAccount] += bg.EntryFee - devFee
	n.balances[accounts.DevAccount] += devFee

	return nil
}

//nolint:cyclop,funlen // Mirrors the program's account constraints one by one
func (n *Network) action(data []byte, metas []*solana.AccountMeta) error {
	args, err := program.DecodeActionArgs(data)
	if err != nil {
		return err //nolint:wrapcheck
	}

	accounts, err := program.ParseActionAccounts(metas)
	if err != nil {
		return err //nolint:wrapcheck
	}

	bg, ok := n.battlegrounds[accounts.BattlegroundState]
	if !ok || !accounts.BattleRoyaleState.Equals(n.battleRoyale) {
		return program.ErrAccountNotInit
	}

	if bg.status != program.StatusOngoing {
		return ErrWrongBattlegroundStatus
	}

	actor, err := n.participant(accounts.ParticipantState)
	if err != nil {
		return err
	}

	target, err := n.participant(accounts.TargetParticipantState)
	if err != nil {
		return err
	}

	if !actor.Battleground.Equals(bg.address) || !target.Battleground.Equals(bg.address) {
		return program.ErrConstraintRaw
	}

	if !n.holdsNft(accounts.Signer, actor.NftMint, accounts.PlayerNftTokenAccount) {
		return program.ErrConstraintRaw
	}

	if !actor.Alive || !target.Alive {
		return ErrParticipantDead
	}

	now := n.config.Clock()

	if last, ok := n.lastAction[accounts.ParticipantState]; ok && now.Before(last.Add(bg.Cooldown)) {
		return ErrActionCooldown
	}

	//nolint:gosec // elapsed days are non-negative once the battle started
	days := uint64(now.Sub(bg.startTime) / (24 * time.Hour))
	available := uint64(bg.ActionPointsPerDay)*(days+1) - uint64(actor.ActionPointsSpent)

	if args.ActionPoints == 0 || uint64(args.ActionPoints) > available {
		return program.ErrInsufficientActionPoints
	}

	same := accounts.ParticipantState.Equals(accounts.TargetParticipantState)
	if same {
		target = actor
	}

	points := uint64(args.ActionPoints)

	switch args.ActionType {
	case program.ActionAttack:
		damage := points * uint64(actor.Attack) * 10 / uint64(max(target.Defense, 1))
		if damage >= uint64(target.HealthPoints) {
			target.HealthPoints = 0
			target.Alive = false
		} else {
			target.HealthPoints -= uint16(damage) //nolint:gosec
		}
	case program.ActionHeal:
		ceiling := uint64(BaseHealth) + uint64(target.Defense)*HealthPerDefense
		target.HealthPoints = uint16(min(uint64(target.HealthPoints)+points*10, ceiling)) //nolint:gosec
	case program.ActionFlee:
	default:
		return program.ErrConstraintRaw
	}

	actor.ActionPointsSpent += uint16(args.ActionPoints) //nolint:gosec

	actorData, err := program.EncodeParticipantState(*actor)
	if err != nil {
		return err //nolint:wrapcheck
	}

	targetData, err := program.EncodeParticipantState(*target)
	if err != nil {
		return err //nolint:wrapcheck
	}

	n.accounts[accounts.TargetParticipantState] = targetData
	n.accounts[accounts.ParticipantState] = actorData
	n.lastAction[accounts.ParticipantState] = now

	return nil
}

//nolint:cyclop // Mirrors the program's account constraints one by one
func (n *Network) finish(metas []*solana.AccountMeta) error {
	accounts, err := program.ParseFinishAccounts(metas)
	if err != nil {
		return err //nolint:wrapcheck
	}

	bg, ok := n.battlegrounds[accounts.Battleground]
	if !ok || !accounts.BattleRoyale.Equals(n.battleRoyale) || !accounts.Authority.Equals(bg.authority) {
		return program.ErrAccountNotInit
	}

	if bg.status != program.StatusOngoing {
		return ErrWrongBattlegroundStatus
	}

	winner, err := n.participant(accounts.Participant)
	if err != nil {
		return err
	}

	if !winner.Battleground.Equals(bg.address) || !winner.NftMint.Equals(accounts.NftMint) {
		return program.ErrConstraintRaw
	}

	if !n.holdsNft(accounts.Winner, accounts.NftMint, accounts.WinnerNftTokenAccount) {
		return program.ErrConstraintRaw
	}

	alive := 0

	for _, addr := range bg.participants {
		state, err := n.participant(addr)
		if err == nil && state.Alive {
			alive++
		}
	}

	if !winner.Alive || alive != 1 {
		return ErrNotWinner
	}

	if !accounts.PotMint.Equals(bg.PotMint) ||
		!accounts.PotAccount.Equals(n.ata(bg.PotMint, bg.authority)) ||
		!accounts.WinnerAccount.Equals(n.ata(bg.PotMint, accounts.Winner)) {
		return program.ErrConstraintRaw
	}

	pot := n.balances[accounts.PotAccount]
	n.balances[accounts.PotAccount] = 0
	n.balances[accounts.WinnerAccount] += pot
	bg.status = program.StatusFinished

	return nil
}
