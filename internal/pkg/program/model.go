package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

type ActionType uint8

const (
	ActionAttack ActionType = 0
	ActionHeal   ActionType = 1
	ActionFlee   ActionType = 2
)

func (a ActionType) String() string {
	switch a {
	case ActionAttack:
		return "attack"
	case ActionHeal:
		return "heal"
	case ActionFlee:
		return "flee"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "attack":
		return ActionAttack, nil
	case "heal":
		return ActionHeal, nil
	case "flee":
		return ActionFlee, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionType, s)
	}
}

type BattlegroundStatus uint8

const (
	StatusPreparing BattlegroundStatus = 0
	StatusOngoing   BattlegroundStatus = 1
	StatusFinished  BattlegroundStatus = 2
)

// ProofNode is one opaque element of a whitelist membership proof.
type ProofNode [32]byte

type JoinArgs struct {
	Attack  uint32
	Defense uint32
	// Nil when the battleground does not restrict entry.
	WhitelistProof []ProofNode
}

type ActionArgs struct {
	ActionType   ActionType
	ActionPoints uint32
}

type ParticipantState struct {
	Bump              uint8            `json:"bump"`
	Battleground      solana.PublicKey `json:"battleground"`
	NftMint           solana.PublicKey `json:"nft_mint"`
	Attack            uint16           `json:"attack"`
	Defense           uint16           `json:"defense"`
	HealthPoints      uint16           `json:"health_points"`
	ActionPointsSpent uint16           `json:"action_points_spent"`
	Alive             bool             `json:"alive"`
}

type BattleRoyaleState struct {
	Bump               uint8            `json:"bump"`
	GameMaster         solana.PublicKey `json:"game_master"`
	Fee                uint16           `json:"fee"`
	LastBattlegroundID uint64           `json:"last_battleground_id"`
}
