package spectator

import (
	"github.com/gagliardetto/solana-go"
	"github.com/vreid/royale/internal/pkg/program"
)

type BattleRoyaleResponse struct {
	Address solana.PublicKey           `json:"address"`
	State   *program.BattleRoyaleState `json:"state"`
}

type ParticipantResponse struct {
	BattlegroundID uint64                    `json:"battleground_id"`
	Address        solana.PublicKey          `json:"address"`
	State          *program.ParticipantState `json:"state"`
}

type PotResponse struct {
	BattlegroundID uint64           `json:"battleground_id"`
	Mint           solana.PublicKey `json:"mint"`
	Account        solana.PublicKey `json:"account"`
	Balance        uint64           `json:"balance"`
}
