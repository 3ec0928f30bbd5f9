package spectator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/common"
	"github.com/vreid/royale/internal/pkg/journal"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/program"
)

type AccountReader interface {
	FetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	TokenBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
}

type SubmissionLister interface {
	List(ctx context.Context) ([]ledger.Submission, error)
}

// SpectatorService exposes read-only views of the ledger state and the local
// submission journal.
type SpectatorService struct {
	Reader  AccountReader
	Deriver *address.Deriver
	Journal SubmissionLister
}

func NewSpectatorService(i do.Injector) (*SpectatorService, error) {
	ledgerClient := do.MustInvoke[*ledger.Client](i)
	deriver := do.MustInvoke[*address.Deriver](i)
	journalService := do.MustInvoke[*journal.JournalService](i)

	result := &SpectatorService{
		Reader:  ledgerClient,
		Deriver: deriver,
		Journal: journalService,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Register)

	return result, nil
}

func (s *SpectatorService) Register(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiGroup := e.Group("/api")

	apiGroup.GET("/battle-royale", s.GetBattleRoyale)
	apiGroup.GET("/battlegrounds/:id/participants/:nft", s.GetParticipant)
	apiGroup.GET("/battlegrounds/:id/pot/:mint", s.GetPot)
	apiGroup.GET("/journal", s.GetJournal)
}

func (s *SpectatorService) fetch(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	data, err := s.Reader.FetchAccount(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "account not found")
	}

	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadGateway, "failed to fetch account").SetInternal(err)
	}

	return data, nil
}

func (s *SpectatorService) GetBattleRoyale(c echo.Context) error {
	derived, err := s.Deriver.BattleRoyale()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to derive battle royale address")
	}

	data, err := s.fetch(c.Request().Context(), derived.Address)
	if err != nil {
		return err
	}

	state, err := program.DecodeBattleRoyaleState(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to decode battle royale state").SetInternal(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, BattleRoyaleResponse{
		Address: derived.Address,
		State:   state,
	})
}

func (s *SpectatorService) GetParticipant(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid battleground id")
	}

	nft, err := solana.PublicKeyFromBase58(c.Param("nft"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid nft mint")
	}

	battleground, err := s.Deriver.Battleground(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to derive battleground address")
	}

	derived, err := s.Deriver.Participant(battleground.Address, nft)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to derive participant address")
	}

	data, err := s.fetch(c.Request().Context(), derived.Address)
	if err != nil {
		return err
	}

	state, err := program.DecodeParticipantState(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to decode participant state").SetInternal(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, ParticipantResponse{
		BattlegroundID: id,
		Address:        derived.Address,
		State:          state,
	})
}

// GetPot reports what the battleground's pot account holds in the given mint.
func (s *SpectatorService) GetPot(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid battleground id")
	}

	mint, err := solana.PublicKeyFromBase58(c.Param("mint"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pot mint")
	}

	authority, err := s.Deriver.Authority(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to derive authority address")
	}

	potAccount, err := address.ResolveStorage(mint, authority.Address, address.OwnerProgram)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve pot account")
	}

	balance, err := s.Reader.TokenBalance(c.Request().Context(), potAccount)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "pot account not found")
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch pot balance").SetInternal(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, PotResponse{
		BattlegroundID: id,
		Mint:           mint,
		Account:        potAccount,
		Balance:        balance,
	})
}

func (s *SpectatorService) GetJournal(c echo.Context) error {
	submissions, err := s.Journal.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list submissions").SetInternal(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, submissions)
}
