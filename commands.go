package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"github.com/vreid/royale/internal/pkg/address"
	"github.com/vreid/royale/internal/pkg/battleground"
	"github.com/vreid/royale/internal/pkg/common"
	"github.com/vreid/royale/internal/pkg/journal"
	"github.com/vreid/royale/internal/pkg/ledger"
	"github.com/vreid/royale/internal/pkg/participant"
	"github.com/vreid/royale/internal/pkg/program"
	"github.com/vreid/royale/internal/pkg/spectator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var ErrInvalidProofNode = errors.New("proof node must be 32 hex encoded bytes")

type RoyaleService struct {
	EchoService *common.EchoService `do:""`

	SpectatorService  *spectator.SpectatorService `do:""`
	ReconcilerService *journal.ReconcilerService  `do:""`
}

// newInjector wires the services every command shares. The journal, and with it
// the bolt file lock, is only provided to commands that write.
func newInjector(cmd *cli.Command, withJournal bool) (*do.RootScope, error) {
	programID := program.DefaultProgramID

	if raw := cmd.String("program-id"); raw != "" {
		parsed, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse program id: %w", err)
		}

		programID = parsed
	}

	i := do.New()

	do.ProvideNamedValue(i, "rpc-url", cmd.String("rpc-url"))
	do.ProvideNamedValue(i, "commitment", cmd.String("commitment"))
	do.ProvideNamedValue(i, "rps", cmd.Float64("rps"))
	do.ProvideNamedValue(i, "confirm-timeout", cmd.Duration("confirm-timeout"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))
	do.ProvideNamedValue(i, "debug", cmd.Bool("debug"))
	do.ProvideNamedValue(i, "program-id", programID)

	keypairPath := cmd.String("keypair")
	do.ProvideNamed(i, "keypair", func(_ do.Injector) (solana.PrivateKey, error) {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair %s: %w", keypairPath, err)
		}

		return key, nil
	})

	do.ProvideValue(i, address.NewDeriver(programID))

	do.Provide(i, common.NewLoggerService)
	do.Provide(i, ledger.NewLedgerService)

	if withJournal {
		do.Provide(i, common.NewDatabaseService)
		do.Provide(i, journal.NewJournalService)
	}

	return i, nil
}

func shutdown(i *do.RootScope) {
	if logger, err := do.Invoke[*zap.Logger](i); err == nil {
		_ = logger.Sync()
	}

	report := i.Shutdown()
	if report != nil && !report.Succeed {
		fmt.Fprintln(os.Stderr, report.Error())
	}
}

func newParticipant(i do.Injector, cmd *cli.Command, nftFlag string) (*participant.Participant, error) {
	ledgerClient := do.MustInvoke[*ledger.Client](i)
	deriver := do.MustInvoke[*address.Deriver](i)

	key, err := do.InvokeNamed[solana.PrivateKey](i, "keypair")
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	potMint, err := solana.PublicKeyFromBase58(cmd.String("pot-mint"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pot mint: %w", err)
	}

	nft, err := solana.PublicKeyFromBase58(cmd.String(nftFlag))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", nftFlag, err)
	}

	bg, err := battleground.New(deriver, cmd.Uint64("battleground"), potMint, ledgerClient)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	//nolint:wrapcheck
	return participant.New(bg, nft, participant.Session{Ledger: ledgerClient, Signer: key})
}

// explain names a custom program error code when it is a known one.
func explain(err error) error {
	code, ok := ledger.ProgramCode(err)
	if !ok {
		return err
	}

	programErr, ok := program.LookupError(code)
	if !ok {
		return err
	}

	return fmt.Errorf("%w: %s", err, programErr.Name)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	//nolint:wrapcheck
	return encoder.Encode(v)
}

func parseProof(raw []string) ([]program.ProofNode, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	proof := make([]program.ProofNode, 0, len(raw))

	for _, s := range raw {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != len(program.ProofNode{}) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProofNode, s)
		}

		proof = append(proof, program.ProofNode(b))
	}

	return proof, nil
}

func submitted(sig solana.Signature, err error) error {
	if err != nil {
		return explain(err)
	}

	fmt.Fprintln(os.Stdout, sig.String())

	return nil
}

func runJoin(ctx context.Context, cmd *cli.Command) error {
	proof, err := parseProof(cmd.StringSlice("proof"))
	if err != nil {
		return err
	}

	i, err := newInjector(cmd, true)
	if err != nil {
		return err
	}
	defer shutdown(i)

	p, err := newParticipant(i, cmd, "nft")
	if err != nil {
		return err
	}

	return submitted(p.Join(ctx, cmd.Uint32("attack"), cmd.Uint32("defense"), proof))
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	actionType, err := program.ParseActionType(cmd.String("type"))
	if err != nil {
		return err //nolint:wrapcheck
	}

	i, err := newInjector(cmd, true)
	if err != nil {
		return err
	}
	defer shutdown(i)

	p, err := newParticipant(i, cmd, "nft")
	if err != nil {
		return err
	}

	target, err := newParticipant(i, cmd, "target")
	if err != nil {
		return err
	}

	return submitted(p.Action(ctx, target, actionType, cmd.Uint32("points")))
}

func runFinish(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd, true)
	if err != nil {
		return err
	}
	defer shutdown(i)

	p, err := newParticipant(i, cmd, "nft")
	if err != nil {
		return err
	}

	return submitted(p.FinishBattle(ctx))
}

func runState(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd, false)
	if err != nil {
		return err
	}
	defer shutdown(i)

	p, err := newParticipant(i, cmd, "nft")
	if err != nil {
		return err
	}

	state, err := p.State(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return printJSON(struct {
		Addresses participant.Addresses     `json:"addresses"`
		State     *program.ParticipantState `json:"state"`
	}{
		Addresses: p.Addresses(),
		State:     state,
	})
}

func runReconcile(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd, true)
	if err != nil {
		return err
	}
	defer shutdown(i)

	journalService := do.MustInvoke[*journal.JournalService](i)
	ledgerClient := do.MustInvoke[*ledger.Client](i)
	logger := do.MustInvoke[*zap.Logger](i)

	resolved, err := journalService.Reconcile(ctx, ledgerClient, logger.Named("reconcile"))
	if err != nil {
		return err //nolint:wrapcheck
	}

	pending, err := journalService.Pending(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	logger.Info("reconcile finished", zap.Int("resolved", resolved), zap.Int("pending", len(pending)))

	return printJSON(pending)
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd, true)
	if err != nil {
		return err
	}
	defer shutdown(i)

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "reconcile-interval", cmd.Duration("reconcile-interval"))

	do.Provide(i, common.NewEchoService)
	do.Provide(i, spectator.NewSpectatorService)
	do.Provide(i, journal.NewReconcilerService)

	do.Provide(i, do.InvokeStruct[RoyaleService])

	royaleService, err := do.Invoke[RoyaleService](i)
	if err != nil {
		return fmt.Errorf("failed to create royale service: %w", err)
	}

	royaleService.ReconcilerService.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(royaleService.EchoService.Start)
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return royaleService.EchoService.Shutdown(shutdownCtx)
	})

	//nolint:wrapcheck
	return g.Wait()
}
