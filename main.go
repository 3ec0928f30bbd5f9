package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}

	return filepath.Join(home, ".config", "solana", "id.json")
}

var battlegroundFlags = []cli.Flag{
	&cli.Uint64Flag{
		Name:     "battleground",
		Usage:    "battleground id",
		Required: true,
		Sources:  cli.EnvVars("ROYALE_BATTLEGROUND"),
	},
	&cli.StringFlag{
		Name:     "pot-mint",
		Usage:    "mint of the token the battleground pot is paid in",
		Required: true,
		Sources:  cli.EnvVars("ROYALE_POT_MINT"),
	},
	&cli.StringFlag{
		Name:     "nft",
		Usage:    "mint of the NFT entering the battle",
		Required: true,
		Sources:  cli.EnvVars("ROYALE_NFT"),
	},
}

func withBattlegroundFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, battlegroundFlags...), flags...)
}

//nolint:funlen
func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "royale",
		Usage: "take part in on-chain battle royales",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Value:   "http://127.0.0.1:8899",
				Sources: cli.EnvVars("ROYALE_RPC_URL"),
			},
			&cli.StringFlag{
				Name:    "keypair",
				Value:   defaultKeypairPath(),
				Sources: cli.EnvVars("ROYALE_KEYPAIR"),
			},
			&cli.StringFlag{
				Name:    "program-id",
				Sources: cli.EnvVars("ROYALE_PROGRAM_ID"),
			},
			&cli.StringFlag{
				Name:    "commitment",
				Value:   "confirmed",
				Sources: cli.EnvVars("ROYALE_COMMITMENT"),
			},
			&cli.Float64Flag{
				Name:    "rps",
				Usage:   "RPC requests per second, 0 for unlimited",
				Value:   10, //nolint:mnd
				Sources: cli.EnvVars("ROYALE_RPS"),
			},
			&cli.DurationFlag{
				Name:    "confirm-timeout",
				Value:   60 * time.Second, //nolint:mnd
				Sources: cli.EnvVars("ROYALE_CONFIRM_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./royale/data",
				Sources: cli.EnvVars("ROYALE_DATA_DIR"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Sources: cli.EnvVars("ROYALE_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "join",
				Usage: "join a battleground with an NFT",
				Flags: withBattlegroundFlags(
					&cli.Uint32Flag{
						Name:     "attack",
						Required: true,
					},
					&cli.Uint32Flag{
						Name:     "defense",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "proof",
						Usage: "hex encoded whitelist proof node, repeatable",
					},
				),
				Action: runJoin,
			},
			{
				Name:  "action",
				Usage: "spend action points on a target",
				Flags: withBattlegroundFlags(
					&cli.StringFlag{
						Name:     "target",
						Usage:    "NFT mint of the target participant",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "attack, heal or flee",
						Value: "attack",
					},
					&cli.Uint32Flag{
						Name:     "points",
						Required: true,
					},
				),
				Action: runAction,
			},
			{
				Name:   "finish",
				Usage:  "claim the pot as the last one standing",
				Flags:  withBattlegroundFlags(),
				Action: runFinish,
			},
			{
				Name:   "state",
				Usage:  "print the participant state",
				Flags:  withBattlegroundFlags(),
				Action: runState,
			},
			{
				Name:   "reconcile",
				Usage:  "re-query submissions with an unknown outcome",
				Action: runReconcile,
			},
			{
				Name:  "serve",
				Usage: "serve the spectator API",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("ROYALE_PORT"),
					},
					&cli.DurationFlag{
						Name:    "reconcile-interval",
						Usage:   "how often pending submissions are re-queried, 0 disables",
						Value:   30 * time.Second, //nolint:mnd
						Sources: cli.EnvVars("ROYALE_RECONCILE_INTERVAL"),
					},
				},
				Action: runServer,
			},
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		stop()
		log.Fatal(err) //nolint:gocritic
	}
}
