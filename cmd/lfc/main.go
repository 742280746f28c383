package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lfc-network/lfc/internal/config"
	"github.com/lfc-network/lfc/internal/core/application"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/lfc-network/lfc/internal/infrastructure/db"
	"github.com/lfc-network/lfc/internal/infrastructure/signer"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	DatadirEnvVar = "LFC_DATADIR"
	WalletEnvVar  = "LFC_WALLET"

	defaultWallet = "lfc"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cntx = context.Background()
	svc  application.Service
	repo domain.StateRepository
	cfg  *config.Config
)

var (
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Specify the data directory",
		EnvVars: []string{DatadirEnvVar},
	}
	walletFlag = &cli.StringFlag{
		Name:    "wallet",
		Aliases: []string{"w"},
		Usage:   "name of the wallet",
		Value:   defaultWallet,
		EnvVars: []string{WalletEnvVar},
	}
)

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Name = "lfc"
	app.Usage = "bitcoin covenant wallet spending a locked pot round after round"
	app.Commands = append(
		app.Commands,
		&statusCommand,
		&confCommand,
		&createCommand,
		&signCommand,
		&registerCommand,
		&unlockCommand,
		&spendCommand,
		&delCommand,
	)
	app.Flags = []cli.Flag{datadirFlag, walletFlag}

	app.Before = func(ctx *cli.Context) error {
		if ctx.IsSet(datadirFlag.Name) {
			config.BindFlag(config.Datadir, ctx.String(datadirFlag.Name))
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.SetLevel(log.Level(cfg.LogLevel))

		repo, err = db.NewStateRepository(cfg.DbType, cfg.Datadir)
		if err != nil {
			return err
		}
		svc, err = application.NewService(repo, signer.NewFactory(), cfg.Fee)
		return err
	}

	app.After = func(_ *cli.Context) error {
		if repo != nil {
			repo.Close()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}
