package main

import (
	"fmt"
	"strings"

	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/core/application"
	"github.com/lfc-network/lfc/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var (
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "bitcoin network: bitcoin, testnet, signet, regtest (defaults to LFC_NETWORK)",
	}
	accountFlag = &cli.UintFlag{
		Name:  "account",
		Usage: fmt.Sprintf("derivation account of the wallet keys, 0-%d", wallet.MaxAccount-1),
	}
	amountFlag = &cli.Float64Flag{
		Name:  "amount",
		Usage: "max amount spendable at each round in BTC",
	}
	delayFlag = &cli.UintFlag{
		Name:  "delay",
		Usage: "min number of blocks between 2 rounds",
	}
	fundingTxFlag = &cli.StringFlag{
		Name:  "tx",
		Usage: "raw transaction funding the covenant address, hex encoded",
	}
	heightFlag = &cli.Uint64Flag{
		Name:     "height",
		Usage:    "current block height",
		Required: true,
	}
	yesFlag = &cli.BoolFlag{
		Name:  "yes",
		Usage: "skip confirmation",
	}
)

var (
	statusCommand = cli.Command{
		Name:   "status",
		Usage:  "Display the status of the wallet",
		Action: status,
	}
	confCommand = cli.Command{
		Name:   "conf",
		Usage:  "Generate a new wallet config",
		Flags:  []cli.Flag{networkFlag, accountFlag, amountFlag, delayFlag},
		Action: conf,
	}
	createCommand = cli.Command{
		Name:   "create",
		Usage:  "Create the chain of round transactions from the funding transaction",
		Flags:  []cli.Flag{fundingTxFlag},
		Action: create,
	}
	signCommand = cli.Command{
		Name:   "sign",
		Usage:  "Sign all the round transactions",
		Action: sign,
	}
	registerCommand = cli.Command{
		Name:      "register",
		Usage:     "Register a broadcasted transaction",
		ArgsUsage: "<height> <tx hex>",
		Action:    register,
	}
	unlockCommand = cli.Command{
		Name:   "unlock",
		Usage:  "Print the transaction unlocking the next round",
		Flags:  []cli.Flag{heightFlag},
		Action: unlock,
	}
	spendCommand = cli.Command{
		Name:      "spend",
		Aliases:   []string{"send"},
		Usage:     "Spend from the available coins",
		ArgsUsage: "<amount in BTC> <address>",
		Action:    spend,
	}
	delCommand = cli.Command{
		Name:   "del",
		Usage:  "Delete the wallet",
		Flags:  []cli.Flag{yesFlag},
		Action: del,
	}
)

func status(ctx *cli.Context) error {
	resp, err := svc.Status(cntx, walletName(ctx))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func conf(ctx *cli.Context) error {
	net := cfg.Network
	if ctx.IsSet(networkFlag.Name) {
		var err error
		if net, err = common.NetworkFromString(ctx.String(networkFlag.Name)); err != nil {
			return err
		}
	}

	account, err := uintOrInput(
		ctx, accountFlag.Name,
		fmt.Sprintf("Select a derivation account for the wallet: 0-%d", wallet.MaxAccount-1),
	)
	if err != nil {
		return err
	}

	covMnemonic, err := readMnemonic(
		"Enter the mnemonic for your covenant wallet (12 words), " +
			"if the input is empty a mnemonic phrase will be automatically generated:",
	)
	if err != nil {
		return err
	}
	spendMnemonic, err := readMnemonic(
		"Enter the mnemonic for your spending wallet (12 words), " +
			"if the input is empty a mnemonic phrase will be automatically generated:",
	)
	if err != nil {
		return err
	}

	amount := ctx.Float64(amountFlag.Name)
	if !ctx.IsSet(amountFlag.Name) {
		if amount, err = floatInput("Enter the max amount allowed to spend at each round: (BTC)"); err != nil {
			return err
		}
	}
	sats, err := toSatoshis(amount)
	if err != nil {
		return err
	}

	delay, err := uintOrInput(ctx, delayFlag.Name, "Enter the number of block minimum between 2 rounds:")
	if err != nil {
		return err
	}
	if delay > 0xffff {
		return fmt.Errorf("delay must be at most %d blocks", 0xffff)
	}

	resp, err := svc.Conf(cntx, application.ConfRequest{
		Name:          walletName(ctx),
		CovMnemonic:   covMnemonic,
		SpendMnemonic: spendMnemonic,
		Amount:        sats,
		Delay:         uint16(delay),
		Account:       uint32(account),
		Network:       net,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func create(ctx *cli.Context) error {
	name := walletName(ctx)

	rawTx := ctx.String(fundingTxFlag.Name)
	if len(rawTx) <= 0 {
		addr, err := svc.FundingAddress(cntx, name)
		if err != nil {
			return err
		}
		printErr("Address to fund the contract: %s", addr)
		if rawTx, err = input("Enter raw tx that fund the contract:"); err != nil {
			return err
		}
	}

	resp, err := svc.Create(cntx, name, rawTx)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func sign(ctx *cli.Context) error {
	count, err := svc.Sign(cntx, walletName(ctx))
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"signed": count})
}

func register(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <height> <tx hex>")
	}
	height, err := parseUint(ctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("invalid height: %s", err)
	}

	resp, err := svc.Register(cntx, walletName(ctx), height, ctx.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func unlock(ctx *cli.Context) error {
	txHex, err := svc.Unlock(cntx, walletName(ctx), ctx.Uint64(heightFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"tx": txHex})
}

func spend(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <amount in BTC> <address>")
	}
	amount, err := parseFloat(ctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("invalid amount: %s", err)
	}
	sats, err := toSatoshis(amount)
	if err != nil {
		return err
	}

	txHex, err := svc.Spend(cntx, walletName(ctx), sats, ctx.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"tx": txHex})
}

func del(ctx *cli.Context) error {
	name := walletName(ctx)
	if !ctx.Bool(yesFlag.Name) {
		answer, err := input(fmt.Sprintf("Are you sure to delete wallet %s?", name))
		if err != nil {
			return err
		}
		if answer = strings.ToLower(answer); answer != "y" && answer != "yes" {
			return nil
		}
	}
	return svc.Delete(cntx, name)
}
