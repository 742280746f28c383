package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

func walletName(ctx *cli.Context) string {
	return strings.TrimSuffix(ctx.String(walletFlag.Name), ".conf")
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}

	fmt.Println(string(jsonBytes))
	return nil
}

func printErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func input(prompt string) (string, error) {
	printErr(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && len(line) <= 0 {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readMnemonic hides the input when reading from a terminal.
func readMnemonic(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return input(prompt)
	}

	printErr(prompt)
	mnemonic, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // new line
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(string(mnemonic)), " "), nil
}

func uintOrInput(ctx *cli.Context, flag, prompt string) (uint64, error) {
	if ctx.IsSet(flag) {
		return uint64(ctx.Uint(flag)), nil
	}
	str, err := input(prompt)
	if err != nil {
		return 0, err
	}
	return parseUint(str)
}

func floatInput(prompt string) (float64, error) {
	str, err := input(prompt)
	if err != nil {
		return 0, err
	}
	return parseFloat(str)
}

func parseUint(str string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(str), 10, 64)
}

func parseFloat(str string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

func toSatoshis(btc float64) (uint64, error) {
	amount, err := btcutil.NewAmount(btc)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %s", err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return uint64(amount), nil
}
