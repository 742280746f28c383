package domain

import "errors"

var (
	ErrLedgerCorrupted      = errors.New("rounds ledger is corrupted")
	ErrNoActiveRound        = errors.New("no active round")
	ErrMissingCoinTx        = errors.New("coin has no recorded transaction")
	ErrUnknownRoundTx       = errors.New("transaction does not spend any round")
	ErrRoundAlreadyUnlocked = errors.New("round already unlocked")
	ErrRoundOutOfOrder      = errors.New("round is not the next one to unlock")
	ErrUnknownCoin          = errors.New("coin not found")
	ErrRoundsAlreadyCrafted = errors.New("rounds already crafted")
	ErrStateNotFound        = errors.New("wallet not found")
	ErrStateAlreadyExists   = errors.New("wallet already exists")
)
