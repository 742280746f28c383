package application

import (
	"context"

	"github.com/lfc-network/lfc/common"
)

type Service interface {
	Conf(ctx context.Context, req ConfRequest) (*WalletInfo, error)
	FundingAddress(ctx context.Context, name string) (string, error)
	Create(ctx context.Context, name, fundingTx string) (*ChainInfo, error)
	Sign(ctx context.Context, name string) (int, error)
	Register(ctx context.Context, name string, height uint64, tx string) (*RoundInfo, error)
	Unlock(ctx context.Context, name string, height uint64) (string, error)
	Spend(ctx context.Context, name string, amount uint64, address string) (string, error)
	Status(ctx context.Context, name string) (*WalletStatus, error)
	Delete(ctx context.Context, name string) error
}

// ConfRequest holds the parameters of a new wallet. Empty mnemonics are
// generated.
type ConfRequest struct {
	Name          string
	CovMnemonic   string
	SpendMnemonic string
	Amount        uint64
	Delay         uint16
	Account       uint32
	Network       common.Network
}

type WalletInfo struct {
	Name               string `json:"name"`
	CovMnemonic        string `json:"cov_mnemonic"`
	SpendMnemonic      string `json:"spend_mnemonic"`
	CovenantDescriptor string `json:"covenant_descriptor"`
	SpendDescriptor    string `json:"spend_descriptor"`
	FundingAddress     string `json:"funding_address"`
}

type ChainInfo struct {
	FundingTxid string      `json:"funding_txid"`
	Locked      uint64      `json:"locked"`
	Rounds      []RoundInfo `json:"rounds"`
}

type RoundInfo struct {
	Index    uint32  `json:"index"`
	State    string  `json:"state"`
	Txid     string  `json:"txid"`
	Spend    uint64  `json:"spend"`
	Relock   uint64  `json:"relock"`
	Signed   bool    `json:"signed"`
	Unlock   *uint64 `json:"unlock,omitempty"`
	Unlocked *uint64 `json:"unlocked,omitempty"`
	Coins    int     `json:"coins"`
}

type WalletStatus struct {
	Name            string      `json:"name"`
	Network         string      `json:"network"`
	Amount          uint64      `json:"amount"`
	Delay           uint16      `json:"delay"`
	Account         uint32      `json:"account"`
	FundingAddress  string      `json:"funding_address"`
	CurrentRound    *uint32     `json:"current_round,omitempty"`
	SpendableAmount uint64      `json:"spendable_amount"`
	SpendableCoins  []string    `json:"spendable_coins"`
	Rounds          []RoundInfo `json:"rounds"`
}
