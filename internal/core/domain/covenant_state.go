package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/common/covenant"
	"github.com/lfc-network/lfc/pkg/wallet"
)

// CovenantState is everything a wallet persists: both mnemonics, the
// covenant policy and the rounds ledger.
type CovenantState struct {
	Name string `json:"-"`
	// Mnemonic of the covenant locking/unlocking policy
	CovMnemonic string `json:"cov_mnemonic"`
	// Mnemonic of the spend policy
	SpendMnemonic string `json:"spend_mnemonic"`
	// Max amount spendable at each round (sats)
	Amount uint64 `json:"amount"`
	// Delay between 2 rounds in blocks (nSequence)
	Delay   uint16         `json:"delay"`
	Account uint32         `json:"account"`
	Network common.Network `json:"network"`
	Rounds  Rounds         `json:"rounds,omitempty"`
}

type StateRepository interface {
	Add(ctx context.Context, state *CovenantState) error
	Get(ctx context.Context, name string) (*CovenantState, error)
	Update(ctx context.Context, state *CovenantState) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Close()
}

func NewCovenantState(
	name, covMnemonic, spendMnemonic string,
	amount uint64, delay uint16, account uint32, net common.Network,
) (*CovenantState, error) {
	state := &CovenantState{
		Name:          name,
		CovMnemonic:   covMnemonic,
		SpendMnemonic: spendMnemonic,
		Amount:        amount,
		Delay:         delay,
		Account:       account,
		Network:       net,
		Rounds:        make(Rounds, 0),
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

// Validate checks the policy parameters and the rounds ledger. It must be
// called after every load.
func (s *CovenantState) Validate() error {
	if len(s.Name) <= 0 {
		return fmt.Errorf("missing wallet name")
	}
	if s.Amount == 0 {
		return fmt.Errorf("round amount must be positive")
	}
	if s.Delay == 0 {
		return fmt.Errorf("delay must be positive")
	}
	if s.Account >= wallet.MaxAccount {
		return fmt.Errorf("%w: %s", common.ErrDerivation, wallet.ErrAccountOutOfRange)
	}
	if s.Network.Params == nil {
		return fmt.Errorf("missing network")
	}
	if err := wallet.ValidateMnemonic(s.CovMnemonic); err != nil {
		return fmt.Errorf("%w: covenant mnemonic: %s", common.ErrInvalidMnemonic, err)
	}
	if err := wallet.ValidateMnemonic(s.SpendMnemonic); err != nil {
		return fmt.Errorf("%w: spend mnemonic: %s", common.ErrInvalidMnemonic, err)
	}
	if strings.Join(strings.Fields(s.CovMnemonic), " ") ==
		strings.Join(strings.Fields(s.SpendMnemonic), " ") {
		return fmt.Errorf(
			"%w: covenant and spend mnemonics must differ", common.ErrInvalidMnemonic,
		)
	}
	if s.Rounds == nil {
		s.Rounds = make(Rounds, 0)
	}
	return s.Rounds.Init()
}

func (s *CovenantState) CovenantKey() (*wallet.CovenantKey, error) {
	return wallet.NewCovenantKey(s.CovMnemonic, s.Account)
}

func (s *CovenantState) SpendKey() (*wallet.SpendKey, error) {
	return wallet.NewSpendKey(s.SpendMnemonic, s.Account)
}

func (s *CovenantState) CovXPub(subAccount uint32) (*wallet.CovenantXPub, error) {
	key, err := s.CovenantKey()
	if err != nil {
		return nil, err
	}
	return key.XPub(subAccount)
}

func (s *CovenantState) SpendXPub(subAccount uint32) (*wallet.SpendXPub, error) {
	key, err := s.SpendKey()
	if err != nil {
		return nil, err
	}
	return key.XPub(subAccount)
}

// Covenant compiles the templates of the wallet.
func (s *CovenantState) Covenant() (*covenant.Covenant, error) {
	covXPub, err := s.CovXPub(wallet.DefaultSubAccount)
	if err != nil {
		return nil, err
	}
	spendXPub, err := s.SpendXPub(wallet.DefaultSubAccount)
	if err != nil {
		return nil, err
	}
	return covenant.New(covXPub, spendXPub, s.Delay, s.Network)
}

// AddRounds appends one locked round per template. A chain can be crafted
// only once per wallet.
func (s *CovenantState) AddRounds(templates []*psbt.Packet) error {
	if !s.Rounds.IsEmpty() {
		return ErrRoundsAlreadyCrafted
	}
	rounds := make(Rounds, 0, len(templates))
	for i, ptx := range templates {
		rounds = append(rounds, NewRound(uint32(i+1), ptx))
	}
	if err := rounds.Init(); err != nil {
		return err
	}
	s.Rounds = rounds
	return nil
}
