package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/common/covenant"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/lfc-network/lfc/internal/core/ports"
	"github.com/lfc-network/lfc/pkg/wallet"
	log "github.com/sirupsen/logrus"
)

var (
	ErrWalletNotCreated   = errors.New("covenant chain not created yet, run create first")
	ErrChainNotSigned     = errors.New("round template not signed yet, run sign first")
	ErrChainFullyUnlocked = errors.New("all rounds have been unlocked")
)

type service struct {
	repo    domain.StateRepository
	signers ports.SignerFactory
	fee     uint64

	lock *sync.Mutex
}

func NewService(
	repo domain.StateRepository, signers ports.SignerFactory, fee uint64,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing state repository")
	}
	if signers == nil {
		return nil, fmt.Errorf("missing signer factory")
	}
	if fee == 0 {
		fee = common.DefaultFee
	}
	return &service{repo, signers, fee, &sync.Mutex{}}, nil
}

func (s *service) Conf(ctx context.Context, req ConfRequest) (*WalletInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.repo.Get(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStateAlreadyExists, req.Name)
	}

	covMnemonic, err := mnemonicOrNew(req.CovMnemonic)
	if err != nil {
		return nil, err
	}
	spendMnemonic, err := mnemonicOrNew(req.SpendMnemonic)
	if err != nil {
		return nil, err
	}

	state, err := domain.NewCovenantState(
		req.Name, covMnemonic, spendMnemonic,
		req.Amount, req.Delay, req.Account, req.Network,
	)
	if err != nil {
		return nil, err
	}

	cov, err := state.Covenant()
	if err != nil {
		return nil, err
	}
	fundingAddr, err := cov.CovenantAddress(0)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Add(ctx, state); err != nil {
		return nil, err
	}
	log.WithField("wallet", state.Name).Infof("configured on %s", state.Network)

	return &WalletInfo{
		Name:               state.Name,
		CovMnemonic:        state.CovMnemonic,
		SpendMnemonic:      state.SpendMnemonic,
		CovenantDescriptor: cov.Templates().Covenant.String(),
		SpendDescriptor:    cov.Templates().Spend.String(),
		FundingAddress:     fundingAddr.EncodeAddress(),
	}, nil
}

func (s *service) FundingAddress(ctx context.Context, name string) (string, error) {
	state, cov, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	if !state.Rounds.IsEmpty() {
		log.WithField("wallet", name).Warn("covenant chain already crafted")
	}
	addr, err := cov.CovenantAddress(0)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (s *service) Create(ctx context.Context, name, fundingTx string) (*ChainInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, cov, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if !state.Rounds.IsEmpty() {
		return nil, domain.ErrRoundsAlreadyCrafted
	}

	tx, err := domain.DeserializeTx(fundingTx)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid funding tx: %s", common.ErrPrecondition, err)
	}

	templates, err := cov.CraftChain(tx, state.Amount, s.fee)
	if err != nil {
		return nil, err
	}
	if err := state.AddRounds(templates); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, state); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"wallet":  name,
		"funding": tx.TxHash().String(),
	}).Infof("crafted %d rounds", len(templates))

	info := &ChainInfo{
		FundingTxid: tx.TxHash().String(),
		Locked:      uint64(tx.TxOut[0].Value),
		Rounds:      make([]RoundInfo, 0, len(state.Rounds)),
	}
	for _, r := range state.Rounds {
		info.Rounds = append(info.Rounds, toRoundInfo(r))
	}
	return info, nil
}

func (s *service) Sign(ctx context.Context, name string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, _, err := s.load(ctx, name)
	if err != nil {
		return 0, err
	}
	if state.Rounds.IsEmpty() {
		return 0, ErrWalletNotCreated
	}

	signer, err := s.signers.NewSigner(ctx, state)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range state.Rounds {
		if r.IsUnlocked() || isSigned(r.Psbt) {
			continue
		}
		signed, err := signer.SignPsbt(ctx, r.Psbt)
		if err != nil {
			return 0, fmt.Errorf("failed to sign round %d: %w", r.Index, err)
		}

		// The round is stored only if it finalizes into a valid spend.
		ptx, err := copyPacket(signed)
		if err != nil {
			return 0, err
		}
		tx, err := covenant.FinalizeAndExtract(ptx)
		if err != nil {
			return 0, fmt.Errorf("round %d: %w", r.Index, err)
		}
		if err := covenant.Verify(ptx, tx); err != nil {
			return 0, fmt.Errorf("round %d: invalid signatures: %w", r.Index, err)
		}

		r.Psbt = signed
		count++
	}

	if count > 0 {
		if err := s.repo.Update(ctx, state); err != nil {
			return 0, err
		}
	}
	log.WithField("wallet", name).Infof("signed %d rounds", count)
	return count, nil
}

func (s *service) Register(
	ctx context.Context, name string, height uint64, txHex string,
) (*RoundInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, cov, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if state.Rounds.IsEmpty() {
		return nil, ErrWalletNotCreated
	}

	tx, err := domain.DeserializeTx(txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tx: %s", common.ErrPrecondition, err)
	}

	round, err := state.Rounds.Register(height, tx, state.Delay, spendScriptFunc(cov))
	if err != nil {
		return nil, err
	}
	if txid := tx.TxHash().String(); txid != round.Txid() {
		log.WithFields(log.Fields{
			"wallet":   name,
			"round":    round.Index,
			"template": round.Txid(),
		}).Warnf("round unlocked by tx %s", txid)
	}

	if err := s.repo.Update(ctx, state); err != nil {
		return nil, err
	}
	log.WithField("wallet", name).Infof("registered round %d at height %d", round.Index, height)

	info := toRoundInfo(round)
	return &info, nil
}

func (s *service) Unlock(ctx context.Context, name string, height uint64) (string, error) {
	state, _, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	if state.Rounds.IsEmpty() {
		return "", ErrWalletNotCreated
	}

	round := state.Rounds.NextLocked()
	if round == nil {
		return "", ErrChainFullyUnlocked
	}
	if round.Unlock != nil && height < *round.Unlock {
		return "", fmt.Errorf(
			"%w: round %d unlockable from height %d, current %d",
			common.ErrPrecondition, round.Index, *round.Unlock, height,
		)
	}
	if !isSigned(round.Psbt) {
		return "", ErrChainNotSigned
	}

	ptx, err := copyPacket(round.Psbt)
	if err != nil {
		return "", err
	}
	tx, err := covenant.FinalizeAndExtract(ptx)
	if err != nil {
		return "", err
	}
	log.WithField("wallet", name).Debugf("unlocking round %d with tx %s", round.Index, tx.TxHash())
	return serializeTx(tx)
}

func (s *service) Spend(
	ctx context.Context, name string, amount uint64, address string,
) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state, cov, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	if amount == 0 {
		return "", fmt.Errorf("%w: amount must be positive", common.ErrPrecondition)
	}

	addr, err := btcutil.DecodeAddress(address, state.Network.Params)
	if err != nil {
		return "", fmt.Errorf("%w: invalid address: %s", common.ErrPrecondition, err)
	}
	if !addr.IsForNet(state.Network.Params) {
		return "", fmt.Errorf(
			"%w: address is not for %s", common.ErrPrecondition, state.Network,
		)
	}
	outScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", err
	}

	pos, err := state.Rounds.CurrentRoundIndex()
	if err != nil {
		return "", err
	}
	active := state.Rounds.At(pos)

	coins, err := state.Rounds.SpendableCoins()
	if err != nil {
		return "", err
	}
	selected, total, err := selectCoins(coins, amount+s.fee)
	if err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrPrecondition, err)
	}

	inputs := make([]covenant.SpendInput, 0, len(selected))
	for _, c := range selected {
		inputs = append(inputs, covenant.SpendInput{
			OutPoint: c.OutPoint,
			Amount:   c.Amount,
			PkScript: c.PkScript,
			Index:    c.Round,
		})
	}

	outputs := []*wire.TxOut{wire.NewTxOut(int64(amount), outScript)}
	var changeScript []byte
	if change := total - amount - s.fee; change > common.Dust {
		changeScript, err = spendScriptFunc(cov)(active.Index)
		if err != nil {
			return "", err
		}
		outputs = append(outputs, wire.NewTxOut(int64(change), changeScript))
	}

	ptx, err := cov.CraftSpend(inputs, outputs)
	if err != nil {
		return "", err
	}

	signer, err := s.signers.NewSigner(ctx, state)
	if err != nil {
		return "", err
	}
	signed, tx, err := covenant.Sign(ctx, signer, ptx)
	if err != nil {
		return "", err
	}
	if err := covenant.Verify(signed, tx); err != nil {
		return "", fmt.Errorf("invalid signatures: %w", err)
	}

	if err := state.Rounds.SpendCoins(tx, changeScript); err != nil {
		return "", err
	}
	if err := s.repo.Update(ctx, state); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"wallet": name,
		"txid":   tx.TxHash().String(),
	}).Infof("spent %d sats to %s", amount, address)
	return serializeTx(tx)
}

func (s *service) Status(ctx context.Context, name string) (*WalletStatus, error) {
	state, cov, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	fundingAddr, err := cov.CovenantAddress(0)
	if err != nil {
		return nil, err
	}

	status := &WalletStatus{
		Name:           state.Name,
		Network:        state.Network.Name,
		Amount:         state.Amount,
		Delay:          state.Delay,
		Account:        state.Account,
		FundingAddress: fundingAddr.EncodeAddress(),
		SpendableCoins: make([]string, 0),
		Rounds:         make([]RoundInfo, 0, len(state.Rounds)),
	}

	if pos, err := state.Rounds.CurrentRoundIndex(); err == nil {
		index := state.Rounds.At(pos).Index
		status.CurrentRound = &index
	}

	coins, err := state.Rounds.SpendableCoins()
	if err != nil {
		return nil, err
	}
	for _, c := range coins {
		status.SpendableAmount += c.Amount
		status.SpendableCoins = append(status.SpendableCoins, c.OutPoint.String())
	}
	for _, r := range state.Rounds {
		status.Rounds = append(status.Rounds, toRoundInfo(r))
	}
	return status, nil
}

func (s *service) Delete(ctx context.Context, name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	log.WithField("wallet", name).Info("deleted")
	return nil
}

func (s *service) load(
	ctx context.Context, name string,
) (*domain.CovenantState, *covenant.Covenant, error) {
	state, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	cov, err := state.Covenant()
	if err != nil {
		return nil, nil, err
	}
	return state, cov, nil
}

func spendScriptFunc(cov *covenant.Covenant) domain.ScriptFunc {
	return func(index uint32) ([]byte, error) {
		out, err := cov.Templates().Spend.At(index)
		if err != nil {
			return nil, err
		}
		return out.PkScript, nil
	}
}

func mnemonicOrNew(mnemonic string) (string, error) {
	if len(mnemonic) > 0 {
		return mnemonic, nil
	}
	return wallet.NewMnemonic()
}
