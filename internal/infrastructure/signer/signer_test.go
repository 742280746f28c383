package signer_test

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/common/covenant"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/lfc-network/lfc/internal/infrastructure/signer"
	"github.com/lfc-network/lfc/pkg/wallet"
	"github.com/stretchr/testify/require"
)

const (
	covMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	spendMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	otherMnemonic = "letter advice cage absurd amount doctor acoustic avoid letter advice cage above"
)

func newState(t *testing.T) *domain.CovenantState {
	state, err := domain.NewCovenantState(
		"test", covMnemonic, spendMnemonic, 10_000_000, 144, 0, common.RegTest,
	)
	require.NoError(t, err)
	return state
}

func newFundingTx(t *testing.T, c *covenant.Covenant, amount int64) *wire.MsgTx {
	addr, err := c.CovenantAddress(0)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x02}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(amount, pkScript))
	return tx
}

// verify runs the script engine on every input of tx.
func verify(t *testing.T, tx *wire.MsgTx, prevouts map[wire.OutPoint]*wire.TxOut) {
	fetcher := txscript.NewMultiPrevOutFetcher(prevouts)
	sighashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, in := range tx.TxIn {
		prevout, ok := prevouts[in.PreviousOutPoint]
		require.True(t, ok)

		engine, err := txscript.NewEngine(
			prevout.PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sighashes, prevout.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, engine.Execute())
	}
}

func TestSignRounds(t *testing.T) {
	ctx := context.Background()
	state := newState(t)
	c, err := state.Covenant()
	require.NoError(t, err)

	funding := newFundingTx(t, c, 40_000_000)
	templates, err := c.CraftChain(funding, state.Amount, common.DefaultFee)
	require.NoError(t, err)
	require.Len(t, templates, 4)

	s, err := signer.NewFactory().NewSigner(ctx, state)
	require.NoError(t, err)

	previous := funding
	for i, template := range templates {
		signed, tx, err := covenant.Sign(ctx, s, template)
		require.NoError(t, err)

		input := signed.Inputs[0]
		if i == 0 {
			// Backup leaf: both keys sign it, the spend key signs the
			// unroll leaf too.
			require.Len(t, input.TaprootScriptSpendSig, 3)
			require.Len(t, tx.TxIn[0].Witness, 4)
		} else {
			require.Len(t, tx.TxIn[0].Witness, 3)
		}

		verify(t, tx, map[wire.OutPoint]*wire.TxOut{
			tx.TxIn[0].PreviousOutPoint: previous.TxOut[0],
		})
		require.NoError(t, covenant.Verify(signed, tx))
		previous = tx
	}
}

func TestSignTwice(t *testing.T) {
	ctx := context.Background()
	state := newState(t)
	c, err := state.Covenant()
	require.NoError(t, err)

	templates, err := c.CraftChain(newFundingTx(t, c, 20_000_000), state.Amount, common.DefaultFee)
	require.NoError(t, err)

	s, err := signer.NewFactory().NewSigner(ctx, state)
	require.NoError(t, err)

	signed, err := s.SignPsbt(ctx, templates[0])
	require.NoError(t, err)
	count := len(signed.Inputs[0].TaprootScriptSpendSig)

	signed, err = s.SignPsbt(ctx, signed)
	require.NoError(t, err)
	require.Len(t, signed.Inputs[0].TaprootScriptSpendSig, count)
}

func TestSignForeignKeys(t *testing.T) {
	ctx := context.Background()
	state := newState(t)
	c, err := state.Covenant()
	require.NoError(t, err)

	templates, err := c.CraftChain(newFundingTx(t, c, 20_000_000), state.Amount, common.DefaultFee)
	require.NoError(t, err)

	covKey, err := wallet.NewCovenantKey(otherMnemonic, 0)
	require.NoError(t, err)
	spendKey, err := wallet.NewSpendKey(otherMnemonic, 0)
	require.NoError(t, err)

	signed, err := signer.NewSigner(covKey, spendKey).SignPsbt(ctx, templates[0])
	require.NoError(t, err)
	require.Empty(t, signed.Inputs[0].TaprootScriptSpendSig)

	_, err = covenant.FinalizeAndExtract(signed)
	require.Error(t, err)
}

func TestSignKeySpend(t *testing.T) {
	ctx := context.Background()
	state := newState(t)
	c, err := state.Covenant()
	require.NoError(t, err)

	spendAddr, err := c.SpendAddress(1)
	require.NoError(t, err)
	spendScript, err := txscript.PayToAddrScript(spendAddr)
	require.NoError(t, err)
	changeAddr, err := c.SpendAddress(2)
	require.NoError(t, err)
	changeScript, err := txscript.PayToAddrScript(changeAddr)
	require.NoError(t, err)

	coins := []covenant.SpendInput{
		{
			OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 1},
			Amount:   50_000,
			PkScript: spendScript,
			Index:    1,
		},
		{
			OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x04}, Index: 0},
			Amount:   30_000,
			PkScript: changeScript,
			Index:    2,
		},
	}
	outputs := []*wire.TxOut{
		wire.NewTxOut(70_000, changeScript),
		wire.NewTxOut(9_400, spendScript),
	}

	ptx, err := c.CraftSpend(coins, outputs)
	require.NoError(t, err)

	s, err := signer.NewFactory().NewSigner(ctx, state)
	require.NoError(t, err)
	signed, tx, err := covenant.Sign(ctx, s, ptx)
	require.NoError(t, err)

	prevouts := make(map[wire.OutPoint]*wire.TxOut)
	for i, in := range signed.Inputs {
		require.Len(t, in.TaprootKeySpendSig, 64)
		prevouts[tx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
	}
	verify(t, tx, prevouts)

	t.Run("wrong index", func(t *testing.T) {
		invalid := append([]covenant.SpendInput{}, coins...)
		invalid[1].Index = 3
		_, err := c.CraftSpend(invalid, outputs)
		require.ErrorIs(t, err, common.ErrPrecondition)
	})

	t.Run("outputs exceed inputs", func(t *testing.T) {
		_, err := c.CraftSpend(coins, []*wire.TxOut{wire.NewTxOut(80_001, spendScript)})
		require.ErrorIs(t, err, common.ErrPrecondition)
	})
}
