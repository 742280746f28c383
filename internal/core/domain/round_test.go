package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/stretchr/testify/require"
)

const (
	covMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	spendMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"

	delay  = uint16(144)
	amount = uint64(10_000_000)
)

func newState(t *testing.T) *domain.CovenantState {
	state, err := domain.NewCovenantState(
		"test", covMnemonic, spendMnemonic, amount, delay, 0, common.RegTest,
	)
	require.NoError(t, err)
	return state
}

// newChainState returns a wallet with a crafted chain locking 0.4 BTC.
func newChainState(t *testing.T) *domain.CovenantState {
	state := newState(t)
	c, err := state.Covenant()
	require.NoError(t, err)

	addr, err := c.CovenantAddress(0)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x0f}, 0), nil, nil))
	funding.AddTxOut(wire.NewTxOut(40_000_000, pkScript))

	templates, err := c.CraftChain(funding, state.Amount, common.DefaultFee)
	require.NoError(t, err)
	require.NoError(t, state.AddRounds(templates))
	return state
}

func spendScripts(t *testing.T, state *domain.CovenantState) domain.ScriptFunc {
	c, err := state.Covenant()
	require.NoError(t, err)
	return func(index uint32) ([]byte, error) {
		addr, err := c.SpendAddress(index)
		if err != nil {
			return nil, err
		}
		return txscript.PayToAddrScript(addr)
	}
}

func lockedRound(index uint32) *domain.Round {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(index)}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))
	ptx, _ := psbt.NewFromUnsignedTx(tx)
	return domain.NewRound(index, ptx)
}

func activeRound(index uint32) *domain.Round {
	r := lockedRound(index)
	r.Spend = r.Psbt.UnsignedTx
	return r
}

func inactiveRound(index uint32) *domain.Round {
	r := activeRound(index)
	r.Next = lockedRound(index + 1)
	return r
}

func TestRoundState(t *testing.T) {
	require.Equal(t, domain.RoundLocked, lockedRound(1).State())
	require.Equal(t, domain.RoundActive, activeRound(1).State())
	require.Equal(t, domain.RoundInactive, inactiveRound(1).State())

	r := activeRound(1)
	require.False(t, r.IsSpendable())
	r.Coins = append(r.Coins, wire.OutPoint{Hash: r.Spend.TxHash(), Index: 0})
	require.True(t, r.IsSpendable())

	coins, err := r.SpendableCoins()
	require.ErrorIs(t, err, domain.ErrMissingCoinTx)
	require.Nil(t, coins)

	r.Transactions = append(r.Transactions, r.Spend)
	spendable, err := r.SpendableAmount()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), spendable)

	r.Coins = append(r.Coins, wire.OutPoint{Hash: r.Spend.TxHash(), Index: 5})
	_, err = r.SpendableAmount()
	require.ErrorIs(t, err, domain.ErrMissingCoinTx)
}

func TestRoundsInit(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fixtures := []domain.Rounds{
			{},
			{lockedRound(1)},
			{lockedRound(3), inactiveRound(1), activeRound(2)},
			{inactiveRound(2), inactiveRound(1), activeRound(3)},
		}
		for _, rounds := range fixtures {
			require.NoError(t, rounds.Init())
			for i, r := range rounds {
				require.Equal(t, uint32(i+1), r.Index)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name   string
			rounds domain.Rounds
		}{
			{"duplicate index", domain.Rounds{lockedRound(1), lockedRound(2), lockedRound(2)}},
			{"gap", domain.Rounds{lockedRound(1), lockedRound(3)}},
			{"not starting at 1", domain.Rounds{lockedRound(2), lockedRound(3)}},
			{"zero index", domain.Rounds{lockedRound(0), lockedRound(1)}},
			{"two active rounds", domain.Rounds{activeRound(1), activeRound(2), lockedRound(3)}},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				require.ErrorIs(t, f.rounds.Init(), domain.ErrLedgerCorrupted)
			})
		}
	})

	t.Run("current round", func(t *testing.T) {
		rounds := domain.Rounds{activeRound(2), inactiveRound(1), lockedRound(3)}
		pos, err := rounds.CurrentRoundIndex()
		require.NoError(t, err)
		require.Equal(t, 1, pos)
		require.Equal(t, uint32(2), rounds.At(pos).Index)
		require.Equal(t, uint32(3), rounds.NextLocked().Index)
		require.True(t, rounds.IsUnlocked())

		rounds = domain.Rounds{lockedRound(1), lockedRound(2)}
		_, err = rounds.CurrentRoundIndex()
		require.ErrorIs(t, err, domain.ErrNoActiveRound)
		require.False(t, rounds.IsUnlocked())
		require.Nil(t, rounds.At(2))
	})
}

func TestRegister(t *testing.T) {
	state := newChainState(t)
	scripts := spendScripts(t, state)
	rounds := state.Rounds
	require.Len(t, rounds, 4)

	_, err := rounds.Register(99, rounds[1].Psbt.UnsignedTx, delay, scripts)
	require.ErrorIs(t, err, domain.ErrRoundOutOfOrder)

	unknown := wire.NewMsgTx(2)
	unknown.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0xaa}, 0), nil, nil))
	_, err = rounds.Register(99, unknown, delay, scripts)
	require.ErrorIs(t, err, domain.ErrUnknownRoundTx)

	first, err := rounds.Register(100, rounds[0].Psbt.UnsignedTx, delay, scripts)
	require.NoError(t, err)
	require.Equal(t, uint32(1), first.Index)
	require.Equal(t, domain.RoundActive, first.State())
	require.Equal(t, uint64(100), *first.Unlocked)
	require.Nil(t, first.Previous)
	require.Len(t, first.Coins, 1)
	require.Equal(t, uint32(1), first.Coins[0].Index)
	require.Equal(t, uint64(244), *rounds[1].Unlock)

	spendable, err := rounds.SpendableAmount()
	require.NoError(t, err)
	require.Equal(t, amount, spendable)

	_, err = rounds.Register(101, rounds[0].Psbt.UnsignedTx, delay, scripts)
	require.ErrorIs(t, err, domain.ErrRoundAlreadyUnlocked)

	second, err := rounds.Register(250, rounds[1].Psbt.UnsignedTx, delay, scripts)
	require.NoError(t, err)
	require.Equal(t, domain.RoundInactive, rounds[0].State())
	require.Equal(t, domain.RoundActive, second.State())
	require.Equal(t, uint32(2), rounds[0].Next.Index)
	require.Nil(t, rounds[0].Next.Previous)
	require.Equal(t, uint32(1), second.Previous.Index)
	require.Nil(t, second.Previous.Next)
	require.Equal(t, uint64(394), *rounds[2].Unlock)

	pos, err := rounds.CurrentRoundIndex()
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	coins, err := rounds.SpendableCoins()
	require.NoError(t, err)
	require.Len(t, coins, 2)
	spendable, err = rounds.SpendableAmount()
	require.NoError(t, err)
	require.Equal(t, 2*amount, spendable)

	t.Run("spend coins", func(t *testing.T) {
		changeScript, err := scripts(2)
		require.NoError(t, err)

		tx := wire.NewMsgTx(2)
		tx.AddTxIn(wire.NewTxIn(&coins[0].OutPoint, nil, nil))
		tx.AddTxOut(wire.NewTxOut(4_000_000, []byte{txscript.OP_TRUE}))
		tx.AddTxOut(wire.NewTxOut(5_999_400, changeScript))

		require.NoError(t, rounds.SpendCoins(tx, changeScript))

		spendable, err := rounds.SpendableAmount()
		require.NoError(t, err)
		require.Equal(t, amount+5_999_400, spendable)
		require.Empty(t, rounds[0].Coins)
		require.Len(t, rounds[1].Coins, 2)

		require.ErrorIs(t, rounds.SpendCoins(tx, changeScript), domain.ErrUnknownCoin)
	})
}

func TestCovenantStateJSON(t *testing.T) {
	t.Run("without rounds", func(t *testing.T) {
		state := newState(t)
		buf, err := json.Marshal(state)
		require.NoError(t, err)
		require.NotContains(t, string(buf), "rounds")
		require.Contains(t, string(buf), `"network":"regtest"`)

		parsed := &domain.CovenantState{}
		require.NoError(t, json.Unmarshal(buf, parsed))
		parsed.Name = state.Name
		require.NoError(t, parsed.Validate())
		require.Equal(t, state, parsed)
	})

	t.Run("with rounds", func(t *testing.T) {
		state := newChainState(t)
		scripts := spendScripts(t, state)
		_, err := state.Rounds.Register(100, state.Rounds[0].Psbt.UnsignedTx, delay, scripts)
		require.NoError(t, err)
		_, err = state.Rounds.Register(300, state.Rounds[1].Psbt.UnsignedTx, delay, scripts)
		require.NoError(t, err)

		buf, err := json.MarshalIndent(state, "", "  ")
		require.NoError(t, err)

		parsed := &domain.CovenantState{}
		require.NoError(t, json.Unmarshal(buf, parsed))
		parsed.Name = state.Name
		require.NoError(t, parsed.Validate())

		rebuf, err := json.MarshalIndent(parsed, "", "  ")
		require.NoError(t, err)
		require.JSONEq(t, string(buf), string(rebuf))

		require.Len(t, parsed.Rounds, len(state.Rounds))
		for i := range state.Rounds {
			requireRoundEqual(t, state.Rounds[i], parsed.Rounds[i])
		}
		require.Equal(t, state.CovMnemonic, parsed.CovMnemonic)
		require.Equal(t, state.SpendMnemonic, parsed.SpendMnemonic)
		require.Equal(t, state.Amount, parsed.Amount)
		require.Equal(t, state.Delay, parsed.Delay)
		require.Equal(t, state.Account, parsed.Account)
		require.Equal(t, state.Network, parsed.Network)

		require.Len(t, parsed.Rounds, 4)
		require.Equal(t, domain.RoundInactive, parsed.Rounds[0].State())
		require.Equal(t, domain.RoundActive, parsed.Rounds[1].State())
		require.Equal(t, state.Rounds[1].Txid(), parsed.Rounds[1].Txid())
		require.Equal(t, uint64(300), *parsed.Rounds[1].Unlocked)
		require.Equal(t, uint64(444), *parsed.Rounds[2].Unlock)
		require.Equal(t, state.Rounds[1].Coins, parsed.Rounds[1].Coins)

		spendable, err := parsed.Rounds.SpendableAmount()
		require.NoError(t, err)
		require.Equal(t, 2*amount, spendable)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []string{
			`{"cov_mnemonic":"` + covMnemonic + `","spend_mnemonic":"` + spendMnemonic + `","amount":1,"delay":1,"account":0,"network":"liquid"}`,
			`{"cov_mnemonic":"` + covMnemonic + `","spend_mnemonic":"` + spendMnemonic + `","amount":1,"delay":1,"account":0,"network":"regtest","rounds":[{"index":1,"psbt":"nope"}]}`,
			`{"cov_mnemonic":"` + covMnemonic + `","spend_mnemonic":"` + spendMnemonic + `","amount":1,"delay":1,"account":0,"network":"regtest","rounds":[{"index":1,"psbt":"","coins":["bad"]}]}`,
		}
		for _, f := range fixtures {
			parsed := &domain.CovenantState{}
			require.Error(t, json.Unmarshal([]byte(f), parsed))
		}
	})
}

func requireRoundEqual(t *testing.T, expected, actual *domain.Round) {
	t.Helper()
	if expected == nil {
		require.Nil(t, actual)
		return
	}
	require.NotNil(t, actual)

	require.Equal(t, expected.Index, actual.Index)
	require.Equal(t, expected.State(), actual.State())
	require.Equal(t, expected.Unlock, actual.Unlock)
	require.Equal(t, expected.Unlocked, actual.Unlocked)
	require.Equal(t, expected.Coins, actual.Coins)
	require.Equal(t, expected.Spend, actual.Spend)
	require.Equal(t, expected.Transactions, actual.Transactions)

	if expected.Psbt == nil {
		require.Nil(t, actual.Psbt)
	} else {
		require.NotNil(t, actual.Psbt)
		expectedPsbt, err := expected.Psbt.B64Encode()
		require.NoError(t, err)
		actualPsbt, err := actual.Psbt.B64Encode()
		require.NoError(t, err)
		require.Equal(t, expectedPsbt, actualPsbt)
	}

	requireRoundEqual(t, expected.Previous, actual.Previous)
	requireRoundEqual(t, expected.Next, actual.Next)
}

func TestNewCovenantState(t *testing.T) {
	fixtures := []struct {
		name    string
		cov     string
		spend   string
		amount  uint64
		delay   uint16
		account uint32
	}{
		{"bad covenant mnemonic", "abandon", spendMnemonic, amount, delay, 0},
		{"bad spend mnemonic", covMnemonic, "", amount, delay, 0},
		{"zero amount", covMnemonic, spendMnemonic, 0, delay, 0},
		{"zero delay", covMnemonic, spendMnemonic, amount, 0, 0},
		{"account out of range", covMnemonic, spendMnemonic, amount, delay, 1<<31 - 1},
		{"same mnemonic", covMnemonic, covMnemonic, amount, delay, 0},
		{"same mnemonic with extra spaces", covMnemonic, " " + covMnemonic + "  ", amount, delay, 0},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			_, err := domain.NewCovenantState(
				"test", f.cov, f.spend, f.amount, f.delay, f.account, common.RegTest,
			)
			require.Error(t, err)
		})
	}

	state := newChainState(t)
	require.ErrorIs(t, state.AddRounds(nil), domain.ErrRoundsAlreadyCrafted)
}
