package domain

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"
)

// Rounds is the index ordered ledger of the covenant chain. Positions in
// the slice are the references between rounds, Previous and Next are only
// detached copies.
type Rounds []*Round

// ScriptFunc returns the spend script of a round index.
type ScriptFunc func(index uint32) ([]byte, error)

// Init sorts the rounds and checks the ledger invariants: indexes are
// exactly 1..n and at most one round is active.
func (rs Rounds) Init() error {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Index < rs[j].Index
	})

	active := 0
	for i, r := range rs {
		if r == nil {
			return fmt.Errorf("%w: empty round at position %d", ErrLedgerCorrupted, i)
		}
		if r.Index != uint32(i+1) {
			return fmt.Errorf(
				"%w: expected round %d, got %d", ErrLedgerCorrupted, i+1, r.Index,
			)
		}
		if r.State() == RoundActive {
			active++
		}
		if active > 1 {
			return fmt.Errorf("%w: more than one active round", ErrLedgerCorrupted)
		}
	}
	return nil
}

func (rs Rounds) IsEmpty() bool {
	return len(rs) == 0
}

// IsUnlocked reports whether the chain has started.
func (rs Rounds) IsUnlocked() bool {
	return len(rs) > 0 && rs[0].IsUnlocked()
}

// CurrentRoundIndex returns the position of the active round.
func (rs Rounds) CurrentRoundIndex() (int, error) {
	if err := rs.Init(); err != nil {
		return -1, err
	}
	for i, r := range rs {
		if r.State() == RoundActive {
			return i, nil
		}
	}
	return -1, ErrNoActiveRound
}

func (rs Rounds) At(pos int) *Round {
	if pos < 0 || pos >= len(rs) {
		return nil
	}
	return rs[pos]
}

// NextLocked returns the first round not yet unlocked, nil once the whole
// chain has been unlocked.
func (rs Rounds) NextLocked() *Round {
	for _, r := range rs {
		if !r.IsUnlocked() {
			return r
		}
	}
	return nil
}

func (rs Rounds) SpendableCoins() ([]Coin, error) {
	coins := make([]Coin, 0)
	for _, r := range rs {
		roundCoins, err := r.SpendableCoins()
		if err != nil {
			return nil, err
		}
		coins = append(coins, roundCoins...)
	}
	return coins, nil
}

func (rs Rounds) SpendableAmount() (uint64, error) {
	var amount uint64
	for _, r := range rs {
		roundAmount, err := r.SpendableAmount()
		if err != nil {
			return 0, err
		}
		amount += roundAmount
	}
	return amount, nil
}

// Register records tx, confirmed at height, as the unlock of the round
// whose covenant output it spends. The outputs of tx paying the round
// spend script become spendable coins, the following round becomes
// unlockable delay blocks later.
func (rs Rounds) Register(
	height uint64, tx *wire.MsgTx, delay uint16, spendScript ScriptFunc,
) (*Round, error) {
	if err := rs.Init(); err != nil {
		return nil, err
	}

	pos := rs.findSpentRound(tx)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoundTx, tx.TxHash())
	}
	round := rs[pos]
	if round.IsUnlocked() {
		return nil, fmt.Errorf("%w: round %d", ErrRoundAlreadyUnlocked, round.Index)
	}
	if next := rs.NextLocked(); next != round {
		return nil, fmt.Errorf(
			"%w: round %d, expected %d", ErrRoundOutOfOrder, round.Index, next.Index,
		)
	}

	script, err := spendScript(round.Index)
	if err != nil {
		return nil, err
	}

	unlocked := height
	round.Spend = tx
	round.Unlocked = &unlocked
	round.addCoins(tx, script)

	if pos > 0 {
		previous := rs[pos-1]
		previous.Next = round.snapshot()
		round.Previous = previous.snapshot()
	}
	if pos+1 < len(rs) {
		unlock := height + uint64(delay)
		rs[pos+1].Unlock = &unlock
	}

	if err := rs.Init(); err != nil {
		return nil, err
	}
	return round, nil
}

// SpendCoins removes the coins spent by tx from the ledger. Outputs of tx
// paying changeScript become coins of the active round.
func (rs Rounds) SpendCoins(tx *wire.MsgTx, changeScript []byte) error {
	pos, err := rs.CurrentRoundIndex()
	if err != nil {
		return err
	}

	for _, in := range tx.TxIn {
		if !rs.hasCoin(in.PreviousOutPoint) {
			return fmt.Errorf("%w: %s", ErrUnknownCoin, in.PreviousOutPoint)
		}
	}
	for _, in := range tx.TxIn {
		for _, r := range rs {
			if r.removeCoin(in.PreviousOutPoint) {
				break
			}
		}
	}

	if len(changeScript) > 0 {
		rs[pos].addCoins(tx, changeScript)
	}
	return nil
}

func (rs Rounds) hasCoin(outpoint wire.OutPoint) bool {
	for _, r := range rs {
		for _, c := range r.Coins {
			if c == outpoint {
				return true
			}
		}
	}
	return false
}

func (rs Rounds) findSpentRound(tx *wire.MsgTx) int {
	for i, r := range rs {
		outpoint, err := r.Outpoint()
		if err != nil {
			continue
		}
		for _, in := range tx.TxIn {
			if in.PreviousOutPoint == *outpoint {
				return i
			}
		}
	}
	return -1
}
