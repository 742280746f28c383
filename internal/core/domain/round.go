package domain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	RoundLocked RoundState = iota
	RoundActive
	RoundInactive
)

type RoundState int

func (s RoundState) String() string {
	switch s {
	case RoundActive:
		return "ACTIVE"
	case RoundInactive:
		return "INACTIVE"
	default:
		return "LOCKED"
	}
}

// Round is one link of the covenant chain.
type Round struct {
	Index uint32
	// Template of the round, signed once the wallet has signed the chain.
	Psbt *psbt.Packet
	// Transaction that spent the covenant output locked by the round.
	Spend *wire.MsgTx
	// Ancestors of Coins.
	Transactions []*wire.MsgTx
	// Outputs spendable by the spend key.
	Coins []wire.OutPoint
	// Height from which the round can be unlocked.
	Unlock *uint64
	// Height of the block that included Spend.
	Unlocked *uint64
	// Detached copies of the neighbour rounds, set at unlock.
	Previous *Round
	Next     *Round
}

// Coin is an output spendable by the spend key.
type Coin struct {
	wire.OutPoint
	Amount   uint64
	PkScript []byte
	Round    uint32
}

func NewRound(index uint32, ptx *psbt.Packet) *Round {
	return &Round{
		Index:        index,
		Psbt:         ptx,
		Transactions: make([]*wire.MsgTx, 0),
		Coins:        make([]wire.OutPoint, 0),
	}
}

// State is derived from Spend and Next, it is never stored.
func (r *Round) State() RoundState {
	if !r.IsUnlocked() {
		return RoundLocked
	}
	if r.Next == nil {
		return RoundActive
	}
	return RoundInactive
}

func (r *Round) IsUnlocked() bool {
	return r.Spend != nil
}

func (r *Round) IsSpendable() bool {
	return r.IsUnlocked() && len(r.Coins) > 0
}

// Outpoint is the covenant output the round spends.
func (r *Round) Outpoint() (*wire.OutPoint, error) {
	if r.Psbt == nil || r.Psbt.UnsignedTx == nil || len(r.Psbt.UnsignedTx.TxIn) != 1 {
		return nil, fmt.Errorf("round %d: malformed template", r.Index)
	}
	outpoint := r.Psbt.UnsignedTx.TxIn[0].PreviousOutPoint
	return &outpoint, nil
}

func (r *Round) Txid() string {
	if r.Psbt == nil || r.Psbt.UnsignedTx == nil {
		return ""
	}
	return r.Psbt.UnsignedTx.TxHash().String()
}

func (r *Round) txForCoin(coin wire.OutPoint) *wire.MsgTx {
	return r.findTx(coin.Hash)
}

func (r *Round) findTx(txid chainhash.Hash) *wire.MsgTx {
	for _, tx := range r.Transactions {
		if tx.TxHash() == txid {
			return tx
		}
	}
	return nil
}

func (r *Round) SpendableCoins() ([]Coin, error) {
	coins := make([]Coin, 0, len(r.Coins))
	for _, c := range r.Coins {
		tx := r.txForCoin(c)
		if tx == nil || int(c.Index) >= len(tx.TxOut) {
			return nil, fmt.Errorf("%w: %s in round %d", ErrMissingCoinTx, c, r.Index)
		}
		out := tx.TxOut[c.Index]
		coins = append(coins, Coin{
			OutPoint: c,
			Amount:   uint64(out.Value),
			PkScript: out.PkScript,
			Round:    r.Index,
		})
	}
	return coins, nil
}

func (r *Round) SpendableAmount() (uint64, error) {
	coins, err := r.SpendableCoins()
	if err != nil {
		return 0, err
	}
	var amount uint64
	for _, c := range coins {
		amount += c.Amount
	}
	return amount, nil
}

// addCoins records the outputs of tx paying pkScript.
func (r *Round) addCoins(tx *wire.MsgTx, pkScript []byte) int {
	added := 0
	txid := tx.TxHash()
	for vout, out := range tx.TxOut {
		if !bytes.Equal(out.PkScript, pkScript) {
			continue
		}
		r.Coins = append(r.Coins, *wire.NewOutPoint(&txid, uint32(vout)))
		added++
	}
	if added > 0 && r.findTx(txid) == nil {
		r.Transactions = append(r.Transactions, tx)
	}
	return added
}

func (r *Round) removeCoin(outpoint wire.OutPoint) bool {
	for i, c := range r.Coins {
		if c == outpoint {
			r.Coins = append(r.Coins[:i], r.Coins[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot copies the round without its own links.
func (r *Round) snapshot() *Round {
	s := *r
	s.Previous = nil
	s.Next = nil
	s.Transactions = append([]*wire.MsgTx{}, r.Transactions...)
	s.Coins = append([]wire.OutPoint{}, r.Coins...)
	return &s
}

type roundJSON struct {
	Index        uint32     `json:"index"`
	Psbt         string     `json:"psbt"`
	Spend        string     `json:"spend,omitempty"`
	Transactions []string   `json:"transactions"`
	Coins        []string   `json:"coins"`
	Unlock       *uint64    `json:"unlock"`
	Unlocked     *uint64    `json:"unlocked"`
	Previous     *roundJSON `json:"previous"`
	Next         *roundJSON `json:"next"`
}

func (r *Round) MarshalJSON() ([]byte, error) {
	rj, err := r.toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rj)
}

func (r *Round) UnmarshalJSON(data []byte) error {
	rj := &roundJSON{}
	if err := json.Unmarshal(data, rj); err != nil {
		return err
	}
	round, err := rj.toRound()
	if err != nil {
		return err
	}
	*r = *round
	return nil
}

func (r *Round) toJSON() (*roundJSON, error) {
	if r == nil {
		return nil, nil
	}

	rj := &roundJSON{
		Index:        r.Index,
		Transactions: make([]string, 0, len(r.Transactions)),
		Coins:        make([]string, 0, len(r.Coins)),
		Unlock:       r.Unlock,
		Unlocked:     r.Unlocked,
	}

	if r.Psbt != nil {
		b64, err := r.Psbt.B64Encode()
		if err != nil {
			return nil, fmt.Errorf("round %d: %s", r.Index, err)
		}
		rj.Psbt = b64
	}
	if r.Spend != nil {
		txHex, err := serializeTx(r.Spend)
		if err != nil {
			return nil, err
		}
		rj.Spend = txHex
	}
	for _, tx := range r.Transactions {
		txHex, err := serializeTx(tx)
		if err != nil {
			return nil, err
		}
		rj.Transactions = append(rj.Transactions, txHex)
	}
	for _, c := range r.Coins {
		rj.Coins = append(rj.Coins, c.String())
	}

	var err error
	if rj.Previous, err = r.Previous.toJSON(); err != nil {
		return nil, err
	}
	if rj.Next, err = r.Next.toJSON(); err != nil {
		return nil, err
	}
	return rj, nil
}

func (rj *roundJSON) toRound() (*Round, error) {
	if rj == nil {
		return nil, nil
	}

	r := &Round{
		Index:    rj.Index,
		Unlock:   rj.Unlock,
		Unlocked: rj.Unlocked,
	}

	if len(rj.Psbt) > 0 {
		ptx, err := psbt.NewFromRawBytes(strings.NewReader(rj.Psbt), true)
		if err != nil {
			return nil, fmt.Errorf("round %d: invalid psbt: %s", rj.Index, err)
		}
		r.Psbt = ptx
	}
	if len(rj.Spend) > 0 {
		tx, err := DeserializeTx(rj.Spend)
		if err != nil {
			return nil, fmt.Errorf("round %d: invalid spend tx: %s", rj.Index, err)
		}
		r.Spend = tx
	}

	r.Transactions = make([]*wire.MsgTx, 0, len(rj.Transactions))
	for _, txHex := range rj.Transactions {
		tx, err := DeserializeTx(txHex)
		if err != nil {
			return nil, fmt.Errorf("round %d: invalid tx: %s", rj.Index, err)
		}
		r.Transactions = append(r.Transactions, tx)
	}

	r.Coins = make([]wire.OutPoint, 0, len(rj.Coins))
	for _, c := range rj.Coins {
		outpoint, err := parseOutpoint(c)
		if err != nil {
			return nil, fmt.Errorf("round %d: %s", rj.Index, err)
		}
		r.Coins = append(r.Coins, *outpoint)
	}

	var err error
	if r.Previous, err = rj.Previous.toRound(); err != nil {
		return nil, err
	}
	if r.Next, err = rj.Next.toRound(); err != nil {
		return nil, err
	}
	return r, nil
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTx parses a hex encoded network transaction.
func DeserializeTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(txHex))
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	// Empty scripts and witnesses decode as empty slices, keep them nil like
	// the ones of freshly crafted transactions.
	for _, in := range tx.TxIn {
		if len(in.SignatureScript) == 0 {
			in.SignatureScript = nil
		}
		if len(in.Witness) == 0 {
			in.Witness = nil
		}
	}
	return tx, nil
}

func parseOutpoint(str string) (*wire.OutPoint, error) {
	parts := strings.Split(str, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid outpoint %q", str)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid outpoint %q: %s", str, err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid outpoint %q: %s", str, err)
	}
	return wire.NewOutPoint(hash, uint32(vout)), nil
}
