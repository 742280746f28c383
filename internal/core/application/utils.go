package application

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/internal/core/domain"
)

func toRoundInfo(r *domain.Round) RoundInfo {
	info := RoundInfo{
		Index:    r.Index,
		State:    r.State().String(),
		Txid:     r.Txid(),
		Unlock:   r.Unlock,
		Unlocked: r.Unlocked,
		Coins:    len(r.Coins),
	}
	if r.Psbt != nil {
		outs := r.Psbt.UnsignedTx.TxOut
		info.Spend = uint64(outs[len(outs)-1].Value)
		if len(outs) > 1 {
			info.Relock = uint64(outs[0].Value)
		}
		info.Signed = isSigned(r.Psbt)
	}
	return info
}

func isSigned(ptx *psbt.Packet) bool {
	for _, in := range ptx.Inputs {
		if len(in.TaprootScriptSpendSig) == 0 && len(in.TaprootKeySpendSig) == 0 {
			return false
		}
	}
	return len(ptx.Inputs) > 0
}

// copyPacket returns a deep copy of the PSBT so that finalizing it does
// not alter the stored round.
func copyPacket(ptx *psbt.Packet) (*psbt.Packet, error) {
	b64, err := ptx.B64Encode()
	if err != nil {
		return nil, err
	}
	return psbt.NewFromRawBytes(strings.NewReader(b64), true)
}

// selectCoins picks the largest coins first until target is covered.
func selectCoins(coins []domain.Coin, target uint64) ([]domain.Coin, uint64, error) {
	sorted := append([]domain.Coin{}, coins...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	selected := make([]domain.Coin, 0)
	var total uint64
	for _, c := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, c)
		total += c.Amount
	}
	if total < target {
		return nil, 0, fmt.Errorf("not enough funds, available %d sats, needed %d", total, target)
	}
	return selected, total, nil
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf.Bytes()), nil
}
