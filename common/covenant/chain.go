package covenant

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
)

// NextSplit splits the value locked by the previous round into the spend
// and relock amounts of the next one. A relock not larger than the fee is
// swept into the spend.
func NextSplit(previousAmount, maxRoundAmount, fee uint64) (spend, relock uint64) {
	if previousAmount > maxRoundAmount {
		relock = previousAmount - maxRoundAmount
		if relock <= fee {
			relock = 0
		}
		if relock == 0 {
			return previousAmount - fee, 0
		}
		return maxRoundAmount, relock
	}
	return previousAmount - fee, 0
}

// CraftChain crafts every round template locking the funds of output 0 of
// fundingTx, until the relocked value could not pay for another round.
func (c *Covenant) CraftChain(fundingTx *wire.MsgTx, amount, fee uint64) ([]*psbt.Packet, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: round amount must be positive", common.ErrPrecondition)
	}
	if fundingTx == nil || len(fundingTx.TxOut) == 0 {
		return nil, fmt.Errorf("%w: funding tx has no outputs", common.ErrPrecondition)
	}

	funding := fundingTx.TxOut[0]
	if funding.Value <= 0 {
		return nil, fmt.Errorf("%w: funding output is empty", common.ErrPrecondition)
	}

	fundingOut, err := c.templates.Covenant.At(0)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(funding.PkScript, fundingOut.PkScript) {
		return nil, fmt.Errorf(
			"%w: funding output does not pay the covenant address", common.ErrPrecondition,
		)
	}

	previousTx := fundingTx
	previousAmount := uint64(funding.Value)
	if previousAmount <= fee {
		return nil, fmt.Errorf(
			"%w: funding of %d sats cannot pay the %d sats fee",
			common.ErrPrecondition, previousAmount, fee,
		)
	}

	rounds := make([]*psbt.Packet, 0)
	for index := uint32(1); ; index++ {
		spend, relock := NextSplit(previousAmount, amount, fee)

		ptx, err := c.CraftRound(previousTx, index, spend, relock)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", index, err)
		}
		rounds = append(rounds, ptx)

		if relock == 0 || relock < 2*fee {
			break
		}

		previousTx = ptx.UnsignedTx
		previousAmount = uint64(ptx.UnsignedTx.TxOut[0].Value)
	}

	return rounds, nil
}
