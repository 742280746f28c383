package covenant

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
)

// SpendInput is an output paying the spend address of round Index.
type SpendInput struct {
	wire.OutPoint
	Amount   uint64
	PkScript []byte
	Index    uint32
}

// CraftSpend builds the unsigned transaction spending inputs, all key-path
// spends of the spend template.
func (c *Covenant) CraftSpend(inputs []SpendInput, outputs []*wire.TxOut) (*psbt.Packet, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs to spend", common.ErrPrecondition)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", common.ErrPrecondition)
	}

	var in, out uint64
	outpoints := make([]*wire.OutPoint, 0, len(inputs))
	sequences := make([]uint32, 0, len(inputs))
	for _, input := range inputs {
		outpoint := input.OutPoint
		outpoints = append(outpoints, &outpoint)
		sequences = append(sequences, wire.MaxTxInSequenceNum)
		in += input.Amount
	}
	for _, o := range outputs {
		if o.Value <= 0 {
			return nil, fmt.Errorf("%w: output amount must be positive", common.ErrPrecondition)
		}
		out += uint64(o.Value)
	}
	if out > in {
		return nil, fmt.Errorf(
			"%w: outputs of %d sats exceed inputs of %d", common.ErrPrecondition, out, in,
		)
	}

	ptx, err := psbt.New(outpoints, outputs, txVersion, 0, sequences)
	if err != nil {
		return nil, err
	}
	updater, err := psbt.NewUpdater(ptx)
	if err != nil {
		return nil, err
	}

	for i, input := range inputs {
		spendOut, err := c.templates.Spend.At(input.Index)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(spendOut.PkScript, input.PkScript) {
			return nil, fmt.Errorf(
				"%w: input %s does not pay spend address %d",
				common.ErrPrecondition, input.OutPoint, input.Index,
			)
		}

		prevout := wire.NewTxOut(int64(input.Amount), input.PkScript)
		if err := updater.AddInWitnessUtxo(prevout, i); err != nil {
			return nil, err
		}
		if err := c.addSpendInput(&ptx.Inputs[i], input.Index); err != nil {
			return nil, err
		}
	}

	return ptx, nil
}

func (c *Covenant) addSpendInput(in *psbt.PInput, index uint32) error {
	var out psbt.POutput
	if err := c.addSpendOutput(&out, index); err != nil {
		return err
	}
	in.TaprootInternalKey = out.TaprootInternalKey
	in.TaprootBip32Derivation = out.TaprootBip32Derivation
	return nil
}
