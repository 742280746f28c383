package covenant

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
)

// Signer adds the signatures it can produce to a PSBT. It never finalizes.
type Signer interface {
	SignPsbt(ctx context.Context, ptx *psbt.Packet) (*psbt.Packet, error)
}

// Sign delegates the template to the signer and returns the signed PSBT
// along with the broadcastable transaction.
func Sign(ctx context.Context, signer Signer, template *psbt.Packet) (*psbt.Packet, *wire.MsgTx, error) {
	if signer == nil {
		return nil, nil, fmt.Errorf("%w: missing signer", common.ErrPrecondition)
	}

	signed, err := signer.SignPsbt(ctx, template)
	if err != nil {
		return nil, nil, fmt.Errorf("signer failed: %w", err)
	}

	tx, err := FinalizeAndExtract(signed)
	if err != nil {
		return nil, nil, err
	}
	return signed, tx, nil
}

// FinalizeAndExtract sets the final witness of every input of the PSBT and
// extracts the network transaction. Covenant inputs go through the
// round-advance leaf when the input sequence satisfies its timelock and the
// spend signature is there, otherwise through the backup leaf.
func FinalizeAndExtract(ptx *psbt.Packet) (*wire.MsgTx, error) {
	for i, in := range ptx.Inputs {
		if len(in.FinalScriptWitness) > 0 {
			continue
		}
		if in.WitnessUtxo == nil || !txscript.IsPayToTaproot(in.WitnessUtxo.PkScript) {
			return nil, fmt.Errorf("input %d: only taproot inputs are supported", i)
		}

		var witness wire.TxWitness
		switch {
		case len(in.TaprootKeySpendSig) > 0:
			witness = wire.TxWitness{in.TaprootKeySpendSig}
		case len(in.TaprootLeafScript) > 0:
			sequence := ptx.UnsignedTx.TxIn[i].Sequence
			w, err := leafWitness(in, sequence)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			witness = w
		default:
			return nil, fmt.Errorf("input %d: missing signature", i)
		}

		var witnessBuf bytes.Buffer
		if err := psbt.WriteTxWitness(&witnessBuf, witness); err != nil {
			return nil, err
		}
		ptx.Inputs[i].FinalScriptWitness = witnessBuf.Bytes()
	}

	return psbt.Extract(ptx)
}

func leafWitness(in psbt.PInput, sequence uint32) (wire.TxWitness, error) {
	var unroll, backup *psbt.TaprootTapLeafScript
	var unrollClosure *CSVSigClosure
	var backupClosure *MultisigClosure

	for _, leaf := range in.TaprootLeafScript {
		closure, err := DecodeClosure(leaf.Script)
		if err != nil {
			return nil, err
		}
		switch c := closure.(type) {
		case *CSVSigClosure:
			unroll, unrollClosure = leaf, c
		case *MultisigClosure:
			backup, backupClosure = leaf, c
		}
	}

	if unroll != nil && common.SequenceSatisfies(sequence, unrollClosure.Locktime) {
		signatures := leafSignatures(in, unroll)
		if witness, err := unrollClosure.Witness(unroll.ControlBlock, signatures); err == nil {
			return witness, nil
		}
	}

	if backup == nil {
		return nil, fmt.Errorf("no satisfiable leaf")
	}
	return backupClosure.Witness(backup.ControlBlock, leafSignatures(in, backup))
}

// leafSignatures returns the script spend signatures made for the given leaf.
func leafSignatures(in psbt.PInput, leaf *psbt.TaprootTapLeafScript) map[string][]byte {
	hash := txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script).TapHash()

	signatures := make(map[string][]byte)
	for _, sig := range in.TaprootScriptSpendSig {
		if !bytes.Equal(sig.LeafHash, hash[:]) {
			continue
		}
		signature := sig.Signature
		if sig.SigHash != txscript.SigHashDefault {
			signature = append(append([]byte{}, sig.Signature...), byte(sig.SigHash))
		}
		signatures[hex.EncodeToString(sig.XOnlyPubKey)] = signature
	}
	return signatures
}
