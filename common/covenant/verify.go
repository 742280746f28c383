package covenant

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var ErrPrevoutNotFound = errors.New("prevout not found")

// Verify runs the script engine on every input of tx, spending the witness
// utxos of ptx.
func Verify(ptx *psbt.Packet, tx *wire.MsgTx) error {
	prevoutFetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range ptx.Inputs {
		if in.WitnessUtxo == nil {
			return fmt.Errorf("input %d: %w", i, ErrPrevoutNotFound)
		}
		prevoutFetcher.AddPrevOut(ptx.UnsignedTx.TxIn[i].PreviousOutPoint, in.WitnessUtxo)
	}

	txSigHashes := txscript.NewTxSigHashes(tx, prevoutFetcher)
	sigCache := txscript.NewSigCache(uint(len(tx.TxIn)))

	for i, input := range tx.TxIn {
		prevout := prevoutFetcher.FetchPrevOutput(input.PreviousOutPoint)
		if prevout == nil {
			return fmt.Errorf("input %d: %w", i, ErrPrevoutNotFound)
		}

		engine, err := txscript.NewEngine(
			prevout.PkScript,
			tx,
			i,
			txscript.StandardVerifyFlags,
			sigCache,
			txSigHashes,
			prevout.Value,
			prevoutFetcher,
		)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if err := engine.Execute(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}
