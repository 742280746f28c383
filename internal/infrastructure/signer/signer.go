package signer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/lfc-network/lfc/internal/core/ports"
	"github.com/lfc-network/lfc/pkg/wallet"
	log "github.com/sirupsen/logrus"
)

type accountKey interface {
	Fingerprint() uint32
	Account() uint32
	PrivKey(subAccount, index uint32) (*btcec.PrivateKey, error)
}

type factory struct{}

// NewFactory returns a factory of signers holding the private keys derived
// from the mnemonics of a wallet.
func NewFactory() ports.SignerFactory {
	return factory{}
}

func (factory) NewSigner(_ context.Context, state *domain.CovenantState) (ports.Signer, error) {
	covKey, err := state.CovenantKey()
	if err != nil {
		return nil, err
	}
	spendKey, err := state.SpendKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(covKey, spendKey), nil
}

type softSigner struct {
	keys []accountKey
}

// NewSigner returns a signer for every input, key-path or tapscript leaf,
// that lists a BIP32 derivation of one of the given keys.
func NewSigner(covKey *wallet.CovenantKey, spendKey *wallet.SpendKey) ports.Signer {
	return &softSigner{[]accountKey{covKey, spendKey}}
}

func (s *softSigner) SignPsbt(_ context.Context, ptx *psbt.Packet) (*psbt.Packet, error) {
	prevoutFetcher, err := newPrevoutFetcher(ptx)
	if err != nil {
		return nil, err
	}
	txsighashes := txscript.NewTxSigHashes(ptx.UnsignedTx, prevoutFetcher)

	for i := range ptx.Inputs {
		in := &ptx.Inputs[i]
		if len(in.FinalScriptWitness) > 0 {
			continue
		}

		if len(in.TaprootLeafScript) > 0 {
			if err := s.signLeaves(ptx, i, txsighashes, prevoutFetcher); err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			continue
		}
		if err := s.signKeySpend(ptx, i, txsighashes, prevoutFetcher); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	return ptx, nil
}

func (s *softSigner) signLeaves(
	ptx *psbt.Packet, inputIndex int,
	txsighashes *txscript.TxSigHashes, prevoutFetcher txscript.PrevOutputFetcher,
) error {
	in := &ptx.Inputs[inputIndex]
	sighashType := txscript.SigHashType(in.SighashType)

	for _, leaf := range in.TaprootLeafScript {
		tapLeaf := txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script)
		leafHash := tapLeaf.TapHash()

		for _, derivation := range in.TaprootBip32Derivation {
			if !hasLeafHash(derivation.LeafHashes, leafHash[:]) {
				continue
			}
			if hasScriptSig(in.TaprootScriptSpendSig, derivation.XOnlyPubKey, leafHash[:]) {
				continue
			}
			key, err := s.privKey(derivation)
			if err != nil {
				return err
			}
			if key == nil {
				continue
			}

			preimage, err := txscript.CalcTapscriptSignaturehash(
				txsighashes, sighashType, ptx.UnsignedTx, inputIndex,
				prevoutFetcher, tapLeaf,
			)
			if err != nil {
				return err
			}
			sig, err := schnorr.Sign(key, preimage)
			if err != nil {
				return err
			}

			in.TaprootScriptSpendSig = append(in.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
				XOnlyPubKey: derivation.XOnlyPubKey,
				LeafHash:    leafHash.CloneBytes(),
				Signature:   sig.Serialize(),
				SigHash:     sighashType,
			})
		}
	}
	return nil
}

func (s *softSigner) signKeySpend(
	ptx *psbt.Packet, inputIndex int,
	txsighashes *txscript.TxSigHashes, prevoutFetcher txscript.PrevOutputFetcher,
) error {
	in := &ptx.Inputs[inputIndex]
	if len(in.TaprootKeySpendSig) > 0 {
		return nil
	}

	for _, derivation := range in.TaprootBip32Derivation {
		if len(derivation.LeafHashes) > 0 ||
			!bytes.Equal(derivation.XOnlyPubKey, in.TaprootInternalKey) {
			continue
		}
		key, err := s.privKey(derivation)
		if err != nil {
			return err
		}
		if key == nil {
			continue
		}

		sighashType := txscript.SigHashType(in.SighashType)
		preimage, err := txscript.CalcTaprootSignatureHash(
			txsighashes, sighashType, ptx.UnsignedTx, inputIndex, prevoutFetcher,
		)
		if err != nil {
			return err
		}
		sig, err := schnorr.Sign(txscript.TweakTaprootPrivKey(*key, in.TaprootMerkleRoot), preimage)
		if err != nil {
			return err
		}

		in.TaprootKeySpendSig = sig.Serialize()
		if sighashType != txscript.SigHashDefault {
			in.TaprootKeySpendSig = append(in.TaprootKeySpendSig, byte(sighashType))
		}
		return nil
	}

	log.Debugf("input %d: no key to sign with", inputIndex)
	return nil
}

// privKey returns the private key of the derivation, nil if none of the
// signer keys matches it.
func (s *softSigner) privKey(derivation *psbt.TaprootBip32Derivation) (*btcec.PrivateKey, error) {
	path := derivation.Bip32Path
	if len(path) != 5 {
		return nil, nil
	}

	for _, key := range s.keys {
		if key.Fingerprint() != derivation.MasterKeyFingerprint {
			continue
		}
		origin, err := wallet.OriginPath(key.Account())
		if err != nil {
			return nil, err
		}
		if !equalPath(origin, path[:3]) {
			continue
		}

		privKey, err := key.PrivKey(path[3], path[4])
		if err != nil {
			return nil, err
		}
		if bytes.Equal(schnorr.SerializePubKey(privKey.PubKey()), derivation.XOnlyPubKey) {
			return privKey, nil
		}
	}
	return nil, nil
}

func newPrevoutFetcher(ptx *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range ptx.Inputs {
		if in.WitnessUtxo == nil {
			return nil, fmt.Errorf("input %d: missing witness utxo", i)
		}
		fetcher.AddPrevOut(ptx.UnsignedTx.TxIn[i].PreviousOutPoint, in.WitnessUtxo)
	}
	return fetcher, nil
}

func hasLeafHash(hashes [][]byte, leafHash []byte) bool {
	for _, h := range hashes {
		if bytes.Equal(h, leafHash) {
			return true
		}
	}
	return false
}

func hasScriptSig(sigs []*psbt.TaprootScriptSpendSig, xonly, leafHash []byte) bool {
	for _, sig := range sigs {
		if bytes.Equal(sig.XOnlyPubKey, xonly) && bytes.Equal(sig.LeafHash, leafHash) {
			return true
		}
	}
	return false
}

func equalPath(a []uint32, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
