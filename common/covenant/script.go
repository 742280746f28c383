package covenant

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lfc-network/lfc/common"
)

// Closure is a tapscript leaf of the covenant output.
type Closure interface {
	Leaf() (*txscript.TapLeaf, error)
	Decode(script []byte) (bool, error)
	// Witness builds the leaf spend witness from signatures keyed by the
	// hex encoded x-only pubkey of their signer.
	Witness(controlBlock []byte, signatures map[string][]byte) (wire.TxWitness, error)
}

// CSVSigClosure is the round-advance leaf:
// <sequence> OP_CHECKSEQUENCEVERIFY OP_DROP <spend> OP_CHECKSIG
type CSVSigClosure struct {
	Pubkey   *secp256k1.PublicKey
	Locktime common.RelativeLocktime
}

// MultisigClosure is the backup leaf:
// <covenant> OP_CHECKSIGVERIFY <spend> OP_CHECKSIG
type MultisigClosure struct {
	CovenantPubkey *secp256k1.PublicKey
	SpendPubkey    *secp256k1.PublicKey
}

func DecodeClosure(script []byte) (Closure, error) {
	var closure Closure

	closure = &CSVSigClosure{}
	if valid, err := closure.Decode(script); err == nil && valid {
		return closure, nil
	}

	closure = &MultisigClosure{}
	if valid, err := closure.Decode(script); err == nil && valid {
		return closure, nil
	}

	return nil, fmt.Errorf("invalid closure script %x", script)
}

func (f *MultisigClosure) Leaf() (*txscript.TapLeaf, error) {
	script, err := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(f.CovenantPubkey)).
		AddOp(txscript.OP_CHECKSIGVERIFY).
		AddData(schnorr.SerializePubKey(f.SpendPubkey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	tapLeaf := txscript.NewBaseTapLeaf(script)
	return &tapLeaf, nil
}

func (f *MultisigClosure) Decode(script []byte) (bool, error) {
	if len(script) != 2*(1+32+1) {
		return false, nil
	}
	if script[0] != txscript.OP_DATA_32 || script[33] != txscript.OP_CHECKSIGVERIFY {
		return false, nil
	}

	covenantPubkey, err := schnorr.ParsePubKey(script[1:33])
	if err != nil {
		return false, err
	}

	valid, spendPubkey, err := decodeChecksigScript(script[34:])
	if err != nil || !valid {
		return false, err
	}

	f.CovenantPubkey = covenantPubkey
	f.SpendPubkey = spendPubkey

	rebuilt, err := f.Leaf()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt.Script, script), nil
}

// Witness expects the covenant signature on top of the spend one.
func (f *MultisigClosure) Witness(
	controlBlock []byte, signatures map[string][]byte,
) (wire.TxWitness, error) {
	covenantSig, ok := signatures[xonlyHex(f.CovenantPubkey)]
	if !ok {
		return nil, fmt.Errorf("missing covenant signature")
	}
	spendSig, ok := signatures[xonlyHex(f.SpendPubkey)]
	if !ok {
		return nil, fmt.Errorf("missing spend signature")
	}

	leaf, err := f.Leaf()
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{spendSig, covenantSig, leaf.Script, controlBlock}, nil
}

func (d *CSVSigClosure) Leaf() (*txscript.TapLeaf, error) {
	script, err := encodeCsvWithChecksigScript(d.Pubkey, d.Locktime)
	if err != nil {
		return nil, err
	}

	tapLeaf := txscript.NewBaseTapLeaf(script)
	return &tapLeaf, nil
}

func (d *CSVSigClosure) Decode(script []byte) (bool, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() {
		return false, nil
	}

	var locktime *common.RelativeLocktime
	var err error
	switch op := tokenizer.Opcode(); {
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		locktime, err = common.SequenceLocktime(uint32(op - txscript.OP_1 + 1))
	case tokenizer.Data() != nil:
		locktime, err = common.BIP68DecodeSequence(tokenizer.Data())
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}

	csvIndex := int(tokenizer.ByteIndex())
	if len(script) < csvIndex+2 ||
		script[csvIndex] != txscript.OP_CHECKSEQUENCEVERIFY ||
		script[csvIndex+1] != txscript.OP_DROP {
		return false, nil
	}

	valid, pubkey, err := decodeChecksigScript(script[csvIndex+2:])
	if err != nil || !valid {
		return false, err
	}

	rebuilt, err := encodeCsvWithChecksigScript(pubkey, *locktime)
	if err != nil {
		return false, err
	}

	if !bytes.Equal(rebuilt, script) {
		return false, nil
	}

	d.Pubkey = pubkey
	d.Locktime = *locktime

	return true, nil
}

func (d *CSVSigClosure) Witness(
	controlBlock []byte, signatures map[string][]byte,
) (wire.TxWitness, error) {
	sig, ok := signatures[xonlyHex(d.Pubkey)]
	if !ok {
		return nil, fmt.Errorf("missing spend signature")
	}

	leaf, err := d.Leaf()
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{sig, leaf.Script, controlBlock}, nil
}

func decodeChecksigScript(script []byte) (bool, *secp256k1.PublicKey, error) {
	if len(script) != 1+32+1 {
		return false, nil, nil
	}
	if script[0] != txscript.OP_DATA_32 || script[33] != txscript.OP_CHECKSIG {
		return false, nil, nil
	}

	pubkey, err := schnorr.ParsePubKey(script[1:33])
	if err != nil {
		return false, nil, err
	}

	return true, pubkey, nil
}

// checkSequenceVerifyScript + checksig
func encodeCsvWithChecksigScript(
	pubkey *secp256k1.PublicKey, locktime common.RelativeLocktime,
) ([]byte, error) {
	sequence, err := common.BIP68Sequence(locktime)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddInt64(int64(sequence)).
		AddOps([]byte{
			txscript.OP_CHECKSEQUENCEVERIFY,
			txscript.OP_DROP,
		}).
		AddData(schnorr.SerializePubKey(pubkey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func xonlyHex(pubkey *secp256k1.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(pubkey))
}
