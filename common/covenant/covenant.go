package covenant

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/pkg/wallet"
)

const txVersion = 2

// Covenant crafts the chain of round transactions of a wallet. It holds no
// mutable state.
type Covenant struct {
	templates *Templates
	timelock  uint16
	net       common.Network
}

func New(
	cov *wallet.CovenantXPub, spend *wallet.SpendXPub,
	timelock uint16, net common.Network,
) (*Covenant, error) {
	templates, err := Compile(cov, spend, timelock, net)
	if err != nil {
		return nil, err
	}
	return &Covenant{templates, timelock, net}, nil
}

func (c *Covenant) Templates() *Templates {
	return c.templates
}

func (c *Covenant) Network() common.Network {
	return c.net
}

func (c *Covenant) Timelock() uint16 {
	return c.timelock
}

// CovenantAddress is where the relock output of round index is paid,
// index 0 being the funding address.
func (c *Covenant) CovenantAddress(index uint32) (*btcutil.AddressTaproot, error) {
	return c.templates.Covenant.Address(index)
}

// SpendAddress is where the spend output of round index is paid.
func (c *Covenant) SpendAddress(index uint32) (*btcutil.AddressTaproot, error) {
	return c.templates.Spend.Address(index)
}

// RoundSequence is the nSequence of the input of round index. The first
// round can only be unlocked through the backup leaf.
func (c *Covenant) RoundSequence(index uint32) (uint32, error) {
	if index <= 1 {
		return 0, nil
	}
	return common.BIP68Sequence(common.BlockLocktime(c.timelock))
}

// CraftRound builds the unsigned template of round index spending output 0
// of previousTx, which must pay CovenantAddress(index-1).
func (c *Covenant) CraftRound(
	previousTx *wire.MsgTx, index uint32, spendAmount, relockAmount uint64,
) (*psbt.Packet, error) {
	if index == 0 {
		return nil, fmt.Errorf("%w: round index must be at least 1", common.ErrPrecondition)
	}
	if previousTx == nil || len(previousTx.TxOut) == 0 {
		return nil, fmt.Errorf("%w: previous tx has no outputs", common.ErrPrecondition)
	}
	if spendAmount == 0 {
		return nil, fmt.Errorf("%w: spend amount must be positive", common.ErrPrecondition)
	}

	prevout := previousTx.TxOut[0]
	if prevout.Value <= 0 {
		return nil, fmt.Errorf(
			"%w: previous output has no value", common.ErrPrecondition,
		)
	}
	// Both amounts are bounded by the previous output value, so they fit
	// in the int64 of a tx output.
	prevAmount := uint64(prevout.Value)
	if relockAmount > prevAmount || spendAmount > prevAmount-relockAmount {
		return nil, fmt.Errorf(
			"%w: previous output of %d sats cannot pay %d + %d",
			common.ErrPrecondition, prevout.Value, spendAmount, relockAmount,
		)
	}

	input, err := c.templates.Covenant.At(index - 1)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prevout.PkScript, input.PkScript) {
		return nil, fmt.Errorf(
			"%w: previous tx output 0 does not pay covenant address %d",
			common.ErrPrecondition, index-1,
		)
	}

	spendOut, err := c.templates.Spend.At(index)
	if err != nil {
		return nil, err
	}

	outputs := make([]*wire.TxOut, 0, 2)
	var relock *CovenantOutput
	if relockAmount > 0 {
		if relock, err = c.templates.Covenant.At(index); err != nil {
			return nil, err
		}
		outputs = append(outputs, wire.NewTxOut(int64(relockAmount), relock.PkScript))
	}
	outputs = append(outputs, wire.NewTxOut(int64(spendAmount), spendOut.PkScript))

	sequence, err := c.RoundSequence(index)
	if err != nil {
		return nil, err
	}

	prevHash := previousTx.TxHash()
	ptx, err := psbt.New(
		[]*wire.OutPoint{wire.NewOutPoint(&prevHash, 0)},
		outputs, txVersion, 0, []uint32{sequence},
	)
	if err != nil {
		return nil, err
	}

	updater, err := psbt.NewUpdater(ptx)
	if err != nil {
		return nil, err
	}
	if err := updater.AddInWitnessUtxo(prevout, 0); err != nil {
		return nil, err
	}

	if err := c.addCovenantInput(&ptx.Inputs[0], input); err != nil {
		return nil, err
	}

	spendIndex := 0
	if relock != nil {
		if err := c.addCovenantOutput(&ptx.Outputs[0], relock); err != nil {
			return nil, err
		}
		spendIndex = 1
	}
	if err := c.addSpendOutput(&ptx.Outputs[spendIndex], index); err != nil {
		return nil, err
	}

	return ptx, nil
}

func (c *Covenant) addCovenantInput(in *psbt.PInput, out *CovenantOutput) error {
	in.SighashType = txscript.SigHashDefault
	in.TaprootInternalKey = schnorr.SerializePubKey(out.InternalKey)
	in.TaprootMerkleRoot = out.MerkleRoot()

	for _, closure := range []Closure{out.Unroll, out.Backup} {
		leaf, err := closure.Leaf()
		if err != nil {
			return err
		}
		ctrl, err := out.ControlBlock(*leaf)
		if err != nil {
			return err
		}
		in.TaprootLeafScript = append(in.TaprootLeafScript, &psbt.TaprootTapLeafScript{
			ControlBlock: ctrl,
			Script:       leaf.Script,
			LeafVersion:  leaf.LeafVersion,
		})
	}

	derivations, err := c.covenantDerivations(out)
	if err != nil {
		return err
	}
	in.TaprootBip32Derivation = derivations
	return nil
}

func (c *Covenant) addCovenantOutput(out *psbt.POutput, relock *CovenantOutput) error {
	out.TaprootInternalKey = schnorr.SerializePubKey(relock.InternalKey)

	derivations, err := c.covenantDerivations(relock)
	if err != nil {
		return err
	}
	out.TaprootBip32Derivation = derivations
	return nil
}

func (c *Covenant) addSpendOutput(out *psbt.POutput, index uint32) error {
	spendKey := c.templates.Spend.SpendKey
	pubkey, err := spendKey.DeriveAt(index)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	out.TaprootInternalKey = schnorr.SerializePubKey(pubkey)
	out.TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
		XOnlyPubKey:          schnorr.SerializePubKey(pubkey),
		MasterKeyFingerprint: spendKey.MasterFingerprint(),
		Bip32Path:            spendKey.FullPath(index),
	}}
	return nil
}

// covenantDerivations lists both keys of a covenant output with the leaves
// they sign for. The spend key signs in both leaves.
func (c *Covenant) covenantDerivations(out *CovenantOutput) ([]*psbt.TaprootBip32Derivation, error) {
	unrollHash, err := leafHash(out.Unroll)
	if err != nil {
		return nil, err
	}
	backupHash, err := leafHash(out.Backup)
	if err != nil {
		return nil, err
	}

	covKey := c.templates.Covenant.CovKey
	spendKey := c.templates.Covenant.SpendKey

	return []*psbt.TaprootBip32Derivation{
		{
			XOnlyPubKey:          schnorr.SerializePubKey(out.Backup.CovenantPubkey),
			LeafHashes:           [][]byte{backupHash},
			MasterKeyFingerprint: covKey.MasterFingerprint(),
			Bip32Path:            covKey.FullPath(out.Index),
		},
		{
			XOnlyPubKey:          schnorr.SerializePubKey(out.Backup.SpendPubkey),
			LeafHashes:           [][]byte{unrollHash, backupHash},
			MasterKeyFingerprint: spendKey.MasterFingerprint(),
			Bip32Path:            spendKey.FullPath(out.Index),
		},
	}, nil
}
