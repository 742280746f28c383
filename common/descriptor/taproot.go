package descriptor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lfc-network/lfc/common"
)

var (
	ErrInvalidDescriptor = errors.New("invalid descriptor format")
	ErrInvalidScriptTree = errors.New("invalid script tree format")
	ErrLeafNotFound      = errors.New("leaf not found in script tree")
)

// TaprootDescriptor is a tr(KEY) or tr(KEY,{leaf,leaf,...}) descriptor.
// Leaves keep their declaration order.
type TaprootDescriptor struct {
	InternalKey Key
	ScriptTree  []Expression
}

func (d *TaprootDescriptor) String() string {
	if len(d.ScriptTree) == 0 {
		return fmt.Sprintf("tr(%s)", d.InternalKey)
	}
	leaves := make([]string, 0, len(d.ScriptTree))
	for _, leaf := range d.ScriptTree {
		leaves = append(leaves, leaf.String())
	}
	return fmt.Sprintf("tr(%s,{%s})", d.InternalKey, strings.Join(leaves, ","))
}

func ParseTaprootDescriptor(desc string) (*TaprootDescriptor, error) {
	desc = strings.ReplaceAll(desc, " ", "")

	if !strings.HasPrefix(desc, "tr(") || !strings.HasSuffix(desc, ")") {
		return nil, ErrInvalidDescriptor
	}

	parts, err := splitScriptTree(desc[3 : len(desc)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDescriptor, err)
	}
	if len(parts) < 1 || len(parts) > 2 {
		return nil, ErrInvalidDescriptor
	}

	internalKey, err := parseKey(parts[0])
	if err != nil {
		return nil, err
	}

	scriptTree := []Expression{}
	if len(parts) == 2 {
		treeStr := parts[1]
		if !strings.HasPrefix(treeStr, "{") || !strings.HasSuffix(treeStr, "}") {
			return nil, ErrInvalidScriptTree
		}
		treeStr = treeStr[1 : len(treeStr)-1]
		if treeStr == "" {
			return nil, ErrInvalidScriptTree
		}

		leaves, err := splitScriptTree(treeStr)
		if err != nil {
			return nil, err
		}
		for _, leafStr := range leaves {
			leaf, err := parseExpression(leafStr)
			if err != nil {
				return nil, err
			}
			scriptTree = append(scriptTree, leaf)
		}
	}

	return &TaprootDescriptor{
		InternalKey: internalKey,
		ScriptTree:  scriptTree,
	}, nil
}

// Derive resolves every key of the descriptor at the given index and
// computes the taproot output.
func (d *TaprootDescriptor) Derive(index uint32) (*TaprootOutput, error) {
	internalKey, err := d.InternalKey.At(index)
	if err != nil {
		return nil, err
	}

	out := &TaprootOutput{InternalKey: internalKey}

	if len(d.ScriptTree) == 0 {
		out.OutputKey = txscript.ComputeTaprootKeyNoScript(internalKey)
	} else {
		out.Leaves = make([]txscript.TapLeaf, 0, len(d.ScriptTree))
		for _, expr := range d.ScriptTree {
			script, err := expr.Script(index, false)
			if err != nil {
				return nil, err
			}
			out.Leaves = append(out.Leaves, txscript.NewBaseTapLeaf(script))
		}
		out.tree = txscript.AssembleTaprootScriptTree(out.Leaves...)
		root := out.tree.RootNode.TapHash()
		out.OutputKey = txscript.ComputeTaprootOutputKey(internalKey, root[:])
	}

	pkScript, err := common.P2TRScript(out.OutputKey)
	if err != nil {
		return nil, err
	}
	out.PkScript = pkScript

	return out, nil
}

// TaprootOutput is a descriptor resolved at a derivation index.
type TaprootOutput struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	Leaves      []txscript.TapLeaf
	PkScript    []byte

	tree *txscript.IndexedTapScriptTree
}

// MerkleRoot returns nil for key-path only outputs.
func (o *TaprootOutput) MerkleRoot() []byte {
	if o.tree == nil {
		return nil
	}
	root := o.tree.RootNode.TapHash()
	return root[:]
}

func (o *TaprootOutput) Address(net common.Network) (*btcutil.AddressTaproot, error) {
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(o.OutputKey), net.Params)
}

// ControlBlock returns the serialized control block proving the inclusion
// of the given leaf in the output.
func (o *TaprootOutput) ControlBlock(leaf txscript.TapLeaf) ([]byte, error) {
	if o.tree == nil {
		return nil, ErrLeafNotFound
	}

	index, ok := o.tree.LeafProofIndex[leaf.TapHash()]
	if !ok {
		return nil, ErrLeafNotFound
	}

	proof := o.tree.LeafMerkleProofs[index]
	ctrl := proof.ToControlBlock(o.InternalKey)
	return ctrl.ToBytes()
}
