package covenant

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/common/descriptor"
	"github.com/lfc-network/lfc/pkg/wallet"
)

const (
	// relative probabilities of the two spending paths, the round-advance
	// leaf is the expected one.
	backupWeight  = 1
	advanceWeight = 9
)

// Templates are the two address families of a wallet.
type Templates struct {
	Covenant *CovenantTemplate
	Spend    *SpendTemplate
}

// Compile builds the covenant and spend templates out of the two public
// hierarchies. It is the only place where they meet.
func Compile(
	cov *wallet.CovenantXPub, spend *wallet.SpendXPub,
	timelock uint16, net common.Network,
) (*Templates, error) {
	if cov == nil || cov.ExtendedKey == nil {
		return nil, fmt.Errorf("%w: missing covenant key", common.ErrTemplateCompile)
	}
	if spend == nil || spend.ExtendedKey == nil {
		return nil, fmt.Errorf("%w: missing spend key", common.ErrTemplateCompile)
	}
	if net.Params == nil {
		return nil, fmt.Errorf("%w: missing network", common.ErrTemplateCompile)
	}
	if cov.XPub != nil && spend.XPub != nil && cov.XPub.String() == spend.XPub.String() {
		return nil, fmt.Errorf(
			"%w: covenant and spend keys must differ", common.ErrTemplateCompile,
		)
	}

	covKey := descriptor.Key{Extended: cov.ExtendedKey}
	spendKey := descriptor.Key{Extended: spend.ExtendedKey}
	locktime := common.BlockLocktime(timelock)

	policy := &descriptor.OrPolicy{
		Branches: []descriptor.Branch{
			{
				Weight: backupWeight,
				Expr: &descriptor.And{
					First:  &descriptor.PK{Key: covKey},
					Second: &descriptor.PK{Key: spendKey},
				},
			},
			{
				Weight: advanceWeight,
				Expr: &descriptor.And{
					First:  &descriptor.Older{Locktime: locktime},
					Second: &descriptor.PK{Key: spendKey},
				},
			},
		},
	}

	covDesc, err := policy.CompileTaproot(
		descriptor.Key{PubKey: common.UnspendableKey()},
	)
	if err != nil {
		return nil, err
	}

	return &Templates{
		Covenant: &CovenantTemplate{
			Descriptor: covDesc,
			Policy:     policy,
			Locktime:   locktime,
			CovKey:     cov,
			SpendKey:   spend,
			net:        net,
		},
		Spend: &SpendTemplate{
			Descriptor: &descriptor.TaprootDescriptor{InternalKey: spendKey},
			SpendKey:   spend,
			net:        net,
		},
	}, nil
}

// CovenantTemplate is tr(NUMS,{and(older(t),pk(SPEND)),and(pk(COV),pk(SPEND))}).
type CovenantTemplate struct {
	Descriptor *descriptor.TaprootDescriptor
	Policy     *descriptor.OrPolicy
	Locktime   common.RelativeLocktime
	CovKey     *wallet.CovenantXPub
	SpendKey   *wallet.SpendXPub

	net common.Network
}

// CovenantOutput is the covenant template resolved at an index.
type CovenantOutput struct {
	*descriptor.TaprootOutput
	Index  uint32
	Unroll *CSVSigClosure
	Backup *MultisigClosure
}

func (t *CovenantTemplate) At(index uint32) (*CovenantOutput, error) {
	out, err := t.Descriptor.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	covPubkey, err := t.CovKey.DeriveAt(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}
	spendPubkey, err := t.SpendKey.DeriveAt(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	unroll := &CSVSigClosure{Pubkey: spendPubkey, Locktime: t.Locktime}
	backup := &MultisigClosure{CovenantPubkey: covPubkey, SpendPubkey: spendPubkey}

	// leaves rebuilt from closures must be the ones committed in the output
	for _, closure := range []Closure{unroll, backup} {
		leaf, err := closure.Leaf()
		if err != nil {
			return nil, err
		}
		if _, err := out.ControlBlock(*leaf); err != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrTemplateCompile, err)
		}
	}

	return &CovenantOutput{
		TaprootOutput: out,
		Index:         index,
		Unroll:        unroll,
		Backup:        backup,
	}, nil
}

func (t *CovenantTemplate) Address(index uint32) (*btcutil.AddressTaproot, error) {
	out, err := t.Descriptor.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}
	return out.Address(t.net)
}

func (t *CovenantTemplate) String() string {
	return t.Descriptor.String()
}

// SpendTemplate is the key-path only tr(SPEND).
type SpendTemplate struct {
	Descriptor *descriptor.TaprootDescriptor
	SpendKey   *wallet.SpendXPub

	net common.Network
}

func (t *SpendTemplate) At(index uint32) (*descriptor.TaprootOutput, error) {
	out, err := t.Descriptor.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}
	return out, nil
}

func (t *SpendTemplate) Address(index uint32) (*btcutil.AddressTaproot, error) {
	out, err := t.At(index)
	if err != nil {
		return nil, err
	}
	return out.Address(t.net)
}

func (t *SpendTemplate) String() string {
	return t.Descriptor.String()
}

// leafHash returns the tapleaf hash of a closure.
func leafHash(closure Closure) ([]byte, error) {
	leaf, err := closure.Leaf()
	if err != nil {
		return nil, err
	}
	hash := leaf.TapHash()
	return hash[:], nil
}
