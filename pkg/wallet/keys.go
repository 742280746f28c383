package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/common/descriptor"
)

// masterKey is the BIP32 root built from a mnemonic. Extended keys are
// always serialized with testnet version bytes, the network only matters
// for addresses.
type masterKey struct {
	key         *hdkeychain.ExtendedKey
	fingerprint [4]byte
}

func newMasterKey(mnemonic string) (*masterKey, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidMnemonic, err)
	}

	key, err := hdkeychain.NewMaster(
		seedFromMnemonic(mnemonic), &chaincfg.RegressionNetParams,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	pubkey, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	m := &masterKey{key: key}
	copy(m.fingerprint[:], btcutil.Hash160(pubkey.SerializeCompressed())[:4])
	return m, nil
}

func (m *masterKey) derive(path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	key := m.key
	for _, step := range path {
		next, err := key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at %s", common.ErrDerivation, err, path)
		}
		key = next
	}
	return key, nil
}

// accountKey is the private hierarchy rooted at m/84'/1'/account'.
type accountKey struct {
	master  *masterKey
	account uint32
	origin  DerivationPath
}

func newAccountKey(mnemonic string, account uint32) (*accountKey, error) {
	origin, err := OriginPath(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}
	master, err := newMasterKey(mnemonic)
	if err != nil {
		return nil, err
	}
	return &accountKey{master, account, origin}, nil
}

func (k *accountKey) xpub(subAccount uint32) (*descriptor.ExtendedKey, error) {
	if subAccount >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("%w: hardened sub account", common.ErrDerivation)
	}

	xprv, err := k.master.derive(k.origin)
	if err != nil {
		return nil, err
	}
	xpub, err := xprv.Neuter()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}

	return &descriptor.ExtendedKey{
		Fingerprint: k.master.fingerprint,
		Origin:      append([]uint32{}, k.origin...),
		XPub:        xpub,
		Path:        []uint32{subAccount},
		Wildcard:    true,
	}, nil
}

func (k *accountKey) privKey(subAccount, index uint32) (*btcec.PrivateKey, error) {
	if subAccount >= hdkeychain.HardenedKeyStart || index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("%w: hardened child", common.ErrDerivation)
	}

	path := append(append(DerivationPath{}, k.origin...), subAccount, index)
	xprv, err := k.master.derive(path)
	if err != nil {
		return nil, err
	}
	privkey, err := xprv.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDerivation, err)
	}
	return privkey, nil
}

// Fingerprint is the master key fingerprint in PSBT (little endian) form.
func (k *accountKey) Fingerprint() uint32 {
	return (&descriptor.ExtendedKey{Fingerprint: k.master.fingerprint}).MasterFingerprint()
}

func (k *accountKey) Account() uint32 {
	return k.account
}

// CovenantKey holds the hierarchy of the covenant (locking) mnemonic.
type CovenantKey struct {
	*accountKey
}

// CovenantXPub is the public descriptor key of the covenant hierarchy.
type CovenantXPub struct {
	*descriptor.ExtendedKey
}

func NewCovenantKey(mnemonic string, account uint32) (*CovenantKey, error) {
	key, err := newAccountKey(mnemonic, account)
	if err != nil {
		return nil, err
	}
	return &CovenantKey{key}, nil
}

func (k *CovenantKey) XPub(subAccount uint32) (*CovenantXPub, error) {
	xpub, err := k.xpub(subAccount)
	if err != nil {
		return nil, err
	}
	return &CovenantXPub{xpub}, nil
}

func (k *CovenantKey) PrivKey(subAccount, index uint32) (*btcec.PrivateKey, error) {
	return k.privKey(subAccount, index)
}

// SpendKey holds the hierarchy of the spend (hot) mnemonic.
type SpendKey struct {
	*accountKey
}

// SpendXPub is the public descriptor key of the spend hierarchy.
type SpendXPub struct {
	*descriptor.ExtendedKey
}

func NewSpendKey(mnemonic string, account uint32) (*SpendKey, error) {
	key, err := newAccountKey(mnemonic, account)
	if err != nil {
		return nil, err
	}
	return &SpendKey{key}, nil
}

func (k *SpendKey) XPub(subAccount uint32) (*SpendXPub, error) {
	xpub, err := k.xpub(subAccount)
	if err != nil {
		return nil, err
	}
	return &SpendXPub{xpub}, nil
}

func (k *SpendKey) PrivKey(subAccount, index uint32) (*btcec.PrivateKey, error) {
	return k.privKey(subAccount, index)
}
