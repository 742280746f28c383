package wallet_test

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/pkg/wallet"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewMnemonic(t *testing.T) {
	mnemonic, err := wallet.NewMnemonic()
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 12)
	require.NoError(t, wallet.ValidateMnemonic(mnemonic))

	other, err := wallet.NewMnemonic()
	require.NoError(t, err)
	require.NotEqual(t, mnemonic, other)
}

func TestKeys(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cov, err := wallet.NewCovenantKey(testMnemonic, 0)
		require.NoError(t, err)
		require.Equal(t, uint32(0x0adac573), cov.Fingerprint())

		xpub, err := cov.XPub(wallet.DefaultSubAccount)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(xpub.String(), "[73c5da0a/84'/1'/0']tpub"))
		require.True(t, strings.HasSuffix(xpub.String(), "/1/*"))

		again, err := wallet.NewCovenantKey(testMnemonic, 0)
		require.NoError(t, err)
		xpubAgain, err := again.XPub(wallet.DefaultSubAccount)
		require.NoError(t, err)
		require.Equal(t, xpub.String(), xpubAgain.String())

		other, err := cov.XPub(0)
		require.NoError(t, err)
		require.NotEqual(t, xpub.String(), other.String())

		for _, index := range []uint32{0, 1, 42} {
			privkey, err := cov.PrivKey(wallet.DefaultSubAccount, index)
			require.NoError(t, err)
			pubkey, err := xpub.DeriveAt(index)
			require.NoError(t, err)
			require.True(t, pubkey.IsEqual(privkey.PubKey()))
		}
	})

	t.Run("hierarchies are independent", func(t *testing.T) {
		spendMnemonic, err := wallet.NewMnemonic()
		require.NoError(t, err)

		cov, err := wallet.NewCovenantKey(testMnemonic, 0)
		require.NoError(t, err)
		spend, err := wallet.NewSpendKey(spendMnemonic, 0)
		require.NoError(t, err)

		covXPub, err := cov.XPub(wallet.DefaultSubAccount)
		require.NoError(t, err)
		spendXPub, err := spend.XPub(wallet.DefaultSubAccount)
		require.NoError(t, err)
		require.NotEqual(t, covXPub.String(), spendXPub.String())

		sameAsCov, err := wallet.NewSpendKey(testMnemonic, 1)
		require.NoError(t, err)
		require.Equal(t, uint32(1), sameAsCov.Account())
		xpub, err := sameAsCov.XPub(wallet.DefaultSubAccount)
		require.NoError(t, err)
		require.NotEqual(t, covXPub.String(), xpub.String())
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name     string
			mnemonic string
			account  uint32
			err      error
		}{
			{"empty mnemonic", "", 0, common.ErrInvalidMnemonic},
			{"bad checksum", strings.Repeat("abandon ", 12), 0, common.ErrInvalidMnemonic},
			{"unknown word", strings.Replace(testMnemonic, "about", "lfc", 1), 0, common.ErrInvalidMnemonic},
			{"too many words", testMnemonic + " abandon", 0, common.ErrInvalidMnemonic},
			{"account out of range", testMnemonic, wallet.MaxAccount, common.ErrDerivation},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				_, err := wallet.NewCovenantKey(f.mnemonic, f.account)
				require.ErrorIs(t, err, f.err)
				_, err = wallet.NewSpendKey(f.mnemonic, f.account)
				require.ErrorIs(t, err, f.err)
			})
		}

		cov, err := wallet.NewCovenantKey(testMnemonic, 0)
		require.NoError(t, err)
		_, err = cov.XPub(hdkeychain.HardenedKeyStart)
		require.ErrorIs(t, err, common.ErrDerivation)
		_, err = cov.PrivKey(wallet.DefaultSubAccount, hdkeychain.HardenedKeyStart)
		require.ErrorIs(t, err, common.ErrDerivation)
	})
}

func TestParseDerivationPath(t *testing.T) {
	h := uint32(hdkeychain.HardenedKeyStart)

	t.Run("valid", func(t *testing.T) {
		fixtures := []struct {
			input    string
			expected wallet.DerivationPath
		}{
			{"m/84'/1'/0'", wallet.DerivationPath{h + 84, h + 1, h}},
			{"m/84h/1h/0h/1/5", wallet.DerivationPath{h + 84, h + 1, h, 1, 5}},
			{"84'/1'/0/0", wallet.DerivationPath{h + 84, h + 1, 0, 0}},
			{"m/0x54'/0x01'/0x00'", wallet.DerivationPath{h + 84, h + 1, h}},
			{"m/2147483732/2147483649/2147483648", wallet.DerivationPath{h + 84, h + 1, h}},
			{" m / 84 ' / 1' / 0'", wallet.DerivationPath{h + 84, h + 1, h}},
		}
		for _, f := range fixtures {
			path, err := wallet.ParseDerivationPath(f.input)
			require.NoError(t, err, f.input)
			require.Equal(t, f.expected, path)
		}

		origin, err := wallet.OriginPath(7)
		require.NoError(t, err)
		require.Equal(t, "m/84'/1'/7'", origin.String())

		parsed, err := wallet.ParseDerivationPath(origin.String())
		require.NoError(t, err)
		require.Equal(t, origin, parsed)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			input string
			err   error
		}{
			{"", wallet.ErrNullDerivationPath},
			{"m", wallet.ErrMalformedDerivationPath},
			{"m/", wallet.ErrMalformedDerivationPath},
			{"/84'/1'", wallet.ErrMalformedDerivationPath},
			{"m/2147483648'", nil},
			{"m/-1'", nil},
			{"m/x", nil},
		}
		for _, f := range fixtures {
			path, err := wallet.ParseDerivationPath(f.input)
			require.Error(t, err, f.input)
			require.Nil(t, path)
			if f.err != nil {
				require.ErrorIs(t, err, f.err)
			}
		}

		_, err := wallet.OriginPath(wallet.MaxAccount)
		require.ErrorIs(t, err, wallet.ErrAccountOutOfRange)
	})
}
