package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vulpemventures/go-bip39"
)

const mnemonicEntropySize = 128

var (
	// ErrMnemonicWordCount ...
	ErrMnemonicWordCount = errors.New("mnemonic must be made of 12 words")
)

// NewMnemonic returns a new 12-word BIP39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropySize)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks the mnemonic against the BIP39 english wordlist
// and its checksum.
func ValidateMnemonic(mnemonic string) error {
	words := strings.Fields(mnemonic)
	if len(words) != 12 {
		return ErrMnemonicWordCount
	}
	normalized := strings.Join(words, " ")
	if !bip39.IsMnemonicValid(normalized) {
		return errors.New("invalid mnemonic word")
	}
	if _, err := bip39.EntropyFromMnemonic(normalized); err != nil {
		return fmt.Errorf("invalid mnemonic checksum: %w", err)
	}
	return nil
}

func seedFromMnemonic(mnemonic string) []byte {
	return bip39.NewSeed(strings.Join(strings.Fields(mnemonic), " "), "")
}
