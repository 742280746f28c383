package descriptor

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var (
	ErrInvalidKey         = errors.New("invalid key")
	ErrInvalidKeyOrigin   = errors.New("invalid key origin")
	ErrInvalidPathElement = errors.New("invalid derivation path element")
	ErrHardenedChild      = errors.New("hardened child derivation from public key")
	ErrMissingWildcard    = errors.New("key has no wildcard")
)

// ExtendedKey is an account level extended public key as it appears in an
// output descriptor: [fingerprint/origin]xpub/path/*
type ExtendedKey struct {
	// Fingerprint of the master key, the first 4 bytes of HASH160(pubkey).
	Fingerprint [4]byte
	Origin      []uint32
	XPub        *hdkeychain.ExtendedKey
	Path        []uint32
	Wildcard    bool
}

// MasterFingerprint returns the fingerprint in the little endian integer
// form used by PSBT bip32 derivation fields.
func (k *ExtendedKey) MasterFingerprint() uint32 {
	return binary.LittleEndian.Uint32(k.Fingerprint[:])
}

// FullPath returns the derivation path from the master key to the child at
// the given index.
func (k *ExtendedKey) FullPath(index uint32) []uint32 {
	path := make([]uint32, 0, len(k.Origin)+len(k.Path)+1)
	path = append(path, k.Origin...)
	path = append(path, k.Path...)
	if k.Wildcard {
		path = append(path, index)
	}
	return path
}

// DeriveAt returns the public key at the given wildcard index. The index is
// ignored for keys without wildcard.
func (k *ExtendedKey) DeriveAt(index uint32) (*btcec.PublicKey, error) {
	if k.XPub == nil {
		return nil, ErrInvalidKey
	}
	if k.Wildcard && index >= hdkeychain.HardenedKeyStart {
		return nil, ErrHardenedChild
	}

	path := k.Path
	if k.Wildcard {
		path = append(append([]uint32{}, k.Path...), index)
	}

	key := k.XPub
	for _, child := range path {
		next, err := key.Derive(child)
		if err != nil {
			return nil, err
		}
		key = next
	}
	return key.ECPubKey()
}

func (k *ExtendedKey) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(hex.EncodeToString(k.Fingerprint[:]))
	if len(k.Origin) > 0 {
		sb.WriteString("/")
		sb.WriteString(formatPath(k.Origin))
	}
	sb.WriteString("]")
	sb.WriteString(k.XPub.String())
	if len(k.Path) > 0 {
		sb.WriteString("/")
		sb.WriteString(formatPath(k.Path))
	}
	if k.Wildcard {
		sb.WriteString("/*")
	}
	return sb.String()
}

func ParseExtendedKey(str string) (*ExtendedKey, error) {
	key := &ExtendedKey{}

	if strings.HasPrefix(str, "[") {
		end := strings.IndexRune(str, ']')
		if end == -1 {
			return nil, ErrInvalidKeyOrigin
		}
		origin := strings.Split(str[1:end], "/")
		fingerprint, err := hex.DecodeString(origin[0])
		if err != nil || len(fingerprint) != 4 {
			return nil, ErrInvalidKeyOrigin
		}
		copy(key.Fingerprint[:], fingerprint)
		if key.Origin, err = parsePath(origin[1:]); err != nil {
			return nil, err
		}
		str = str[end+1:]
	}

	parts := strings.Split(str, "/")
	xpub, err := hdkeychain.NewKeyFromString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err)
	}
	if xpub.IsPrivate() {
		return nil, fmt.Errorf("%w: private extended key", ErrInvalidKey)
	}
	key.XPub = xpub

	children := parts[1:]
	if len(children) > 0 && children[len(children)-1] == "*" {
		key.Wildcard = true
		children = children[:len(children)-1]
	}
	if key.Path, err = parsePath(children); err != nil {
		return nil, err
	}
	for _, child := range key.Path {
		if child >= hdkeychain.HardenedKeyStart {
			return nil, ErrHardenedChild
		}
	}

	return key, nil
}

// Key is either a fixed x-only public key or an extended key resolved at a
// derivation index.
type Key struct {
	PubKey   *btcec.PublicKey
	Extended *ExtendedKey
}

func (k Key) IsExtended() bool {
	return k.Extended != nil
}

func (k Key) At(index uint32) (*btcec.PublicKey, error) {
	if k.Extended != nil {
		return k.Extended.DeriveAt(index)
	}
	if k.PubKey == nil {
		return nil, ErrInvalidKey
	}
	return k.PubKey, nil
}

func (k Key) String() string {
	if k.Extended != nil {
		return k.Extended.String()
	}
	if k.PubKey == nil {
		return ""
	}
	return hex.EncodeToString(schnorr.SerializePubKey(k.PubKey))
}

func parseKey(str string) (Key, error) {
	if strings.HasPrefix(str, "[") || strings.Contains(str, "pub") {
		extended, err := ParseExtendedKey(str)
		if err != nil {
			return Key{}, err
		}
		return Key{Extended: extended}, nil
	}

	decoded, err := hex.DecodeString(str)
	if err != nil {
		return Key{}, fmt.Errorf("%w: not a valid hex string", ErrInvalidKey)
	}

	switch len(decoded) {
	case 32:
		pubkey, err := schnorr.ParsePubKey(decoded)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %s", ErrInvalidKey, err)
		}
		return Key{PubKey: pubkey}, nil
	case 33:
		// compressed keys are accepted and reduced to their x coordinate
		pubkey, err := btcec.ParsePubKey(decoded)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %s", ErrInvalidKey, err)
		}
		xonly, _ := schnorr.ParsePubKey(schnorr.SerializePubKey(pubkey))
		return Key{PubKey: xonly}, nil
	default:
		return Key{}, fmt.Errorf(
			"%w: expected 32 or 33 bytes, got %d", ErrInvalidKey, len(decoded),
		)
	}
}

func parsePath(elements []string) ([]uint32, error) {
	path := make([]uint32, 0, len(elements))
	for _, element := range elements {
		if element == "" {
			return nil, ErrInvalidPathElement
		}
		hardened := strings.HasSuffix(element, "'") || strings.HasSuffix(element, "h")
		if hardened {
			element = element[:len(element)-1]
		}
		index, err := strconv.ParseUint(element, 10, 32)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPathElement, element)
		}
		child := uint32(index)
		if hardened {
			child += hdkeychain.HardenedKeyStart
		}
		path = append(path, child)
	}
	return path, nil
}

func formatPath(path []uint32) string {
	elements := make([]string, 0, len(path))
	for _, child := range path {
		if child >= hdkeychain.HardenedKeyStart {
			elements = append(elements, fmt.Sprintf("%d'", child-hdkeychain.HardenedKeyStart))
			continue
		}
		elements = append(elements, strconv.FormatUint(uint64(child), 10))
	}
	return strings.Join(elements, "/")
}
