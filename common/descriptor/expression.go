package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lfc-network/lfc/common"
)

var (
	ErrInvalidPkPolicy    = errors.New("invalid public key policy")
	ErrInvalidOlderPolicy = errors.New("invalid older policy")
	ErrInvalidAndPolicy   = errors.New("invalid and() policy")
	ErrNotExpectedPolicy  = errors.New("not the expected policy")
)

const (
	pkToken    = "pk("
	olderToken = "older("
	andToken   = "and("
)

// Expression is a miniscript-like fragment. Script renders it for the keys
// derived at the given index, verify asks the fragment to leave nothing on
// the stack (CHECKSIGVERIFY instead of CHECKSIG).
type Expression interface {
	Parse(policy string) error
	Script(index uint32, verify bool) ([]byte, error)
	String() string
}

// pk(key)
type PK struct {
	Key Key
}

func (e *PK) String() string {
	return fmt.Sprintf("pk(%s)", e.Key)
}

func (e *PK) Parse(policy string) error {
	if !strings.HasPrefix(policy, pkToken) {
		return ErrNotExpectedPolicy
	}
	if !strings.HasSuffix(policy, ")") {
		return ErrInvalidPkPolicy
	}

	key, err := parseKey(policy[len(pkToken) : len(policy)-1])
	if err != nil {
		return err
	}

	e.Key = key
	return nil
}

func (e *PK) Script(index uint32, verify bool) ([]byte, error) {
	pubkey, err := e.Key.At(index)
	if err != nil {
		return nil, err
	}

	checksig := txscript.OP_CHECKSIG
	if verify {
		checksig = txscript.OP_CHECKSIGVERIFY
	}

	return txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(pubkey)).
		AddOp(byte(checksig)).
		Script()
}

// older(n), n is a BIP68 encoded relative locktime
type Older struct {
	Locktime common.RelativeLocktime
}

func (e *Older) String() string {
	sequence, err := common.BIP68Sequence(e.Locktime)
	if err != nil {
		return fmt.Sprintf("older(%d)", e.Locktime.Value)
	}
	return fmt.Sprintf("older(%d)", sequence)
}

func (e *Older) Parse(policy string) error {
	if !strings.HasPrefix(policy, olderToken) {
		return ErrNotExpectedPolicy
	}

	index := strings.IndexRune(policy, ')')
	if index == -1 {
		return ErrInvalidOlderPolicy
	}

	number := policy[len(olderToken):index]
	if len(number) == 0 {
		return ErrInvalidOlderPolicy
	}

	sequence, err := strconv.ParseUint(number, 10, 32)
	if err != nil || sequence == 0 {
		return ErrInvalidOlderPolicy
	}

	locktime, err := common.SequenceLocktime(uint32(sequence))
	if err != nil {
		return ErrInvalidOlderPolicy
	}

	e.Locktime = *locktime
	return nil
}

func (e *Older) Script(uint32, bool) ([]byte, error) {
	sequence, err := common.BIP68Sequence(e.Locktime)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddInt64(int64(sequence)).
		AddOps([]byte{
			txscript.OP_CHECKSEQUENCEVERIFY,
			txscript.OP_DROP,
		}).
		Script()
}

type And struct {
	First  Expression
	Second Expression
}

func (e *And) String() string {
	return fmt.Sprintf("and(%s,%s)", e.First.String(), e.Second.String())
}

func (e *And) Parse(policy string) error {
	if !strings.HasPrefix(policy, andToken) {
		return ErrNotExpectedPolicy
	}
	if !strings.HasSuffix(policy, ")") {
		return ErrInvalidAndPolicy
	}

	parts, err := splitScriptTree(policy[len(andToken) : len(policy)-1])
	if err != nil {
		return ErrInvalidAndPolicy
	}

	if len(parts) != 2 {
		return ErrInvalidAndPolicy
	}

	first, err := parseExpression(parts[0])
	if err != nil {
		return err
	}

	second, err := parseExpression(parts[1])
	if err != nil {
		return err
	}

	e.First = first
	e.Second = second

	return nil
}

func (e *And) Script(index uint32, verify bool) ([]byte, error) {
	firstScript, err := e.First.Script(index, true)
	if err != nil {
		return nil, err
	}

	secondScript, err := e.Second.Script(index, verify)
	if err != nil {
		return nil, err
	}

	return append(firstScript, secondScript...), nil
}

// hasSignature reports whether satisfying the expression requires at least
// one signature.
func hasSignature(e Expression) bool {
	switch expr := e.(type) {
	case *PK:
		return true
	case *And:
		return hasSignature(expr.First) || hasSignature(expr.Second)
	default:
		return false
	}
}

// validate rejects fragments that could never be satisfied or whose keys
// are missing.
func validate(e Expression) error {
	switch expr := e.(type) {
	case *PK:
		if expr.Key.PubKey == nil && expr.Key.Extended == nil {
			return fmt.Errorf("%w: missing key", ErrInvalidPkPolicy)
		}
	case *Older:
		if expr.Locktime.Value == 0 {
			return fmt.Errorf("%w: zero locktime", ErrInvalidOlderPolicy)
		}
		if _, err := common.BIP68Sequence(expr.Locktime); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidOlderPolicy, err)
		}
	case *And:
		if expr.First == nil || expr.Second == nil {
			return ErrInvalidAndPolicy
		}
		if err := validate(expr.First); err != nil {
			return err
		}
		return validate(expr.Second)
	case nil:
		return fmt.Errorf("missing expression")
	}
	return nil
}

func parseExpression(policy string) (Expression, error) {
	policy = strings.TrimSpace(policy)
	expressions := []Expression{&PK{}, &Older{}, &And{}}

	for _, e := range expressions {
		if err := e.Parse(policy); err != nil {
			if err != ErrNotExpectedPolicy {
				return nil, err
			}
			continue
		}

		return e, nil
	}

	return nil, fmt.Errorf("unable to parse expression '%s'", policy)
}

func splitScriptTree(scriptTreeStr string) ([]string, error) {
	var result []string
	var current strings.Builder
	depth := 0

	for _, char := range scriptTreeStr {
		switch char {
		case '(', '{', '[':
			depth++
			current.WriteRune(char)
		case ')', '}', ']':
			depth--
			current.WriteRune(char)
		case ',':
			if depth == 0 {
				result = append(result, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
			current.WriteRune(char)
		default:
			current.WriteRune(char)
		}
		if depth < 0 {
			return nil, fmt.Errorf("mismatched parentheses in script tree")
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("mismatched parentheses in script tree")
	}
	if current.Len() > 0 {
		result = append(result, strings.TrimSpace(current.String()))
	}

	return result, nil
}
