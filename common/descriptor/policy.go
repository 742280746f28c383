package descriptor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lfc-network/lfc/common"
)

var (
	ErrInvalidOrPolicy = errors.New("invalid or() policy")
	ErrEmptyPolicy     = errors.New("policy has no branches")
	ErrZeroWeight      = errors.New("policy branch has zero weight")
	ErrUnsignedBranch  = errors.New("policy branch spendable without signature")
)

const orToken = "or("

// Branch is one alternative of an or() policy with its relative
// probability of being used.
type Branch struct {
	Weight uint
	Expr   Expression
}

func (b Branch) String() string {
	return fmt.Sprintf("%d@%s", b.Weight, b.Expr)
}

// OrPolicy is a spending policy made of weighted alternatives, as in
// or(1@and(pk(A),pk(B)),9@and(older(144),pk(B))).
type OrPolicy struct {
	Branches []Branch
}

func (p *OrPolicy) String() string {
	branches := make([]string, 0, len(p.Branches))
	for _, b := range p.Branches {
		branches = append(branches, b.String())
	}
	return fmt.Sprintf("or(%s)", strings.Join(branches, ","))
}

func ParseOrPolicy(policy string) (*OrPolicy, error) {
	policy = strings.ReplaceAll(policy, " ", "")
	if !strings.HasPrefix(policy, orToken) || !strings.HasSuffix(policy, ")") {
		return nil, ErrInvalidOrPolicy
	}

	parts, err := splitScriptTree(policy[len(orToken) : len(policy)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrPolicy, err)
	}

	branches := make([]Branch, 0, len(parts))
	for _, part := range parts {
		weight := uint64(1)
		if at := strings.IndexRune(part, '@'); at > 0 && !strings.ContainsAny(part[:at], "([") {
			weight, err = strconv.ParseUint(part[:at], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: bad weight %q", ErrInvalidOrPolicy, part[:at])
			}
			part = part[at+1:]
		}

		expr, err := parseExpression(part)
		if err != nil {
			return nil, err
		}
		branches = append(branches, Branch{Weight: uint(weight), Expr: expr})
	}

	return &OrPolicy{Branches: branches}, nil
}

// CompileTaproot turns the policy into a taproot descriptor with one leaf
// per branch, ordered by weight with the heaviest first. Branches of equal
// weight keep their declaration order.
func (p *OrPolicy) CompileTaproot(internalKey Key) (*TaprootDescriptor, error) {
	if internalKey.PubKey == nil && internalKey.Extended == nil {
		return nil, fmt.Errorf("%w: missing internal key", common.ErrTemplateCompile)
	}
	if len(p.Branches) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrTemplateCompile, ErrEmptyPolicy)
	}

	branches := make([]Branch, len(p.Branches))
	copy(branches, p.Branches)

	for _, b := range branches {
		if b.Weight == 0 {
			return nil, fmt.Errorf("%w: %s", common.ErrTemplateCompile, ErrZeroWeight)
		}
		if err := validate(b.Expr); err != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrTemplateCompile, err)
		}
		if !hasSignature(b.Expr) {
			return nil, fmt.Errorf(
				"%w: %s: %s", common.ErrTemplateCompile, ErrUnsignedBranch, b.Expr,
			)
		}
	}

	sort.SliceStable(branches, func(i, j int) bool {
		return branches[i].Weight > branches[j].Weight
	})

	leaves := make([]Expression, 0, len(branches))
	for _, b := range branches {
		leaves = append(leaves, b.Expr)
	}

	return &TaprootDescriptor{
		InternalKey: internalKey,
		ScriptTree:  leaves,
	}, nil
}
