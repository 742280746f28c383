package common

import "errors"

// Error kinds surfaced by the covenant core. Packages wrap them with
// context, callers match with errors.Is.
var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrDerivation      = errors.New("key derivation failed")
	ErrTemplateCompile = errors.New("template compilation failed")
	ErrPrecondition    = errors.New("precondition violated")
	ErrPersistence     = errors.New("persistence failure")
)
