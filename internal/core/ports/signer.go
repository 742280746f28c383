package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/lfc-network/lfc/internal/core/domain"
)

// Signer adds to a PSBT every signature it can produce for the inputs it
// recognizes through their bip32 derivations. It leaves finalization to
// the caller.
type Signer interface {
	SignPsbt(ctx context.Context, ptx *psbt.Packet) (*psbt.Packet, error)
}

// SignerFactory builds the signer of a wallet, a hardware device
// implementation would ignore the mnemonics.
type SignerFactory interface {
	NewSigner(ctx context.Context, state *domain.CovenantState) (Signer, error)
}
