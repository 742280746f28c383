package common

const (
	// DefaultFee is the flat fee in sats paid by every crafted transaction.
	DefaultFee uint64 = 600

	// Dust is the smallest change output the wallet creates, anything
	// below goes to fees.
	Dust uint64 = 330
)
