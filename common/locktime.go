package common

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
)

const (
	SEQUENCE_LOCKTIME_MASK         = 0x0000ffff
	SEQUENCE_LOCKTIME_TYPE_FLAG    = 1 << 22
	SEQUENCE_LOCKTIME_GRANULARITY  = 9
	SECONDS_MOD                    = 1 << SEQUENCE_LOCKTIME_GRANULARITY
	SECONDS_MAX                    = SEQUENCE_LOCKTIME_MASK << SEQUENCE_LOCKTIME_GRANULARITY
	SEQUENCE_LOCKTIME_DISABLE_FLAG = 1 << 31
)

// RelativeLocktimeType represents a BIP68 relative locktime
// it is passed as argument to CheckSequenceVerify opcode
type RelativeLocktimeType uint

const (
	LocktimeTypeSecond RelativeLocktimeType = iota
	LocktimeTypeBlock
)

// RelativeLocktime represents a BIP68 relative timelock value
type RelativeLocktime struct {
	Type  RelativeLocktimeType
	Value uint32
}

// BlockLocktime returns the relative locktime of the given number of blocks.
func BlockLocktime(blocks uint16) RelativeLocktime {
	return RelativeLocktime{Type: LocktimeTypeBlock, Value: uint32(blocks)}
}

func (l RelativeLocktime) String() string {
	if l.Type == LocktimeTypeBlock {
		return fmt.Sprintf("%d blocks", l.Value)
	}
	return fmt.Sprintf("%d seconds", l.Value)
}

func BIP68Sequence(locktime RelativeLocktime) (uint32, error) {
	value := locktime.Value
	isSeconds := locktime.Type == LocktimeTypeSecond
	if isSeconds {
		if value > SECONDS_MAX {
			return 0, fmt.Errorf("seconds too large, max is %d", SECONDS_MAX)
		}
		if value%SECONDS_MOD != 0 {
			return 0, fmt.Errorf("seconds must be a multiple of %d", SECONDS_MOD)
		}
	} else if value > SEQUENCE_LOCKTIME_MASK {
		return 0, fmt.Errorf("blocks too large, max is %d", SEQUENCE_LOCKTIME_MASK)
	}

	return blockchain.LockTimeToSequence(isSeconds, value), nil
}

// BIP68DecodeSequence decodes the minimally encoded script number pushed
// before an OP_CHECKSEQUENCEVERIFY.
func BIP68DecodeSequence(sequence []byte) (*RelativeLocktime, error) {
	scriptNumber, err := txscript.MakeScriptNum(sequence, true, len(sequence))
	if err != nil {
		return nil, err
	}
	if scriptNumber < 0 || int64(scriptNumber) > 0xffffffff {
		return nil, fmt.Errorf("sequence out of range")
	}

	return SequenceLocktime(uint32(scriptNumber))
}

// SequenceLocktime returns the relative locktime encoded by a BIP68 sequence.
func SequenceLocktime(sequence uint32) (*RelativeLocktime, error) {
	if sequence&SEQUENCE_LOCKTIME_DISABLE_FLAG != 0 {
		return nil, fmt.Errorf("sequence is disabled")
	}
	if sequence&SEQUENCE_LOCKTIME_TYPE_FLAG != 0 {
		seconds := (sequence & SEQUENCE_LOCKTIME_MASK) << SEQUENCE_LOCKTIME_GRANULARITY
		return &RelativeLocktime{Type: LocktimeTypeSecond, Value: seconds}, nil
	}

	return &RelativeLocktime{Type: LocktimeTypeBlock, Value: sequence & SEQUENCE_LOCKTIME_MASK}, nil
}

// SequenceSatisfies reports whether an input sequence satisfies a relative
// locktime as OP_CHECKSEQUENCEVERIFY would evaluate it.
func SequenceSatisfies(sequence uint32, locktime RelativeLocktime) bool {
	required, err := BIP68Sequence(locktime)
	if err != nil {
		return false
	}
	if sequence&SEQUENCE_LOCKTIME_DISABLE_FLAG != 0 {
		return false
	}
	if sequence&SEQUENCE_LOCKTIME_TYPE_FLAG != required&SEQUENCE_LOCKTIME_TYPE_FLAG {
		return false
	}
	return sequence&SEQUENCE_LOCKTIME_MASK >= required&SEQUENCE_LOCKTIME_MASK
}
