package lending

import (
	"github.com/holiman/uint256"
)

// Interval is the spacing between consecutive maturities in seconds.
const Interval uint64 = 4 * 7 * 24 * 60 * 60

// maxMaturityRange is the largest offset, in intervals, a packed set can
// address above its base maturity.
const maxMaturityRange = 223

// PoolState classifies a maturity relative to the current timestamp.
type PoolState uint8

const (
	PoolInvalid PoolState = iota + 1
	PoolMatured
	PoolValid
	PoolNotReady
)

func (s PoolState) String() string {
	switch s {
	case PoolInvalid:
		return "invalid"
	case PoolMatured:
		return "matured"
	case PoolValid:
		return "valid"
	case PoolNotReady:
		return "not-ready"
	default:
		return "unknown"
	}
}

// MaturityState reports the state of maturity at timestamp now with
// maxPools maturities open at once. A maturity equal to now is matured.
func MaturityState(maturity, now uint64, maxPools uint8) PoolState {
	if maturity%Interval != 0 {
		return PoolInvalid
	}
	if maturity <= now {
		return PoolMatured
	}
	if maturity > now-now%Interval+Interval*uint64(maxPools) {
		return PoolNotReady
	}
	return PoolValid
}

// checkPoolState fails unless the maturity is in one of the allowed states.
func checkPoolState(maturity, now uint64, maxPools uint8, allowed ...PoolState) error {
	state := MaturityState(maturity, now, maxPools)
	for _, candidate := range allowed {
		if state == candidate {
			return nil
		}
	}
	switch state {
	case PoolInvalid:
		return ErrInvalidMaturity
	case PoolMatured:
		return ErrPoolMatured
	default:
		return ErrPoolNotReady
	}
}

// OpenMaturities lists the maturities accepting new positions at now.
func OpenMaturities(now uint64, maxPools uint8) []uint64 {
	latest := now - now%Interval
	out := make([]uint64, 0, maxPools)
	for i := uint64(1); i <= uint64(maxPools); i++ {
		out = append(out, latest+i*Interval)
	}
	return out
}

var (
	baseMask = new(uint256.Int).SetUint64(1<<32 - 1)
	baseFlag = new(uint256.Int).Lsh(uint256.NewInt(1), 32)
)

func baseMaturity(encoded *uint256.Int) uint64 {
	return new(uint256.Int).And(encoded, baseMask).Uint64()
}

// setMaturity adds maturity to the packed set. The low 32 bits hold the base
// maturity and bit 32+i marks base + i*Interval.
func setMaturity(encoded *uint256.Int, maturity uint64) (*uint256.Int, error) {
	if encoded == nil || encoded.IsZero() {
		out := new(uint256.Int).SetUint64(maturity)
		return out.Or(out, baseFlag), nil
	}
	base := baseMaturity(encoded)
	if maturity < base {
		shift := (base - maturity) / Interval
		if shift > maxMaturityRange {
			return nil, ErrMaturityOverflow
		}
		if !new(uint256.Int).Rsh(encoded, uint(256-shift)).IsZero() && shift > 0 {
			return nil, ErrMaturityOverflow
		}
		out := new(uint256.Int).Rsh(encoded, 32)
		out.Lsh(out, uint(32+shift))
		out.Or(out, new(uint256.Int).SetUint64(maturity))
		return out.Or(out, baseFlag), nil
	}
	offset := (maturity - base) / Interval
	if offset > maxMaturityRange {
		return nil, ErrMaturityOverflow
	}
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(32+offset))
	return new(uint256.Int).Or(encoded, bit), nil
}

// clearMaturity removes maturity from the packed set, rebasing when the base
// itself is removed.
func clearMaturity(encoded *uint256.Int, maturity uint64) *uint256.Int {
	if encoded == nil || encoded.IsZero() {
		return new(uint256.Int)
	}
	only := new(uint256.Int).SetUint64(maturity)
	only.Or(only, baseFlag)
	if encoded.Eq(only) {
		return new(uint256.Int)
	}
	base := baseMaturity(encoded)
	if maturity == base {
		packed := new(uint256.Int).Rsh(encoded, 33)
		shift := uint64(1)
		for !packed.IsZero() && packed.Uint64()&1 == 0 {
			shift++
			packed.Rsh(packed, 1)
		}
		out := new(uint256.Int).Rsh(encoded, uint(32+shift))
		out.Lsh(out, 32)
		return out.Or(out, new(uint256.Int).SetUint64(maturity+shift*Interval))
	}
	if maturity < base {
		return new(uint256.Int).Set(encoded)
	}
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(32+(maturity-base)/Interval))
	return new(uint256.Int).And(encoded, new(uint256.Int).Not(bit))
}

// maturityList expands a packed set into ascending maturities.
func maturityList(encoded *uint256.Int) []uint64 {
	if encoded == nil || encoded.IsZero() {
		return nil
	}
	maturity := baseMaturity(encoded)
	packed := new(uint256.Int).Rsh(encoded, 32)
	var out []uint64
	for !packed.IsZero() {
		if packed.Uint64()&1 == 1 {
			out = append(out, maturity)
		}
		packed.Rsh(packed, 1)
		maturity += Interval
	}
	return out
}
