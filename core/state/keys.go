package state

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"lukechampine.com/blake3"
)

const (
	lendingPrefix = "lending/"
	auditorPrefix = "auditor/"
)

func normalizeMarket(market string) string {
	return strings.ToUpper(strings.TrimSpace(market))
}

// FloatingPoolKey is the key of a market's floating pool record.
func FloatingPoolKey(market string) []byte {
	return []byte(lendingPrefix + normalizeMarket(market) + "/floating")
}

// FixedPoolKey is the key of one maturity pool.
func FixedPoolKey(market string, maturity uint64) []byte {
	return []byte(lendingPrefix + normalizeMarket(market) + "/fixed/" + strconv.FormatUint(maturity, 10))
}

// PositionKey is the key of an account's fixed position. The suffix is the
// blake3 digest of the big-endian maturity followed by the account bytes.
func PositionKey(market, side string, maturity uint64, addr common.Address) []byte {
	buf := make([]byte, 8+common.AddressLength)
	binary.BigEndian.PutUint64(buf, maturity)
	copy(buf[8:], addr.Bytes())
	digest := blake3.Sum256(buf)
	return []byte(lendingPrefix + normalizeMarket(market) + "/pos/" + side + "/" + hex.EncodeToString(digest[:]))
}

// AccountKey is the key of an account's per-market record.
func AccountKey(market string, addr common.Address) []byte {
	return []byte(lendingPrefix + normalizeMarket(market) + "/acct/" + strings.ToLower(addr.Hex()))
}

// AccountIndexKey lists every account that ever held a record in the market.
func AccountIndexKey(market string) []byte {
	return []byte(lendingPrefix + normalizeMarket(market) + "/accounts")
}

// RegistryKey is the key of the auditor's market registry.
func RegistryKey() []byte { return []byte(auditorPrefix + "registry") }

// MarketDataKey is the key of a listed market's risk parameters.
func MarketDataKey(market string) []byte {
	return []byte(auditorPrefix + "market/" + normalizeMarket(market))
}

// AccountMarketsKey is the key of an account's market membership mask.
func AccountMarketsKey(addr common.Address) []byte {
	return []byte(auditorPrefix + "acct/" + strings.ToLower(addr.Hex()))
}

// MemberIndexKey lists every account that entered at least one market.
func MemberIndexKey() []byte { return []byte(auditorPrefix + "members") }
