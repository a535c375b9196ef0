package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"termlend/core/events"
)

// ledgerState is the persistence surface a market reads and writes. Getters
// return nil for records that were never written. Snapshot and
// RevertToSnapshot give every operation all-or-nothing semantics, including
// the events it appended.
type ledgerState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	AppendEvent(evt events.Event)

	GetFloatingPool(market string) (*FloatingPool, error)
	PutFloatingPool(market string, pool *FloatingPool) error
	GetFixedPool(market string, maturity uint64) (*FixedPool, error)
	PutFixedPool(market string, maturity uint64, pool *FixedPool) error
	GetPosition(market string, side Side, maturity uint64, addr common.Address) (*Position, error)
	PutPosition(market string, side Side, maturity uint64, addr common.Address, pos *Position) error
	GetAccount(market string, addr common.Address) (*Account, error)
	PutAccount(market string, addr common.Address, account *Account) error
}
