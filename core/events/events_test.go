package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLendingActionFlatten(t *testing.T) {
	evt := LendingAction{
		Action:   TypeLendingBorrowAtMaturity,
		Market:   "usdc",
		Caller:   common.HexToAddress("0x01"),
		Account:  common.HexToAddress("0x02"),
		Maturity: 2_419_200,
		Assets:   big.NewInt(100),
		Fee:      big.NewInt(3),
	}
	flat := Flatten(evt)
	if flat.Type != TypeLendingBorrowAtMaturity {
		t.Fatalf("unexpected type %s", flat.Type)
	}
	if flat.Attr("maturity") != "2419200" || flat.Attr("fee") != "3" || flat.Attr("assets") != "100" {
		t.Fatalf("unexpected attributes %v", flat.Attributes)
	}
	if _, ok := flat.Attributes["shares"]; ok {
		t.Fatalf("nil shares must be omitted")
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	fan := Fanout{first, nil, second}
	fan.Emit(MarketMembership{Type: TypeAuditorMarketEntered, Market: "weth"})
	if len(first.Events) != 1 || len(second.Events) != 1 {
		t.Fatalf("fanout did not reach every emitter")
	}
	if got := first.Types(); got[0] != TypeAuditorMarketEntered {
		t.Fatalf("unexpected type %v", got)
	}
	if flat := Flatten(first.Events[0]); flat.Attr("market") != "weth" {
		t.Fatalf("unexpected attributes %v", flat.Attributes)
	}
}

func TestParamUpdatedCarriesOldAndNew(t *testing.T) {
	flat := ParamUpdated{Type: TypeLendingParamUpdated, Scope: "usdc", Param: "reserveFactor", Old: "0.1", New: "0.2"}.Event()
	if flat.Attr("old") != "0.1" || flat.Attr("new") != "0.2" || flat.Attr("param") != "reserveFactor" {
		t.Fatalf("unexpected attributes %v", flat.Attributes)
	}
	if flat.String() != "lending.param_updated caller= new=0.2 old=0.1 param=reserveFactor scope=usdc" {
		t.Fatalf("unexpected string %q", flat.String())
	}
}
