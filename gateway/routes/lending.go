package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"termlend/core/ledger"
	"termlend/native/auditor"
	fp "termlend/native/fixedpoint"
	"termlend/native/irm"
	"termlend/native/lending"
	"termlend/native/oracle"
	"termlend/native/previewer"
)

var (
	errUnknownMarket  = errors.New("unknown market")
	errInvalidAddress = errors.New("invalid account address")
)

// lendingRoutes serves previews straight from the ledger under its read
// lock; nothing here mutates state.
type lendingRoutes struct {
	ledger *ledger.Ledger
}

func (lr *lendingRoutes) mountMarkets(r chi.Router) {
	r.Get("/", lr.listMarkets)
	r.Get("/{market}", lr.getMarket)
	r.Get("/{market}/quote", lr.quote)
}

func (lr *lendingRoutes) mountAccounts(r chi.Router) {
	r.Get("/{address}", lr.getAccount)
	r.Get("/{address}/liquidity", lr.getLiquidity)
}

type fixedPoolView struct {
	Maturity           uint64 `json:"maturity"`
	State              string `json:"state"`
	Borrowed           string `json:"borrowed"`
	Supplied           string `json:"supplied"`
	BackupSupplied     string `json:"backupSupplied"`
	UnassignedEarnings string `json:"unassignedEarnings"`
}

type marketView struct {
	ID                  string          `json:"id"`
	Decimals            uint8           `json:"decimals"`
	AdjustFactor        string          `json:"adjustFactor"`
	Price               string          `json:"price"`
	TotalAssets         string          `json:"totalAssets"`
	TotalSupply         string          `json:"totalSupply"`
	FloatingAssets      string          `json:"floatingAssets"`
	FloatingDebt        string          `json:"floatingDebt"`
	BackupBorrowed      string          `json:"backupBorrowed"`
	EarningsAccumulator string          `json:"earningsAccumulator"`
	Utilization         string          `json:"utilization"`
	FloatingRate        string          `json:"floatingRate"`
	FixedPools          []fixedPoolView `json:"fixedPools,omitempty"`
}

func (lr *lendingRoutes) market(id string) (*lending.Market, error) {
	market, ok := lr.ledger.Market(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownMarket, id)
	}
	return market, nil
}

func (lr *lendingRoutes) describe(market *lending.Market, withPools bool) (marketView, error) {
	data, err := lr.ledger.Auditor.MarketData(market.ID())
	if err != nil {
		return marketView{}, err
	}
	price, err := lr.ledger.Prices.Price(data.PriceFeed)
	if err != nil {
		return marketView{}, err
	}
	pool, err := market.FloatingPool()
	if err != nil {
		return marketView{}, err
	}
	total, err := market.TotalAssets()
	if err != nil {
		return marketView{}, err
	}
	utilization := irm.Utilization(pool.FloatingDebt, pool.FloatingAssets)
	rate, err := market.InterestRateModel().FloatingRate(utilization)
	if err != nil {
		return marketView{}, err
	}
	dec := market.Decimals()
	view := marketView{
		ID:                  market.ID(),
		Decimals:            dec,
		AdjustFactor:        fp.FormatWad(data.AdjustFactor),
		Price:               fp.FormatWad(price),
		TotalAssets:         fp.FormatUnits(total, dec),
		TotalSupply:         fp.FormatUnits(pool.TotalSupply, dec),
		FloatingAssets:      fp.FormatUnits(pool.FloatingAssets, dec),
		FloatingDebt:        fp.FormatUnits(pool.FloatingDebt, dec),
		BackupBorrowed:      fp.FormatUnits(pool.BackupBorrowed, dec),
		EarningsAccumulator: fp.FormatUnits(pool.EarningsAccumulator, dec),
		Utilization:         fp.FormatWad(utilization),
		FloatingRate:        fp.FormatWad(rate),
	}
	if !withPools {
		return view, nil
	}
	now := market.Now()
	maxPools := market.Params().MaxFuturePools
	for _, maturity := range lending.OpenMaturities(now, maxPools) {
		fixed, err := market.FixedPool(maturity)
		if err != nil {
			return marketView{}, err
		}
		view.FixedPools = append(view.FixedPools, fixedPoolView{
			Maturity:           maturity,
			State:              lending.MaturityState(maturity, now, maxPools).String(),
			Borrowed:           fp.FormatUnits(fixed.Borrowed, dec),
			Supplied:           fp.FormatUnits(fixed.Supplied, dec),
			BackupSupplied:     fp.FormatUnits(fixed.BackupSupplied(), dec),
			UnassignedEarnings: fp.FormatUnits(fixed.UnassignedEarnings, dec),
		})
	}
	return view, nil
}

func (lr *lendingRoutes) listMarkets(w http.ResponseWriter, r *http.Request) {
	var out []marketView
	err := lr.ledger.View(func() error {
		for _, id := range lr.ledger.MarketIDs() {
			market, err := lr.market(id)
			if err != nil {
				return err
			}
			view, err := lr.describe(market, false)
			if err != nil {
				return err
			}
			out = append(out, view)
		}
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (lr *lendingRoutes) getMarket(w http.ResponseWriter, r *http.Request) {
	var view marketView
	err := lr.ledger.View(func() error {
		market, err := lr.market(chi.URLParam(r, "market"))
		if err != nil {
			return err
		}
		view, err = lr.describe(market, true)
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type quoteView struct {
	Market   string `json:"market"`
	Side     string `json:"side"`
	Maturity uint64 `json:"maturity"`
	Assets   string `json:"assets"`
	Fee      string `json:"fee"`
}

// quote previews a fixed borrow fee or fixed deposit yield:
// ?side=borrow|deposit&maturity=<unix>&amount=<decimal>.
func (lr *lendingRoutes) quote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	side := strings.ToLower(strings.TrimSpace(query.Get("side")))
	if side == "" {
		side = lending.SideBorrow.String()
	}
	maturity, err := strconv.ParseUint(query.Get("maturity"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("maturity: %w", err))
		return
	}
	var out quoteView
	err = lr.ledger.View(func() error {
		market, err := lr.market(chi.URLParam(r, "market"))
		if err != nil {
			return err
		}
		amount, err := fp.ParseUnits(query.Get("amount"), market.Decimals())
		if err != nil {
			return badRequest{err}
		}
		var fee *big.Int
		switch side {
		case lending.SideBorrow.String():
			fee, err = market.PreviewBorrowAtMaturity(maturity, amount)
		case lending.SideDeposit.String():
			fee, err = market.PreviewDepositAtMaturity(maturity, amount)
		default:
			return badRequest{fmt.Errorf("side must be borrow or deposit")}
		}
		if err != nil {
			return err
		}
		out = quoteView{
			Market:   market.ID(),
			Side:     side,
			Maturity: maturity,
			Assets:   fp.FormatUnits(amount, market.Decimals()),
			Fee:      fp.FormatUnits(fee, market.Decimals()),
		}
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type positionView struct {
	Maturity  uint64 `json:"maturity"`
	Principal string `json:"principal"`
	Fee       string `json:"fee"`
}

type accountMarketView struct {
	Market                string         `json:"market"`
	IsCollateral          bool           `json:"isCollateral"`
	Price                 string         `json:"price"`
	FloatingDepositShares string         `json:"floatingDepositShares"`
	FloatingDepositAssets string         `json:"floatingDepositAssets"`
	FloatingBorrowShares  string         `json:"floatingBorrowShares"`
	FloatingBorrowAssets  string         `json:"floatingBorrowAssets"`
	FixedDeposits         []positionView `json:"fixedDeposits,omitempty"`
	FixedBorrows          []positionView `json:"fixedBorrows,omitempty"`
}

type accountView struct {
	Address      string              `json:"address"`
	Collateral   string              `json:"collateral"`
	Debt         string              `json:"debt"`
	HealthFactor *float64            `json:"healthFactor,omitempty"`
	Markets      []accountMarketView `json:"markets"`
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", errInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func toPositions(in []previewer.FixedPosition, dec uint8) []positionView {
	out := make([]positionView, 0, len(in))
	for _, p := range in {
		out = append(out, positionView{
			Maturity:  p.Maturity,
			Principal: fp.FormatUnits(p.Principal, dec),
			Fee:       fp.FormatUnits(p.Fee, dec),
		})
	}
	return out
}

func (lr *lendingRoutes) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	out := accountView{Address: addr.Hex()}
	err = lr.ledger.View(func() error {
		collateral, debt, factor, err := lr.ledger.Previewer.Health(addr)
		if err != nil {
			return err
		}
		out.Collateral = fp.FormatWad(collateral)
		out.Debt = fp.FormatWad(debt)
		if debt.Sign() > 0 {
			out.HealthFactor = &factor
		}
		views, err := lr.ledger.Previewer.Account(addr)
		if err != nil {
			return err
		}
		for _, v := range views {
			out.Markets = append(out.Markets, accountMarketView{
				Market:                v.Market,
				IsCollateral:          v.IsCollateral,
				Price:                 fp.FormatWad(v.Price),
				FloatingDepositShares: fp.FormatUnits(v.FloatingDepositShares, v.Decimals),
				FloatingDepositAssets: fp.FormatUnits(v.FloatingDepositAssets, v.Decimals),
				FloatingBorrowShares:  fp.FormatUnits(v.FloatingBorrowShares, v.Decimals),
				FloatingBorrowAssets:  fp.FormatUnits(v.FloatingBorrowAssets, v.Decimals),
				FixedDeposits:         toPositions(v.FixedDeposits, v.Decimals),
				FixedBorrows:          toPositions(v.FixedBorrows, v.Decimals),
			})
		}
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// getLiquidity returns the adjusted collateral and debt of an account,
// optionally simulating a withdrawal: ?market=<id>&withdraw=<decimal>.
func (lr *lendingRoutes) getLiquidity(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	query := r.URL.Query()
	var out map[string]any
	err = lr.ledger.View(func() error {
		simulate := strings.ToUpper(strings.TrimSpace(query.Get("market")))
		withdraw := new(big.Int)
		if simulate != "" {
			market, err := lr.market(simulate)
			if err != nil {
				return err
			}
			if raw := query.Get("withdraw"); raw != "" {
				if withdraw, err = fp.ParseUnits(raw, market.Decimals()); err != nil {
					return badRequest{err}
				}
			}
		}
		collateral, debt, err := lr.ledger.Auditor.AccountLiquidity(addr, simulate, withdraw)
		if err != nil {
			return err
		}
		out = map[string]any{
			"address":    addr.Hex(),
			"collateral": fp.FormatWad(collateral),
			"debt":       fp.FormatWad(debt),
			"solvent":    collateral.Cmp(debt) >= 0,
		}
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func writeLedgerError(w http.ResponseWriter, err error) {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		writeJSONError(w, http.StatusBadRequest, err)
	case errors.Is(err, errUnknownMarket), errors.Is(err, auditor.ErrMarketNotListed):
		writeJSONError(w, http.StatusNotFound, err)
	case errors.Is(err, lending.ErrInvalidMaturity), errors.Is(err, lending.ErrPoolMatured),
		errors.Is(err, lending.ErrPoolNotReady), errors.Is(err, lending.ErrZeroAmount),
		errors.Is(err, lending.ErrInsufficientProtocolLiquidity), errors.Is(err, irm.ErrUtilizationExceeded):
		writeJSONError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrUnknownAsset):
		writeJSONError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
