package routes

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"termlend/config"
	"termlend/core/ledger"
	"termlend/native/lending"
)

var depositor = common.HexToAddress("0x00000000000000000000000000000000000000b0")

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(time.Duration(lending.Interval/2) * time.Second)
	l, err := ledger.Deploy(config.Default(), ledger.Options{Clock: mock})
	require.NoError(t, err)
	t.Cleanup(l.Close)

	usdc, _ := l.Market("USDC")
	require.NoError(t, l.Update(func() error {
		_, err := usdc.Deposit(depositor, big.NewInt(1_000_000_000))
		return err
	}))
	// let the floating average catch up with the deposit
	mock.Add(time.Hour)

	handler, err := New(Config{Ledger: l})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, l
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestListMarkets(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Markets []marketView `json:"markets"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/markets", &body))
	require.Len(t, body.Markets, 2)
	require.Equal(t, "USDC", body.Markets[0].ID)
	require.Equal(t, "1000", body.Markets[0].TotalAssets)
	require.Equal(t, "0.9", body.Markets[0].AdjustFactor)
	require.Equal(t, "0", body.Markets[0].FloatingDebt)
	require.Empty(t, body.Markets[0].FixedPools)
	require.Equal(t, "WETH", body.Markets[1].ID)
	require.Equal(t, "2000", body.Markets[1].Price)
}

func TestGetMarketIncludesOpenMaturities(t *testing.T) {
	srv, l := newTestServer(t)
	usdc, _ := l.Market("usdc")

	var view marketView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/markets/usdc", &view))
	require.Equal(t, "USDC", view.ID)
	require.Len(t, view.FixedPools, int(usdc.Params().MaxFuturePools))
	for _, pool := range view.FixedPools {
		require.Equal(t, "valid", pool.State)
		require.Zero(t, pool.Maturity%lending.Interval)
	}

	var errBody map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/markets/dai", &errBody))
	require.Contains(t, errBody["error"], "unknown market")
}

func TestQuoteBorrowAtMaturity(t *testing.T) {
	srv, l := newTestServer(t)
	usdc, _ := l.Market("USDC")
	maturity := lending.OpenMaturities(usdc.Now(), usdc.Params().MaxFuturePools)[0]

	var quote quoteView
	url := srv.URL + "/v1/markets/USDC/quote?side=borrow&amount=100&maturity=" + big.NewInt(int64(maturity)).String()
	require.Equal(t, http.StatusOK, getJSON(t, url, &quote))
	require.Equal(t, "borrow", quote.Side)
	require.Equal(t, "100", quote.Assets)
	require.NotEqual(t, "0", quote.Fee)

	var errBody map[string]string
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/markets/USDC/quote?side=swap&amount=1&maturity="+big.NewInt(int64(maturity)).String(), &errBody))
	require.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/v1/markets/USDC/quote?amount=1&maturity=1", &errBody))
}

func TestGetAccount(t *testing.T) {
	srv, _ := newTestServer(t)

	var view accountView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/accounts/"+depositor.Hex(), &view))
	require.Equal(t, depositor.Hex(), view.Address)
	require.Nil(t, view.HealthFactor)
	require.Equal(t, "0", view.Debt)
	require.NotEmpty(t, view.Markets)
	require.Equal(t, "USDC", view.Markets[0].Market)
	require.Equal(t, "1000", view.Markets[0].FloatingDepositAssets)
	require.False(t, view.Markets[0].IsCollateral)

	var errBody map[string]string
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/accounts/nope", &errBody))
}

func TestGetLiquiditySimulatesWithdraw(t *testing.T) {
	srv, l := newTestServer(t)
	require.NoError(t, l.Update(func() error {
		return l.Auditor.EnterMarket(depositor, "USDC")
	}))

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/accounts/"+depositor.Hex()+"/liquidity", &body))
	require.Equal(t, "900", body["collateral"])
	require.Equal(t, true, body["solvent"])

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/accounts/"+depositor.Hex()+"/liquidity?market=usdc&withdraw=400", &body))
	require.Equal(t, "900", body["collateral"])
	require.Equal(t, "360", body["debt"])
}
