// Package ledger deploys a complete set of markets, the auditor and the price
// feed from configuration over one state manager.
package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/clock"

	"termlend/config"
	"termlend/core/events"
	"termlend/core/state"
	"termlend/native/auditor"
	nativecommon "termlend/native/common"
	"termlend/native/lending"
	"termlend/native/oracle"
	"termlend/native/previewer"
	"termlend/observability"
	"termlend/storage"
	"termlend/storage/audit"
)

// Options tune a deployment. Zero values use the wall clock and slog.Default.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
	// Database overrides the storage derived from DataDir.
	Database storage.Database
	// Emitters receive committed events in addition to the event counter and
	// the audit store.
	Emitters []events.Emitter
	// Feeds are consulted in order before the configured manual feed.
	Feeds []NamedFeed
}

// NamedFeed registers an additional price source with the ledger's
// aggregator.
type NamedFeed struct {
	Name string
	Feed oracle.PriceFeed
}

const manualFeed = "manual"

// Ledger is a deployed set of markets. Writers go through Update and readers
// through View so queries never observe a half-applied operation.
type Ledger struct {
	mu        sync.RWMutex
	cfg       *config.Config
	db        storage.Database
	audit     *audit.Store
	State     *state.Manager
	Feed      *oracle.ManualFeed
	Prices    *oracle.Aggregator
	Auditor   *auditor.Auditor
	Pauses    *nativecommon.Pauses
	Previewer *previewer.Previewer
	Clock     clock.Clock
	markets   map[string]*lending.Market
	order     []string
	logger    *slog.Logger
}

// Deploy builds the ledger described by cfg. Markets already present in
// persisted state are re-attached instead of listed again.
func Deploy(cfg *config.Config, opts Options) (*Ledger, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	db := opts.Database
	if db == nil {
		var err error
		if db, err = openDatabase(cfg.DataDir); err != nil {
			return nil, err
		}
	}

	l := &Ledger{
		cfg:     cfg,
		db:      db,
		State:   state.NewManager(db),
		Feed:    oracle.NewManualFeed(time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second),
		Pauses:  nativecommon.NewPauses(),
		Clock:   clk,
		markets: make(map[string]*lending.Market),
		logger:  logger.With(slog.String("component", "ledger")),
	}
	l.State.SetLogger(logger)
	if err := l.State.EnsureStateVersion(false); err != nil {
		l.Close()
		return nil, err
	}

	emitters := events.Fanout{observability.EventCounter{}}
	if dsn := strings.TrimSpace(cfg.Audit.DSN); dsn != "" {
		store, err := audit.Open(dsn)
		if err != nil {
			l.Close()
			return nil, err
		}
		store.SetLogger(logger)
		l.audit = store
		emitters = append(emitters, store)
	}
	emitters = append(emitters, opts.Emitters...)
	l.State.SetEmitter(emitters)

	l.Feed.SetClock(clk)
	l.Prices = oracle.NewAggregator()
	for _, f := range opts.Feeds {
		if strings.EqualFold(strings.TrimSpace(f.Name), manualFeed) {
			l.Close()
			return nil, fmt.Errorf("ledger: feed name %q is reserved", f.Name)
		}
		l.Prices.Register(f.Name, f.Feed)
	}
	l.Prices.Register(manualFeed, l.Feed)
	for _, p := range cfg.Oracle.Prices {
		if err := l.Feed.SetDecimal(p.Asset, p.Price); err != nil {
			l.Close()
			return nil, err
		}
	}

	admin := cfg.AdminAddress()
	l.Auditor = auditor.NewAuditor(admin, l.Prices)
	l.Auditor.SetState(l.State)
	l.Auditor.SetLogger(logger)

	if err := l.deployMarkets(cfg, admin, logger); err != nil {
		l.Close()
		return nil, err
	}
	if _, err := l.State.Commit(); err != nil {
		l.Close()
		return nil, err
	}

	markets := make([]*lending.Market, 0, len(l.order))
	for _, id := range l.order {
		markets = append(markets, l.markets[id])
	}
	l.Previewer = previewer.New(l.Auditor, l.Prices, markets...)
	l.logger.Info("ledger deployed", slog.Int("markets", len(l.order)), slog.String("data_dir", cfg.DataDir))
	return l, nil
}

func openDatabase(dataDir string) (storage.Database, error) {
	if strings.TrimSpace(dataDir) == "" {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return db, nil
}

func (l *Ledger) deployMarkets(cfg *config.Config, admin common.Address, logger *slog.Logger) error {
	listed, err := l.Auditor.Markets()
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(listed))
	for _, id := range listed {
		existing[id] = true
	}
	if len(listed) == 0 {
		incentive, err := cfg.LiquidationIncentive()
		if err != nil {
			return err
		}
		if incentive.Cmp(auditor.DefaultLiquidationIncentive()) != 0 {
			if err := l.Auditor.SetLiquidationIncentive(admin, incentive); err != nil {
				return err
			}
		}
	}

	for _, mc := range cfg.Markets {
		id := strings.ToUpper(strings.TrimSpace(mc.ID))
		params, err := mc.Params()
		if err != nil {
			return err
		}
		model, err := mc.Model()
		if err != nil {
			return err
		}
		market := lending.NewMarket(id, mc.Decimals, admin, params, model)
		market.SetState(l.State)
		market.SetAuditor(l.Auditor)
		market.SetClock(l.Clock)
		market.SetPauses(l.Pauses)
		market.SetLogger(logger)
		if mc.Paused {
			l.Pauses.SetPaused("lending/"+id, true)
		}

		if existing[id] {
			if err := l.Auditor.Attach(market); err != nil {
				return err
			}
		} else {
			adjust, err := mc.Adjust()
			if err != nil {
				return err
			}
			if err := l.Auditor.ListMarket(admin, market, mc.PriceFeed, adjust); err != nil {
				return err
			}
		}
		l.markets[id] = market
	}

	ids, err := l.Auditor.Markets()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := l.markets[id]; !ok {
			return fmt.Errorf("ledger: persisted market %s missing from config", id)
		}
	}
	l.order = ids
	return nil
}

// Config returns the configuration the ledger was deployed with.
func (l *Ledger) Config() *config.Config { return l.cfg }

// Market returns a deployed market.
func (l *Ledger) Market(id string) (*lending.Market, bool) {
	m, ok := l.markets[strings.ToUpper(strings.TrimSpace(id))]
	return m, ok
}

// MarketIDs returns the market identifiers in listing order.
func (l *Ledger) MarketIDs() []string { return append([]string(nil), l.order...) }

// Accounts returns every account that holds a record in any market or has
// entered one, sorted.
func (l *Ledger) Accounts() ([]common.Address, error) {
	members, err := l.State.Members()
	if err != nil {
		return nil, err
	}
	seen := make(map[common.Address]struct{}, len(members))
	for _, a := range members {
		seen[a] = struct{}{}
	}
	for _, id := range l.order {
		accounts, err := l.State.MarketAccounts(id)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			seen[a] = struct{}{}
		}
	}
	out := make([]common.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

// Update runs fn under the write lock and commits state when it succeeds.
func (l *Ledger) Update(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := l.State.Snapshot()
	if err := fn(); err != nil {
		l.State.RevertToSnapshot(snapshot)
		return err
	}
	_, err := l.State.Commit()
	return err
}

// View runs fn under the read lock.
func (l *Ledger) View(fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn()
}

// Close releases the audit store and database.
func (l *Ledger) Close() {
	if l.audit != nil {
		_ = l.audit.Close()
	}
	if l.db != nil {
		l.db.Close()
	}
}
