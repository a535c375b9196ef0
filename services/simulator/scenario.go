package simulator

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Operation names accepted in scenario actions.
const (
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpBorrow            = "borrow"
	OpRepay             = "repay"
	OpEnter             = "enter"
	OpExit              = "exit"
	OpDepositAtMaturity = "depositAtMaturity"
	OpBorrowAtMaturity  = "borrowAtMaturity"
)

// DefaultBlockSeconds is the simulated time between blocks.
const DefaultBlockSeconds = 3600

// Scenario describes a simulation run: the price processes applied to the
// feed, the accounts and the actions they take at given blocks.
type Scenario struct {
	BlockSeconds uint64                  `yaml:"blockSeconds"`
	Blocks       int                     `yaml:"blocks"`
	Liquidator   string                  `yaml:"liquidator"`
	Prices       map[string]PriceProcess `yaml:"prices"`
	Accounts     []AccountScript         `yaml:"accounts"`
}

// AccountScript is the list of actions one account performs.
type AccountScript struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	Actions []Action `yaml:"actions"`
}

// Action is one ledger operation. Amount is a decimal in asset units;
// Maturity selects the n-th open maturity (1 is the nearest) for the fixed
// operations.
type Action struct {
	Block    int    `yaml:"block"`
	Op       string `yaml:"op"`
	Market   string `yaml:"market"`
	Amount   string `yaml:"amount"`
	Maturity int    `yaml:"maturity"`
}

// LoadScenario decodes a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scenario) normalize() error {
	if s.BlockSeconds == 0 {
		s.BlockSeconds = DefaultBlockSeconds
	}
	normalized := make(map[string]PriceProcess, len(s.Prices))
	for asset, process := range s.Prices {
		if err := process.Validate(); err != nil {
			return fmt.Errorf("prices.%s: %w", asset, err)
		}
		normalized[strings.ToUpper(strings.TrimSpace(asset))] = process
		if s.Blocks == 0 || process.Steps < s.Blocks {
			s.Blocks = process.Steps
		}
	}
	s.Prices = normalized
	if s.Blocks <= 0 {
		return fmt.Errorf("simulator: scenario needs blocks or at least one price process")
	}
	if s.Liquidator != "" && !common.IsHexAddress(s.Liquidator) {
		return fmt.Errorf("simulator: invalid liquidator address %q", s.Liquidator)
	}
	for i := range s.Accounts {
		acct := &s.Accounts[i]
		if !common.IsHexAddress(acct.Address) {
			return fmt.Errorf("simulator: account %q has invalid address %q", acct.Name, acct.Address)
		}
		for j := range acct.Actions {
			action := &acct.Actions[j]
			action.Market = strings.ToUpper(strings.TrimSpace(action.Market))
			if err := action.validate(); err != nil {
				return fmt.Errorf("accounts.%s.actions[%d]: %w", acct.Name, j, err)
			}
		}
	}
	return nil
}

func (a Action) validate() error {
	if a.Block < 0 {
		return fmt.Errorf("block must not be negative")
	}
	if a.Market == "" {
		return fmt.Errorf("market required")
	}
	switch a.Op {
	case OpEnter, OpExit:
		return nil
	case OpDeposit, OpWithdraw, OpBorrow, OpRepay:
	case OpDepositAtMaturity, OpBorrowAtMaturity:
		if a.Maturity <= 0 {
			return fmt.Errorf("%s needs a maturity index", a.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", a.Op)
	}
	if strings.TrimSpace(a.Amount) == "" {
		return fmt.Errorf("%s needs an amount", a.Op)
	}
	return nil
}

// LiquidatorAddress returns the configured liquidator or a fixed default.
func (s *Scenario) LiquidatorAddress() common.Address {
	if s.Liquidator == "" {
		return common.HexToAddress("0x000000000000000000000000000000000000dead")
	}
	return common.HexToAddress(s.Liquidator)
}

// Addresses lists the scripted accounts.
func (s *Scenario) Addresses() []common.Address {
	out := make([]common.Address, 0, len(s.Accounts))
	for _, acct := range s.Accounts {
		out = append(out, common.HexToAddress(acct.Address))
	}
	return out
}
