package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mode selects how ticks reach the engine and whether orders hit a broker.
type Mode string

const (
	// ModeLive polls broker quotes and places real orders.
	ModeLive Mode = "live"
	// ModeMock runs the live loop but short-circuits order execution.
	ModeMock Mode = "mock"
	// ModeReplay drives the engine from a historical tick file.
	ModeReplay Mode = "replay"
)

// AlgoParams is the full engine configuration. Read-only to the core.
type AlgoParams struct {
	Mode   Mode
	Symbol string `env:"TRADER_SYMBOL"`

	InstrumentType string  `env:"TRADER_INSTRUMENT_TYPE" envDefault:"FUTURE"`
	Qty            int     `env:"TRADER_QTY" envDefault:"1"`
	StrikePrice    float64 `env:"TRADER_STRIKE"`
	ExpiryDate     string  `env:"TRADER_EXPIRY"` // 2006-01-02
	Expiry         time.Time

	MaxLongPositions  int `env:"TRADER_MAX_LONG" envDefault:"1"`
	MaxShortPositions int `env:"TRADER_MAX_SHORT" envDefault:"1"`
	MaxTotalPositions int `env:"TRADER_MAX_TOTAL" envDefault:"1"`

	PercMarketDirectionChange float64 `env:"TRADER_PERC_DIRECTION_CHANGE" envDefault:"1"`
	PercSquareOffThreshold    float64 `env:"TRADER_PERC_SQUAREOFF" envDefault:"0.5"`

	PercBrokerage            float64 `env:"TRADER_PERC_BROKERAGE" envDefault:"0.03"`
	SquareOffBrokerageFactor float64 `env:"TRADER_SQUAREOFF_BROKERAGE_FACTOR" envDefault:"2"`
	MarginFraction           float64 `env:"TRADER_MARGIN_FRACTION" envDefault:"0.25"`

	SingleTradePerDay   bool    `env:"TRADER_SINGLE_TRADE_PER_DAY"`
	DailyLossLimit      bool    `env:"TRADER_DAILY_LOSS_LIMIT"`
	PercPnLStopForDay   float64 `env:"TRADER_PERC_PNL_STOP" envDefault:"2"`
	NumTradesStopForDay int     `env:"TRADER_NUM_TRADES_STOP" envDefault:"3"`

	MarketClosingSquareOff        bool `env:"TRADER_MC_SQUAREOFF" envDefault:"true"`
	ConsiderPrevClosing           bool `env:"TRADER_CONSIDER_PREV_CLOSING"`
	AllowInitialTickStabilization bool `env:"TRADER_INITIAL_STABILIZATION" envDefault:"true"`

	StateFile      string `env:"TRADER_STATE_FILE" envDefault:"engine-state.json"`
	PositionsFile  string `env:"TRADER_POSITIONS_FILE" envDefault:"positions.txt"`
	JournalPath    string `env:"TRADER_JOURNAL_PATH" envDefault:"trades.ndjson"`
	ReplayTickFile string `env:"TRADER_REPLAY_FILE"`

	TickInterval time.Duration `env:"TRADER_TICK_INTERVAL" envDefault:"10s"`
	LogLevel     string        `env:"TRADER_LOG_LEVEL" envDefault:"info"`

	APIKey    string `env:"APCA_API_KEY_ID"`
	APISecret string `env:"APCA_API_SECRET_KEY"`
	BrokerURL string `env:"TRADER_BROKER_URL" envDefault:"https://paper-api.alpaca.markets"`
}

// IsMock reports whether order execution is short-circuited.
func (p AlgoParams) IsMock() bool { return p.Mode == ModeMock }

// IsReplay reports whether ticks come from a historical file.
func (p AlgoParams) IsReplay() bool { return p.Mode == ModeReplay }

// Load reads .env (when present), then the environment, then flags.
// Flags win over environment for the handful of run-shape knobs.
func Load(args []string) (AlgoParams, error) {
	_ = godotenv.Load()

	var p AlgoParams
	if err := env.Parse(&p); err != nil {
		return p, fmt.Errorf("parse environment: %w", err)
	}

	fs := flag.NewFlagSet("trader", flag.ContinueOnError)
	mode := fs.String("mode", string(ModeMock), "run mode: live, mock or replay")
	fs.StringVar(&p.Symbol, "symbol", p.Symbol, "instrument symbol")
	fs.StringVar(&p.ReplayTickFile, "replay-file", p.ReplayTickFile, "historical tick file for replay mode")
	fs.Float64Var(&p.PercMarketDirectionChange, "direction-change", p.PercMarketDirectionChange, "direction-change trigger threshold (percent)")
	fs.DurationVar(&p.TickInterval, "tick-interval", p.TickInterval, "live quote polling interval")
	if err := fs.Parse(args); err != nil {
		return p, err
	}
	p.Mode = Mode(*mode)

	if p.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", p.ExpiryDate)
		if err != nil {
			return p, fmt.Errorf("invalid TRADER_EXPIRY %q: %w", p.ExpiryDate, err)
		}
		p.Expiry = expiry
	}

	if err := validate(p); err != nil {
		return p, err
	}
	return p, nil
}

func validate(p AlgoParams) error {
	switch p.Mode {
	case ModeLive, ModeMock, ModeReplay:
	default:
		return fmt.Errorf("invalid mode: %s", p.Mode)
	}
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.Mode == ModeReplay && p.ReplayTickFile == "" {
		return fmt.Errorf("replay mode requires -replay-file")
	}
	if p.Mode == ModeLive && (p.APIKey == "" || p.APISecret == "") {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in live mode")
	}
	if p.Qty <= 0 {
		return fmt.Errorf("qty must be > 0")
	}
	if p.MaxTotalPositions <= 0 {
		return fmt.Errorf("max total positions must be > 0")
	}
	if p.MaxLongPositions < 0 || p.MaxShortPositions < 0 {
		return fmt.Errorf("position limits must be >= 0")
	}
	if p.PercMarketDirectionChange <= 0 {
		return fmt.Errorf("direction-change threshold must be > 0")
	}
	if p.MarginFraction <= 0 || p.MarginFraction > 1 {
		return fmt.Errorf("margin fraction must be in (0, 1]")
	}
	if p.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be > 0")
	}
	return nil
}
