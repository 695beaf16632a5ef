// Package research implements the quantitative signal services behind the
// analysis pipeline: capital expenditure trends, commodity price spikes,
// sector rotation detection, and exit signals.
package research

// Thresholds for the signal heuristics.
const (
	// CapexStrongGrowth marks a quarter-over-quarter capex increase as a
	// strong leading indicator.
	CapexStrongGrowth = 0.20

	// SpikeWindowDays and SpikeThreshold define a commodity price spike:
	// a 5% rise over 30 sessions.
	SpikeWindowDays = 30
	SpikeThreshold  = 0.05

	// RotationLookbackDays is the trailing window for sector rotation.
	// DefensiveRatioFloor is the minimum fraction of market down days on
	// which a sector must close up to count as defensive accumulation.
	RotationLookbackDays = 30
	DefensiveRatioFloor  = 0.4

	// Exit signal parameters.
	SMAPeriod          = 200
	RSIPeriod          = 14
	HighWindowDays     = 30
	OverextensionFloor = 0.80
	DistributionWindow = 20
	DistributionFloor  = 4
	VolumeAvgWindow    = 60

	// InventoryOutpaceFloor is how far inventory growth must outrun revenue
	// growth to suggest demand is rolling over.
	InventoryOutpaceFloor = 0.20
)

// MarketTicker is the broad market benchmark for rotation analysis
const MarketTicker = "SPY"

// DefaultCommodityTickers are the futures contracts monitored for supply
// shock price spikes. These represent inputs critical to industrial and
// technological infrastructure.
var DefaultCommodityTickers = []string{
	"HG=F", // Copper
	"NG=F", // Natural Gas
	"CL=F", // Crude Oil (WTI)
	"LE=F", // Live Cattle
	"ZW=F", // Wheat
	"CT=F", // Cotton
	"HO=F", // Heating Oil
	"SI=F", // Silver
	"PL=F", // Platinum
	"PA=F", // Palladium
}

// Sector pairs an ETF ticker with its sector name
type Sector struct {
	Ticker string
	Name   string
}

// DefaultSectors mirrors the SPDR Select Sector funds
var DefaultSectors = []Sector{
	{"XLB", "Materials"},
	{"XLE", "Energy"},
	{"XLF", "Financials"},
	{"XLI", "Industrials"},
	{"XLY", "Consumer Discretionary"},
	{"XLK", "Technology"},
	{"XLP", "Consumer Staples"},
	{"XLV", "Healthcare"},
	{"XLU", "Utilities"},
	{"XLC", "Communication Services"},
}

// DefaultCandidateTickers is the curated watchlist scanned when an analysis
// is submitted without explicit tickers: industrial equipment suppliers,
// electrical infrastructure, utilities, the core sector ETFs, and large-cap
// technology names.
var DefaultCandidateTickers = []string{
	// Industrial suppliers and manufacturers
	"GE", "ETN", "CMI", "AOS", "ABB", "SIEGY", "HTHIY",
	// Utilities and energy infrastructure
	"NEE", "DUK", "SO",
	// Sector ETFs for broader rotation coverage
	"XLI", "XLU", "XLE", "XLB",
	// Technology heavyweights
	"NVDA", "MSFT", "AAPL", "GOOGL", "AMZN", "AVGO",
}

// CapexGrowth summarises capital expenditure change over the two most
// recent reported quarters.
type CapexGrowth struct {
	Ticker         string  `json:"ticker"`
	LatestPeriod   string  `json:"latest_period"`
	PreviousPeriod string  `json:"previous_period"`
	LatestCapex    float64 `json:"latest_capex"`
	PreviousCapex  float64 `json:"previous_capex"`
	GrowthPct      float64 `json:"capex_growth_pct"`
	StrongSignal   bool    `json:"strong_signal"`
}

// PriceSpike describes an instrument whose price rose above the spike
// threshold over the lookback window.
type PriceSpike struct {
	Ticker     string  `json:"ticker"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	StartPrice float64 `json:"start_price"`
	EndPrice   float64 `json:"end_price"`
	ChangePct  float64 `json:"price_change_pct"`
}

// SectorPerformance holds relative performance metrics for one sector ETF
type SectorPerformance struct {
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	TrailingReturn    float64 `json:"trailing_return"`
	MarketReturn      float64 `json:"market_return"`
	RelativeReturn    float64 `json:"relative_return"`
	UpOnDownDaysRatio float64 `json:"up_on_down_days_ratio"`
	Signal            bool    `json:"signal"`
}

// FundamentalPeak captures inventory, receivables and capex deterioration
// relative to revenue.
type FundamentalPeak struct {
	RevenueGrowthPct     float64 `json:"revenue_growth_pct"`
	InventoryGrowthPct   float64 `json:"inventory_growth_pct"`
	ReceivablesGrowthPct float64 `json:"receivables_growth_pct"`
	CapexGrowthPct       float64 `json:"capex_growth_pct"`
	CapexPeak            bool    `json:"capex_peak"`
	Signal               bool    `json:"fundamental_signal"`
}

// TechnicalExhaustion captures over-extension above the long moving average
// and momentum divergence at new highs.
type TechnicalExhaustion struct {
	CurrentPrice      float64 `json:"current_price"`
	SMA200            float64 `json:"sma200"`
	ExtensionPct      float64 `json:"extension_pct"`
	CurrentRSI        float64 `json:"current_rsi"`
	PriorWindowRSIMax float64 `json:"prior_window_rsi_max"`
	NewHigh           bool    `json:"new_high"`
	RSIDivergence     bool    `json:"rsi_divergence"`
	Overextended      bool    `json:"overextended"`
	Signal            bool    `json:"technical_signal"`
}

// DistributionActivity counts institutional selling days over the past month
type DistributionActivity struct {
	DistributionDays int     `json:"distribution_days_count"`
	AvgVolume60      float64 `json:"avg_volume_60"`
	Signal           bool    `json:"distribution_signal"`
}

// SellReport aggregates all exit signals for one ticker. Sections are nil
// when the underlying data was unavailable; RedFlag is true when any
// available section triggered.
type SellReport struct {
	Ticker       string                `json:"ticker"`
	Fundamental  *FundamentalPeak      `json:"fundamental,omitempty"`
	Technical    *TechnicalExhaustion  `json:"technical,omitempty"`
	Distribution *DistributionActivity `json:"distribution,omitempty"`
	RedFlag      bool                  `json:"red_flag"`
}
