package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/models"
)

// PriceSource provides the full price catalog for a calculation run
type PriceSource interface {
	ListPrices(ctx context.Context) ([]models.AssetPrice, error)
}

// AllocationSource provides a portfolio's target allocation
type AllocationSource interface {
	ListAllocations(ctx context.Context, portfolio string) ([]models.Allocation, error)
}

// PortfolioSource provides portfolio identities and initial values.
// GetPortfolio returns (nil, nil) for an unknown name; an error means the
// lookup itself failed.
type PortfolioSource interface {
	GetPortfolio(ctx context.Context, name string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]models.Portfolio, error)
}

// AssetSource provides the asset catalog transaction legs are validated
// against. GetAsset returns (nil, nil) for an unknown symbol.
type AssetSource interface {
	GetAsset(ctx context.Context, symbol string) (*models.Asset, error)
}

// TransactionLog is the append-only ledger of buy/sell events. Leg pairs
// are appended atomically so the ledger never holds half a transaction.
type TransactionLog interface {
	AppendTransactionPair(ctx context.Context, sell, buy *models.Transaction) error
	ListTransactions(ctx context.Context, portfolio string, upTo time.Time) ([]models.Transaction, error)
}

// HoldingsStore persists the derived holdings series
type HoldingsStore interface {
	ReplacePortfolioHoldings(ctx context.Context, portfolio string, rows []models.Holding) error
	UpsertHoldingsBatch(ctx context.Context, rows []models.Holding) error
}

// RecalcSummary is the result of a recalculation run: what was written and
// which per-row anomalies were absorbed along the way.
type RecalcSummary struct {
	Portfolio             string    `json:"portfolio"`
	CutoverDate           time.Time `json:"cutover_date"`
	DatesProjected        int       `json:"dates_projected"`
	RowsWritten           int       `json:"rows_written"`
	DatesSkipped          int       `json:"dates_skipped"`
	NegativeQuantitySkips int       `json:"negative_quantity_skips"`
	PrecisionFailures     int       `json:"precision_failures"`
}

// Engine derives and maintains portfolio holdings from allocations, the
// price catalog, and the transaction ledger. All reads happen up front
// (read-then-compute); writes go through the holdings store. Runs for the
// same portfolio are serialized with a per-portfolio lock, runs for
// different portfolios share only the read-only price snapshot.
type Engine struct {
	portfolios  PortfolioSource
	assets      AssetSource
	allocations AllocationSource
	prices      PriceSource
	ledger      TransactionLog
	holdings    HoldingsStore
	policy      WeightPolicy
	logger      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine over the given stores
func New(portfolios PortfolioSource, assets AssetSource, allocations AllocationSource, prices PriceSource, ledger TransactionLog, holdings HoldingsStore, policy WeightPolicy, logger zerolog.Logger) *Engine {
	if policy == "" {
		policy = WeightPolicyPricedOnly
	}
	return &Engine{
		portfolios:  portfolios,
		assets:      assets,
		allocations: allocations,
		prices:      prices,
		ledger:      ledger,
		holdings:    holdings,
		policy:      policy,
		logger:      logger.With().Str("component", "engine").Logger(),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (e *Engine) portfolioLock(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	return l
}

func (e *Engine) getPortfolio(ctx context.Context, name string) (*models.Portfolio, error) {
	p, err := e.portfolios.GetPortfolio(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPortfolioNotFound, name)
	}
	return p, nil
}

func (e *Engine) checkAsset(ctx context.Context, symbol string) error {
	a, err := e.assets.GetAsset(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to load asset: %w", err)
	}
	if a == nil {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, symbol)
	}
	return nil
}

func (e *Engine) loadPriceTable(ctx context.Context) (*PriceTable, error) {
	rows, err := e.prices.ListPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load price catalog: %w", err)
	}
	return NewPriceTable(rows), nil
}

// LoadInitialHoldings computes the full holdings series for every
// portfolio from its baseline quantities: any pre-existing rows for the
// portfolio are cleared first. Portfolios are independent, so they are
// projected concurrently over one shared price snapshot.
func (e *Engine) LoadInitialHoldings(ctx context.Context) error {
	table, err := e.loadPriceTable(ctx)
	if err != nil {
		return err
	}

	portfolios, err := e.portfolios.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	errs := make(chan error, len(portfolios))
	var wg sync.WaitGroup
	for _, p := range portfolios {
		wg.Add(1)
		go func(p models.Portfolio) {
			defer wg.Done()
			if err := e.loadPortfolioHoldings(ctx, p, table); err != nil {
				errs <- fmt.Errorf("failed to load holdings for %s: %w", p.Name, err)
			}
		}(p)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadPortfolioHoldings(ctx context.Context, p models.Portfolio, table *PriceTable) error {
	lock := e.portfolioLock(p.Name)
	lock.Lock()
	defer lock.Unlock()

	allocations, err := e.allocations.ListAllocations(ctx, p.Name)
	if err != nil {
		return fmt.Errorf("failed to load allocation: %w", err)
	}

	quantities := BaselineQuantities(p.InitialValue, allocations, table)
	projector := NewProjector(table, e.policy)
	rows, summary := projector.Project(p.Name, quantities, table.Dates())

	if err := e.holdings.ReplacePortfolioHoldings(ctx, p.Name, rows); err != nil {
		return fmt.Errorf("failed to store holdings: %w", err)
	}

	e.logger.Info().
		Str("portfolio", p.Name).
		Int("assets", len(quantities)).
		Int("rows", summary.RowsProduced).
		Int("dates_skipped", summary.DatesSkipped).
		Msg("initial holdings loaded")
	return nil
}

// TransactionResult reports a processed transaction: the two recorded
// ledger legs with their derived quantities, and the recalculation summary.
type TransactionResult struct {
	SellLeg *models.Transaction `json:"sell_leg"`
	BuyLeg  *models.Transaction `json:"buy_leg"`
	Summary *RecalcSummary      `json:"summary"`
}

// ProcessTransaction records a two-leg buy/sell event and recalculates the
// portfolio's holdings from the transaction date forward. Both legs must
// have a recorded price on the exact transaction date; if either is
// missing the whole transaction is rejected and nothing is appended.
func (e *Engine) ProcessTransaction(ctx context.Context, req models.TransactionRequest) (*TransactionResult, error) {
	p, err := e.getPortfolio(ctx, req.Portfolio)
	if err != nil {
		return nil, err
	}
	if err := e.checkAsset(ctx, req.SellSymbol); err != nil {
		return nil, err
	}
	if err := e.checkAsset(ctx, req.BuySymbol); err != nil {
		return nil, err
	}

	table, err := e.loadPriceTable(ctx)
	if err != nil {
		return nil, err
	}

	date := DateOf(req.Date)
	sellPrice, ok := table.PriceOn(req.SellSymbol, date)
	if !ok {
		return nil, &MissingPriceError{Symbol: req.SellSymbol, Date: date}
	}
	buyPrice, ok := table.PriceOn(req.BuySymbol, date)
	if !ok {
		return nil, &MissingPriceError{Symbol: req.BuySymbol, Date: date}
	}

	lock := e.portfolioLock(p.Name)
	lock.Lock()
	defer lock.Unlock()

	sellQty := req.SellAmount.Div(sellPrice).Round(quantityPlaces)
	buyQty := req.BuyAmount.Div(buyPrice).Round(quantityPlaces)

	sell := &models.Transaction{
		Portfolio:       p.Name,
		Symbol:          req.SellSymbol,
		Date:            date,
		TransactionType: models.TransactionTypeSell,
		Amount:          req.SellAmount,
		Quantity:        sellQty,
		RequestID:       req.RequestID,
	}
	buy := &models.Transaction{
		Portfolio:       p.Name,
		Symbol:          req.BuySymbol,
		Date:            date,
		TransactionType: models.TransactionTypeBuy,
		Amount:          req.BuyAmount,
		Quantity:        buyQty,
		RequestID:       req.RequestID,
	}
	if err := e.ledger.AppendTransactionPair(ctx, sell, buy); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	e.logger.Info().
		Str("portfolio", p.Name).
		Str("sell", req.SellSymbol).Str("sell_qty", sellQty.String()).
		Str("buy", req.BuySymbol).Str("buy_qty", buyQty.String()).
		Str("date", date.Format("2006-01-02")).
		Msg("transaction recorded")

	summary, err := e.recalculate(ctx, p, table, date)
	if err != nil {
		return nil, err
	}
	return &TransactionResult{SellLeg: sell, BuyLeg: buy, Summary: summary}, nil
}

// Recalculate re-derives the adjusted quantity map for a portfolio as of
// the cutover date and re-renders every holding from that date forward.
// Rows before the cutover are never touched.
func (e *Engine) Recalculate(ctx context.Context, portfolio string, cutover time.Time) (*RecalcSummary, error) {
	p, err := e.getPortfolio(ctx, portfolio)
	if err != nil {
		return nil, err
	}

	table, err := e.loadPriceTable(ctx)
	if err != nil {
		return nil, err
	}

	lock := e.portfolioLock(p.Name)
	lock.Lock()
	defer lock.Unlock()

	return e.recalculate(ctx, p, table, DateOf(cutover))
}

// recalculate assumes the portfolio lock is held and the price table is a
// consistent snapshot.
func (e *Engine) recalculate(ctx context.Context, p *models.Portfolio, table *PriceTable, cutover time.Time) (*RecalcSummary, error) {
	quantities, err := e.adjustedQuantities(ctx, p, table, cutover)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(quantities))
	for s := range quantities {
		symbols = append(symbols, s)
	}
	dates := table.DatesFrom(cutover, symbols)

	e.logger.Info().
		Str("portfolio", p.Name).
		Str("cutover", cutover.Format("2006-01-02")).
		Int("dates", len(dates)).
		Int("assets", len(symbols)).
		Msg("recalculating holdings")

	projector := NewProjector(table, e.policy)
	rows, ps := projector.Project(p.Name, quantities, dates)

	if err := e.holdings.UpsertHoldingsBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to upsert holdings: %w", err)
	}

	summary := &RecalcSummary{
		Portfolio:             p.Name,
		CutoverDate:           cutover,
		DatesProjected:        len(dates),
		RowsWritten:           ps.RowsProduced,
		DatesSkipped:          ps.DatesSkipped,
		NegativeQuantitySkips: ps.NegativeQuantitySkips,
		PrecisionFailures:     ps.PrecisionFailures,
	}

	e.logger.Info().
		Str("portfolio", p.Name).
		Int("rows_written", summary.RowsWritten).
		Int("dates_skipped", summary.DatesSkipped).
		Int("negative_quantity_skips", summary.NegativeQuantitySkips).
		Int("precision_failures", summary.PrecisionFailures).
		Msg("recalculation completed")

	return summary, nil
}

func (e *Engine) adjustedQuantities(ctx context.Context, p *models.Portfolio, table *PriceTable, cutover time.Time) (map[string]decimal.Decimal, error) {
	allocations, err := e.allocations.ListAllocations(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	}
	baseline := BaselineQuantities(p.InitialValue, allocations, table)

	txs, err := e.ledger.ListTransactions(ctx, p.Name, cutover)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return ReplayTransactions(baseline, txs, cutover), nil
}

// PortfolioValueOn values a portfolio on one date from its ledger-adjusted
// quantities and that date's prices. Assets without a price that day
// contribute nothing.
func (e *Engine) PortfolioValueOn(ctx context.Context, portfolio string, date time.Time) (decimal.Decimal, error) {
	p, err := e.getPortfolio(ctx, portfolio)
	if err != nil {
		return decimal.Zero, err
	}

	table, err := e.loadPriceTable(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	d := DateOf(date)
	quantities, err := e.adjustedQuantities(ctx, p, table, d)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for symbol, qty := range quantities {
		price, ok := table.PriceOn(symbol, d)
		if !ok {
			continue
		}
		total = total.Add(qty.Mul(price))
	}
	return total.Round(amountPlaces), nil
}
