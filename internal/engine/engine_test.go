package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valuatech/portfolio-service/internal/models"
)

// memStore implements all engine store interfaces in memory for testing.
// The error fields inject store failures.
type memStore struct {
	mu          sync.Mutex
	portfolios  map[string]models.Portfolio
	assets      map[string]models.Asset
	allocations map[string][]models.Allocation
	prices      []models.AssetPrice
	txs         []models.Transaction
	nextTxID    int
	holdings    map[string]models.Holding // key: portfolio|symbol|date

	portfolioErr  error
	appendPairErr error
}

func newMemStore() *memStore {
	return &memStore{
		portfolios:  make(map[string]models.Portfolio),
		assets:      make(map[string]models.Asset),
		allocations: make(map[string][]models.Allocation),
		holdings:    make(map[string]models.Holding),
		nextTxID:    1,
	}
}

func holdingKey(portfolio, symbol string, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", portfolio, symbol, date.Format("2006-01-02"))
}

func (m *memStore) ListPrices(ctx context.Context) ([]models.AssetPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AssetPrice, len(m.prices))
	copy(out, m.prices)
	return out, nil
}

func (m *memStore) ListAllocations(ctx context.Context, portfolio string) ([]models.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocations[portfolio], nil
}

func (m *memStore) GetPortfolio(ctx context.Context, name string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.portfolioErr != nil {
		return nil, m.portfolioErr
	}
	p, ok := m.portfolios[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[symbol]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Portfolio
	for _, p := range m.portfolios {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) AppendTransactionPair(ctx context.Context, sell, buy *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendPairErr != nil {
		return m.appendPairErr
	}
	for _, leg := range []*models.Transaction{sell, buy} {
		leg.ID = m.nextTxID
		m.nextTxID++
		m.txs = append(m.txs, *leg)
	}
	return nil
}

func (m *memStore) ListTransactions(ctx context.Context, portfolio string, upTo time.Time) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txs {
		if t.Portfolio == portfolio && !DateOf(t.Date).After(DateOf(upTo)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ReplacePortfolioHoldings(ctx context.Context, portfolio string, rows []models.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.holdings {
		if h.Portfolio == portfolio {
			delete(m.holdings, key)
		}
	}
	for _, h := range rows {
		m.holdings[holdingKey(h.Portfolio, h.Symbol, h.Date)] = h
	}
	return nil
}

func (m *memStore) UpsertHoldingsBatch(ctx context.Context, rows []models.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range rows {
		m.holdings[holdingKey(h.Portfolio, h.Symbol, h.Date)] = h
	}
	return nil
}

func (m *memStore) snapshot() map[string]models.Holding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Holding, len(m.holdings))
	for k, v := range m.holdings {
		out[k] = v
	}
	return out
}

func (m *memStore) holding(t *testing.T, portfolio, symbol string, date time.Time) models.Holding {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holdings[holdingKey(portfolio, symbol, date)]
	require.True(t, ok, "missing holding %s/%s on %s", portfolio, symbol, date.Format("2006-01-02"))
	return h
}

func (m *memStore) totalOn(portfolio string, date time.Time) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, h := range m.holdings {
		if h.Portfolio == portfolio && h.Date.Equal(DateOf(date)) {
			total = total.Add(h.Amount)
		}
	}
	return total
}

func newTestStore() *memStore {
	store := newMemStore()
	store.portfolios["Portfolio 1"] = models.Portfolio{ID: 1, Name: "Portfolio 1", InitialValue: decimal.NewFromInt(1_000_000_000)}
	store.assets["EEUU"] = models.Asset{ID: 1, Symbol: "EEUU", Name: "EEUU"}
	store.assets["Europa"] = models.Asset{ID: 2, Symbol: "Europa", Name: "Europa"}
	store.allocations["Portfolio 1"] = []models.Allocation{
		{Portfolio: "Portfolio 1", Symbol: "EEUU", Weight: decimal.RequireFromString("0.5")},
		{Portfolio: "Portfolio 1", Symbol: "Europa", Weight: decimal.RequireFromString("0.5")},
	}
	store.prices = []models.AssetPrice{
		{Symbol: "EEUU", Date: day(2022, 1, 3), Price: decimal.NewFromInt(100)},
		{Symbol: "Europa", Date: day(2022, 1, 3), Price: decimal.NewFromInt(200)},
		{Symbol: "EEUU", Date: day(2022, 5, 15), Price: decimal.NewFromInt(110)},
		{Symbol: "Europa", Date: day(2022, 5, 15), Price: decimal.NewFromInt(210)},
		{Symbol: "EEUU", Date: day(2022, 6, 1), Price: decimal.NewFromInt(120)},
		{Symbol: "Europa", Date: day(2022, 6, 1), Price: decimal.NewFromInt(220)},
	}
	return store
}

func newTestEngine(store *memStore) *Engine {
	return New(store, store, store, store, store, store, WeightPolicyPricedOnly, zerolog.Nop())
}

func TestEngineInitialLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	eng := newTestEngine(store)

	require.NoError(t, eng.LoadInitialHoldings(ctx))

	t.Run("baseline valuation on the first date", func(t *testing.T) {
		eeuu := store.holding(t, "Portfolio 1", "EEUU", day(2022, 1, 3))
		europa := store.holding(t, "Portfolio 1", "Europa", day(2022, 1, 3))

		assert.True(t, decimal.NewFromInt(5_000_000).Equal(eeuu.Quantity))
		assert.True(t, decimal.NewFromInt(2_500_000).Equal(europa.Quantity))
		assert.True(t, decimal.NewFromInt(500_000_000).Equal(eeuu.Amount))
		assert.True(t, decimal.NewFromInt(500_000_000).Equal(europa.Amount))
		assert.True(t, decimal.RequireFromString("0.5").Equal(eeuu.Weight))

		total := store.totalOn("Portfolio 1", day(2022, 1, 3))
		assert.True(t, decimal.NewFromInt(1_000_000_000).Equal(total))
	})

	t.Run("quantities stay constant across the projection window", func(t *testing.T) {
		later := store.holding(t, "Portfolio 1", "EEUU", day(2022, 6, 1))
		assert.True(t, decimal.NewFromInt(5_000_000).Equal(later.Quantity))
	})

	t.Run("reload is deterministic", func(t *testing.T) {
		before := store.snapshot()
		require.NoError(t, eng.LoadInitialHoldings(ctx))
		assert.Equal(t, before, store.snapshot())
	})
}

func TestEngineProcessTransaction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	eng := newTestEngine(store)
	require.NoError(t, eng.LoadInitialHoldings(ctx))

	preTx := store.snapshot()
	cutover := day(2022, 5, 15)
	totalBefore := store.totalOn("Portfolio 1", cutover)

	result, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
		Portfolio:  "Portfolio 1",
		SellSymbol: "EEUU",
		SellAmount: decimal.NewFromInt(200_000_000),
		BuySymbol:  "Europa",
		BuyAmount:  decimal.NewFromInt(200_000_000),
		Date:       cutover,
	})
	require.NoError(t, err)

	t.Run("leg quantities are derived from that date's prices", func(t *testing.T) {
		// 200,000,000 / 110 and 200,000,000 / 210, six places
		assert.True(t, decimal.RequireFromString("1818181.818182").Equal(result.SellLeg.Quantity), "got %s", result.SellLeg.Quantity)
		assert.True(t, decimal.RequireFromString("952380.952381").Equal(result.BuyLeg.Quantity), "got %s", result.BuyLeg.Quantity)
		assert.Equal(t, models.TransactionTypeSell, result.SellLeg.TransactionType)
		assert.Equal(t, models.TransactionTypeBuy, result.BuyLeg.TransactionType)
	})

	t.Run("holdings from the cutover reflect adjusted quantities", func(t *testing.T) {
		eeuu := store.holding(t, "Portfolio 1", "EEUU", cutover)
		europa := store.holding(t, "Portfolio 1", "Europa", cutover)

		assert.True(t, decimal.RequireFromString("3181818.181818").Equal(eeuu.Quantity), "got %s", eeuu.Quantity)
		assert.True(t, decimal.RequireFromString("3452380.952381").Equal(europa.Quantity), "got %s", europa.Quantity)

		// Adjusted quantities carry forward to later dates too
		later := store.holding(t, "Portfolio 1", "EEUU", day(2022, 6, 1))
		assert.True(t, decimal.RequireFromString("3181818.181818").Equal(later.Quantity))
	})

	t.Run("history before the cutover is untouched", func(t *testing.T) {
		for key, h := range preTx {
			if h.Date.Before(cutover) {
				assert.Equal(t, h, store.snapshot()[key], "row %s changed", key)
			}
		}
	})

	t.Run("portfolio value at the cutover is conserved", func(t *testing.T) {
		// Both legs move 200,000,000, so the net change is rounding only
		totalAfter := store.totalOn("Portfolio 1", cutover)
		diff := totalAfter.Sub(totalBefore).Abs()
		assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.02")), "value drifted by %s", diff)
	})

	t.Run("summary reports no anomalies for clean data", func(t *testing.T) {
		assert.Equal(t, "Portfolio 1", result.Summary.Portfolio)
		assert.Equal(t, 2, result.Summary.DatesProjected)
		assert.Equal(t, 4, result.Summary.RowsWritten)
		assert.Zero(t, result.Summary.NegativeQuantitySkips)
		assert.Zero(t, result.Summary.PrecisionFailures)
	})

	t.Run("recalculation is idempotent", func(t *testing.T) {
		before := store.snapshot()
		_, err := eng.Recalculate(ctx, "Portfolio 1", cutover)
		require.NoError(t, err)
		assert.Equal(t, before, store.snapshot())
	})

	t.Run("PortfolioValueOn matches the stored holdings", func(t *testing.T) {
		value, err := eng.PortfolioValueOn(ctx, "Portfolio 1", cutover)
		require.NoError(t, err)
		stored := store.totalOn("Portfolio 1", cutover)
		diff := value.Sub(stored).Abs()
		assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.02")), "spot value %s vs stored %s", value, stored)
	})
}

func TestEngineProcessTransactionRejections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	eng := newTestEngine(store)
	require.NoError(t, eng.LoadInitialHoldings(ctx))

	t.Run("missing price on either leg rejects the whole transaction", func(t *testing.T) {
		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 1",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(1000),
			BuySymbol:  "Europa",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 3, 1), // no prices on this date
		})
		var missing *MissingPriceError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "EEUU", missing.Symbol)

		// Nothing was appended to the ledger
		txs, err := store.ListTransactions(ctx, "Portfolio 1", day(2023, 1, 1))
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("unknown portfolio is rejected", func(t *testing.T) {
		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 9",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(1000),
			BuySymbol:  "Europa",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 5, 15),
		})
		assert.ErrorIs(t, err, ErrPortfolioNotFound)
	})

	t.Run("unknown symbol on either leg is rejected", func(t *testing.T) {
		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 1",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(1000),
			BuySymbol:  "Petroleo",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 5, 15),
		})
		assert.ErrorIs(t, err, ErrAssetNotFound)
	})

	t.Run("failed portfolio lookup is not reported as not-found", func(t *testing.T) {
		store.portfolioErr = errors.New("connection refused")
		defer func() { store.portfolioErr = nil }()

		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 1",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(1000),
			BuySymbol:  "Europa",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 5, 15),
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPortfolioNotFound)
	})

	t.Run("failed ledger append records neither leg", func(t *testing.T) {
		before := store.snapshot()
		store.appendPairErr = errors.New("connection refused")
		defer func() { store.appendPairErr = nil }()

		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 1",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(1000),
			BuySymbol:  "Europa",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 5, 15),
		})
		require.Error(t, err)

		txs, lerr := store.ListTransactions(ctx, "Portfolio 1", day(2023, 1, 1))
		require.NoError(t, lerr)
		assert.Empty(t, txs)
		assert.Equal(t, before, store.snapshot())
	})

	t.Run("oversell clamps quantity to zero, never negative", func(t *testing.T) {
		_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
			Portfolio:  "Portfolio 1",
			SellSymbol: "EEUU",
			SellAmount: decimal.NewFromInt(900_000_000_000), // far more than held
			BuySymbol:  "Europa",
			BuyAmount:  decimal.NewFromInt(1000),
			Date:       day(2022, 5, 15),
		})
		require.NoError(t, err)

		for _, h := range store.snapshot() {
			assert.False(t, h.Quantity.IsNegative(), "negative quantity for %s on %s", h.Symbol, h.Date)
		}
		eeuu := store.holding(t, "Portfolio 1", "EEUU", day(2022, 6, 1))
		assert.True(t, eeuu.Quantity.IsZero())
	})
}

func TestEngineConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	eng := newTestEngine(store)
	require.NoError(t, eng.LoadInitialHoldings(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.ProcessTransaction(ctx, models.TransactionRequest{
				Portfolio:  "Portfolio 1",
				SellSymbol: "EEUU",
				SellAmount: decimal.NewFromInt(10_000_000),
				BuySymbol:  "Europa",
				BuyAmount:  decimal.NewFromInt(10_000_000),
				Date:       day(2022, 5, 15),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The final state equals a clean replay of the full ledger
	before := store.snapshot()
	_, err := eng.Recalculate(ctx, "Portfolio 1", day(2022, 5, 15))
	require.NoError(t, err)
	assert.Equal(t, before, store.snapshot())
}
