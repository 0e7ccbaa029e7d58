package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/cache"
	"github.com/valuatech/portfolio-service/internal/database"
	"github.com/valuatech/portfolio-service/internal/engine"
	"github.com/valuatech/portfolio-service/internal/kafka"
	"github.com/valuatech/portfolio-service/internal/models"
)

const dateLayout = "2006-01-02"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db       *database.DB
	engine   *engine.Engine
	producer *kafka.Producer
	values   *cache.ValueCache
	logger   zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, eng *engine.Engine, producer *kafka.Producer, values *cache.ValueCache, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		engine:   eng,
		producer: producer,
		values:   values,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetHoldings handles GET /api/v1/holdings
func (h *Handler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	portfolio := r.URL.Query().Get("portfolio")
	start, end, err := parseDateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	holdings, err := h.db.GetHoldings(r.Context(), portfolio, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, holdings)
}

// GetValues handles GET /api/v1/values
func (h *Handler) GetValues(w http.ResponseWriter, r *http.Request) {
	portfolio := r.URL.Query().Get("portfolio")
	startStr := r.URL.Query().Get("start_date")
	endStr := r.URL.Query().Get("end_date")
	start, end, err := parseDateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.values != nil {
		if cached, ok := h.values.GetValueSeries(r.Context(), portfolio, startStr, endStr); ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	values, err := h.db.GetPortfolioValues(r.Context(), portfolio, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.values != nil {
		h.values.SetValueSeries(r.Context(), portfolio, startStr, endStr, values)
	}

	respondJSON(w, http.StatusOK, values)
}

// CreateTransaction handles POST /api/v1/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Portfolio  string          `json:"portfolio"`
		SellSymbol string          `json:"sell_symbol"`
		SellAmount decimal.Decimal `json:"sell_amount"`
		BuySymbol  string          `json:"buy_symbol"`
		BuyAmount  decimal.Decimal `json:"buy_amount"`
		Date       string          `json:"date"`
		RequestID  string          `json:"request_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Portfolio == "" || req.SellSymbol == "" || req.BuySymbol == "" {
		http.Error(w, "portfolio, sell_symbol, and buy_symbol are required", http.StatusBadRequest)
		return
	}
	if !req.SellAmount.IsPositive() || !req.BuyAmount.IsPositive() {
		http.Error(w, "sell_amount and buy_amount must be positive", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, "date must be formatted as YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	txReq := models.TransactionRequest{
		Portfolio:  req.Portfolio,
		SellSymbol: req.SellSymbol,
		SellAmount: req.SellAmount,
		BuySymbol:  req.BuySymbol,
		BuyAmount:  req.BuyAmount,
		Date:       date,
		RequestID:  req.RequestID,
	}

	result, err := h.engine.ProcessTransaction(r.Context(), txReq)
	if err != nil {
		var missing *engine.MissingPriceError
		switch {
		case errors.As(err, &missing):
			http.Error(w, missing.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, engine.ErrPortfolioNotFound), errors.Is(err, engine.ErrAssetNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if h.values != nil {
		h.values.InvalidatePortfolio(r.Context(), req.Portfolio)
	}

	if h.producer != nil {
		if err := h.producer.PublishTransactionRecorded(r.Context(), txReq); err != nil {
			h.logger.Error().Err(err).Msg("failed to publish transaction recorded event")
		}
		if err := h.producer.PublishRecalculationCompleted(r.Context(), result.Summary); err != nil {
			h.logger.Error().Err(err).Msg("failed to publish recalculation event")
		}
	}

	value, err := h.engine.PortfolioValueOn(r.Context(), req.Portfolio, date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"sell_leg":        result.SellLeg,
		"buy_leg":         result.BuyLeg,
		"summary":         result.Summary,
		"portfolio_value": value,
	})
}

// GetDatasetCounts handles GET /api/v1/datasets
func (h *Handler) GetDatasetCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assets, err := h.db.CountAssets(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	portfolios, err := h.db.CountPortfolios(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	prices, err := h.db.CountPrices(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	holdings, err := h.db.CountHoldings(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	transactions, err := h.db.CountTransactions(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"assets":       assets,
		"portfolios":   portfolios,
		"prices":       prices,
		"holdings":     holdings,
		"transactions": transactions,
	})
}

// LoadDataset handles POST /api/v1/datasets: bulk load of typed records
// followed by a full initial projection. This is the engine-facing contract
// of whatever produced the raw weight and price tables; file parsing is the
// caller's problem.
func (h *Handler) LoadDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assets     []models.Asset `json:"assets"`
		Portfolios []struct {
			Name         string          `json:"name"`
			InitialValue decimal.Decimal `json:"initial_value"`
		} `json:"portfolios"`
		Allocations []struct {
			Portfolio string          `json:"portfolio"`
			Symbol    string          `json:"symbol"`
			Weight    decimal.Decimal `json:"weight"`
		} `json:"allocations"`
		Prices []struct {
			Symbol string          `json:"symbol"`
			Date   string          `json:"date"`
			Price  decimal.Decimal `json:"price"`
		} `json:"prices"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for i := range req.Assets {
		if err := h.db.CreateAsset(ctx, &req.Assets[i]); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	for _, p := range req.Portfolios {
		portfolio := models.Portfolio{Name: p.Name, InitialValue: p.InitialValue}
		if err := h.db.CreatePortfolio(ctx, &portfolio); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	allocations := make([]models.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocations = append(allocations, models.Allocation{Portfolio: a.Portfolio, Symbol: a.Symbol, Weight: a.Weight})
	}
	if err := h.db.CreateAllocationBatch(ctx, allocations); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prices := make([]models.AssetPrice, 0, len(req.Prices))
	for _, p := range req.Prices {
		date, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			http.Error(w, "price dates must be formatted as YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		prices = append(prices, models.AssetPrice{Symbol: p.Symbol, Date: date, Price: p.Price})
	}
	if err := h.db.CreatePriceBatch(ctx, prices); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.engine.LoadInitialHoldings(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.values != nil {
		for _, p := range req.Portfolios {
			h.values.InvalidatePortfolio(ctx, p.Name)
		}
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "loaded"})
}

// GetAssets handles GET /api/v1/assets
func (h *Handler) GetAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.db.ListAssets(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, assets)
}

func parseDateRange(r *http.Request) (start, end *time.Time, err error) {
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, perr := time.Parse(dateLayout, s)
		if perr != nil {
			return nil, nil, errors.New("start_date must be formatted as YYYY-MM-DD")
		}
		start = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, perr := time.Parse(dateLayout, s)
		if perr != nil {
			return nil, nil, errors.New("end_date must be formatted as YYYY-MM-DD")
		}
		end = &t
	}
	return start, end, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
