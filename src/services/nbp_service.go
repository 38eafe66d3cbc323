package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/model"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

type nbpServiceImpl struct {
	baseURL   string
	http      *http.Client
	db        *sql.DB
	rateCache *cache.Cache
}

func NewNbpService(baseURL string, db *sql.DB, rateCache *cache.Cache) NbpService {
	return &nbpServiceImpl{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		db:        db,
		rateCache: rateCache,
	}
}

// FetchRates queries the NBP reference-rate API for one currency code in a
// date range and returns the quotations against PLN. Responses are cached
// per URL since published rates never change.
func (s *nbpServiceImpl) FetchRates(ctx context.Context, table, code, startDate, endDate string) ([]models.Rate, error) {
	url := fmt.Sprintf("%s/exchangerates/rates/%s/%s/%s/%s/?format=json",
		s.baseURL, table, code, startDate, endDate)
	if cached, found := s.rateCache.Get(fmt.Sprintf(ckNbpRates, url)); found {
		return cached.([]models.Rate), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building NBP request: %w", err)
	}
	logger.FromContext(ctx).Info("Fetching NBP rates", "url", url)
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching NBP rates: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading NBP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NBP API returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Code  string `json:"code"`
		Rates []struct {
			EffectiveDate string  `json:"effectiveDate"`
			Mid           float64 `json:"mid"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Rates) == 0 {
		return nil, fmt.Errorf("unexpected NBP response format: %s", string(body))
	}

	rates := make([]models.Rate, 0, len(decoded.Rates))
	for _, r := range decoded.Rates {
		rates = append(rates, models.Rate{
			BaseCurrency:  decoded.Code,
			QuoteCurrency: "PLN",
			Date:          r.EffectiveDate,
			Price:         r.Mid,
			Source:        "NBP",
		})
	}
	s.rateCache.Set(fmt.Sprintf(ckNbpRates, url), rates, cache.DefaultExpiration)
	return rates, nil
}

// StoreRates stores the quotations that are not stored yet and returns the
// number saved.
func (s *nbpServiceImpl) StoreRates(ctx context.Context, rates []models.Rate) (int, error) {
	saved := 0
	for _, rate := range rates {
		exists, err := model.RateExists(ctx, s.db, rate.BaseCurrency, rate.QuoteCurrency, rate.Date)
		if err != nil {
			return saved, err
		}
		if exists {
			continue
		}
		if err := model.CreateRate(ctx, s.db, rate); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
