// Package market looks up spot prices for the digest's market block:
// crypto via CoinMarketCap, indexes/commodities/equities via Yahoo Finance.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mtbot/internal/digest"
	logx "mtbot/pkg/logx"
)

const (
	cmcQuotesURL  = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"
	yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"
)

type YahooSymbol struct {
	Symbol   string
	Label    string
	Decimals int
}

// Service implements the digest price source. Each lookup failure degrades
// to an N/A quote; Quotes only errors when nothing at all resolved.
type Service struct {
	apiKey  string
	symbols []string // CoinMarketCap symbols, quoted in USD
	yahoo   []YahooSymbol
	client  *http.Client
	log     logx.Logger
}

func New(apiKey string, symbols []string, yahoo []YahooSymbol, timeout time.Duration, log logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		apiKey:  apiKey,
		symbols: symbols,
		yahoo:   yahoo,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Quotes returns one PriceQuote per configured symbol, in config order
// (crypto first, then Yahoo). Failed lookups come back with OK=false.
func (s *Service) Quotes(ctx context.Context) ([]digest.PriceQuote, error) {
	out := make([]digest.PriceQuote, 0, len(s.symbols)+len(s.yahoo))

	cryptoPrices, cryptoErr := s.cmcQuotes(ctx)
	if cryptoErr != nil && len(s.symbols) > 0 {
		s.log.Warn("coinmarketcap lookup failed", logx.Err(cryptoErr))
	}
	for _, sym := range s.symbols {
		price, ok := cryptoPrices[strings.ToUpper(sym)]
		out = append(out, digest.PriceQuote{
			Label: strings.ToUpper(sym),
			Value: FormatUSD(price, 2),
			OK:    ok,
		})
	}

	// Yahoo symbols are independent requests; fetch them concurrently.
	yq := make([]digest.PriceQuote, len(s.yahoo))
	var wg sync.WaitGroup
	for i, ys := range s.yahoo {
		wg.Add(1)
		go func(i int, ys YahooSymbol) {
			defer wg.Done()
			price, err := s.yahooQuote(ctx, ys.Symbol)
			if err != nil {
				s.log.Warn("yahoo lookup failed",
					logx.String("symbol", ys.Symbol), logx.Err(err))
			}
			dec := ys.Decimals
			if dec <= 0 {
				dec = 2
			}
			yq[i] = digest.PriceQuote{
				Label: ys.Label,
				Value: FormatUSD(price, dec),
				OK:    err == nil,
			}
		}(i, ys)
	}
	wg.Wait()
	out = append(out, yq...)

	okCount := 0
	for _, q := range out {
		if q.OK {
			okCount++
		}
	}
	if len(out) > 0 && okCount == 0 {
		return out, fmt.Errorf("no market quotes resolved")
	}
	return out, nil
}

func (s *Service) cmcQuotes(ctx context.Context) (map[string]float64, error) {
	if len(s.symbols) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, fmt.Errorf("coinmarketcap api key not configured")
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(strings.Join(s.symbols, ",")))
	q.Set("convert", "USD")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cmcQuotesURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coinmarketcap: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data map[string]struct {
			Quote map[string]struct {
				Price float64 `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("coinmarketcap: decode: %w", err)
	}

	prices := make(map[string]float64, len(payload.Data))
	for sym, d := range payload.Data {
		if usd, ok := d.Quote["USD"]; ok {
			prices[strings.ToUpper(sym)] = usd.Price
		}
	}
	return prices, nil
}

func (s *Service) yahooQuote(ctx context.Context, symbol string) (float64, error) {
	u := yahooChartURL + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	// Yahoo rejects requests without a browser-ish UA.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; mtbot/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("yahoo: http %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
			Error *struct {
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("yahoo: decode: %w", err)
	}
	if payload.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return 0, fmt.Errorf("yahoo: empty result for %s", symbol)
	}
	return payload.Chart.Result[0].Meta.RegularMarketPrice, nil
}
