package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/series"
	"github.com/greenledger/cbio-forecast/pkg/httputil"
	"github.com/greenledger/cbio-forecast/pkg/metrics"
)

// DefaultBaseURL is the public chart API host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches daily closes from the Yahoo Finance chart API
// ⭐ SSOT: market data calls go through this client only
type Client struct {
	httpClient *httputil.Client
	baseURL    string
	metrics    *metrics.Recorder
	log        zerolog.Logger
}

// NewClient creates a new chart API client; rec may be nil
func NewClient(httpClient *httputil.Client, baseURL string, rec *metrics.Recorder, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		metrics:    rec,
		log:        log.With().Str("component", "yahoo").Logger(),
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// FetchCloses returns one point per trading day in [start, end).
// Days with a null close are omitted.
func (c *Client) FetchCloses(ctx context.Context, ticker string, start, end time.Time) ([]series.Point, error) {
	began := time.Now()
	points, err := c.fetch(ctx, ticker, start, end)
	c.metrics.MarketDataFetched(ticker, time.Since(began), err)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("ticker", ticker).
		Str("start", start.Format(series.DateLayout)).
		Str("end", end.Format(series.DateLayout)).
		Int("points", len(points)).
		Msg("Fetched daily closes")
	return points, nil
}

func (c *Client) fetch(ctx context.Context, ticker string, start, end time.Time) ([]series.Point, error) {
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", series.Day(start).Unix()))
	params.Set("period2", fmt.Sprintf("%d", series.Day(end).Unix()))
	params.Set("interval", "1d")
	params.Set("events", "history")
	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)
	if decodeErr == nil && chart.Chart.Error != nil {
		return nil, fmt.Errorf("%s: %s: %s", ticker, chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status code: %d", ticker, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: failed to decode chart: %w", ticker, decodeErr)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: empty chart result", ticker)
	}

	return parseCloses(chart.Chart.Result[0], series.Day(end))
}

// parseCloses converts exchange timestamps to calendar days using the exchange offset
func parseCloses(r chartResult, end time.Time) ([]series.Point, error) {
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	closes := r.Indicators.Quote[0].Close
	if len(closes) != len(r.Timestamp) {
		return nil, fmt.Errorf("chart has %d timestamps but %d closes", len(r.Timestamp), len(closes))
	}

	points := make([]series.Point, 0, len(closes))
	for i, ts := range r.Timestamp {
		if closes[i] == nil {
			continue
		}
		date := series.Day(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		if !date.Before(end) {
			continue
		}
		points = append(points, series.Point{Date: date, Value: *closes[i]})
	}
	return points, nil
}
