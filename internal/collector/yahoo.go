package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"EquityWatch/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher reads daily history from the public chart endpoint.
type YahooFetcher struct {
	BaseURL string
	Client  *http.Client
	// Tickers overrides the ticker used for an instrument id.
	Tickers map[string]string
}

func NewYahooFetcher(baseURL, proxyURL string) *YahooFetcher {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if u, err := url.Parse(proxyURL); err == nil && proxyURL != "" {
		transport.Proxy = http.ProxyURL(u)
	}
	return &YahooFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		Tickers: map[string]string{},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// ticker maps an instrument id to Yahoo's spelling. Share classes use a dash
// there, so BRK.B is requested as BRK-B.
func (f *YahooFetcher) ticker(id string) string {
	if t, ok := f.Tickers[id]; ok {
		return t
	}
	return strings.ReplaceAll(id, ".", "-")
}

// chartSeries holds one result of the chart reply. Holidays and halted
// sessions come back as nulls, hence the pointers.
type chartSeries struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartReply struct {
	Chart struct {
		Result []chartSeries `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func pick(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

// bars converts the series into bars for id, dropping sessions without a close.
func (s chartSeries) bars(id string) []model.PriceBar {
	if len(s.Indicators.Quote) == 0 {
		return nil
	}
	q := s.Indicators.Quote[0]
	out := make([]model.PriceBar, 0, len(s.Timestamp))
	for i, ts := range s.Timestamp {
		closePx, ok := pick(q.Close, i)
		if !ok {
			continue
		}
		bar := model.PriceBar{InstrumentID: id, Date: time.Unix(ts, 0).UTC(), Close: closePx}
		bar.Open, _ = pick(q.Open, i)
		bar.High, _ = pick(q.High, i)
		bar.Low, _ = pick(q.Low, i)
		bar.Volume, _ = pick(q.Volume, i)
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (f *YahooFetcher) chart(ctx context.Context, id, rng string) (*chartReply, error) {
	q := url.Values{"interval": {"1d"}, "range": {rng}}
	endpoint := f.BaseURL + "/v8/finance/chart/" + url.PathEscape(f.ticker(id)) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	// the endpoint rejects requests without a browser-like agent
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo %s: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var reply chartReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("yahoo %s: decode chart: %w", id, err)
	}
	if e := reply.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo %s: %s (%s)", id, e.Description, e.Code)
	}
	return &reply, nil
}

// yahooRange is the shortest chart range that spans the given trading days.
func yahooRange(days int) string {
	ranges := []struct {
		maxDays int
		name    string
	}{
		{20, "1mo"}, {60, "3mo"}, {125, "6mo"}, {252, "1y"}, {504, "2y"}, {1260, "5y"},
	}
	for _, r := range ranges {
		if days <= r.maxDays {
			return r.name
		}
	}
	return "10y"
}

// FetchDailyBars returns at most days bars for id, oldest first.
func (f *YahooFetcher) FetchDailyBars(ctx context.Context, id string, days int) ([]model.PriceBar, error) {
	reply, err := f.chart(ctx, id, yahooRange(days))
	if err != nil {
		return nil, err
	}
	var bars []model.PriceBar
	if len(reply.Chart.Result) > 0 {
		bars = reply.Chart.Result[0].bars(id)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo %s: empty chart", id)
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
