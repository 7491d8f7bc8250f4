package currency

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultCBUEndpoint is the central bank's daily rates feed.
const DefaultCBUEndpoint = "https://cbu.uz/ru/arkhiv-kursov-valyut/json/"

// CBUClient fetches official UZS exchange rates.
type CBUClient struct {
	http     *resty.Client
	endpoint string
}

func NewCBUClient(endpoint string) *CBUClient {
	if endpoint == "" {
		endpoint = DefaultCBUEndpoint
	}
	return &CBUClient{
		http:     resty.New().SetTimeout(10 * time.Second),
		endpoint: endpoint,
	}
}

type cbuEntry struct {
	Ccy     string `json:"Ccy"`
	Nominal string `json:"Nominal"`
	Rate    string `json:"Rate"`
}

// FetchRates returns the current ccy -> UZS rates.
func (c *CBUClient) FetchRates(ctx context.Context) (map[string]float64, error) {
	var entries []cbuEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&entries).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("cbu rates: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cbu rates: status %d", resp.StatusCode())
	}

	rates := make(map[string]float64, len(entries))
	for _, entry := range entries {
		rate, err := strconv.ParseFloat(strings.ReplaceAll(entry.Rate, ",", "."), 64)
		if err != nil || rate <= 0 {
			continue
		}
		nominal, err := strconv.ParseFloat(entry.Nominal, 64)
		if err != nil || nominal <= 0 {
			nominal = 1
		}
		rates[strings.ToUpper(entry.Ccy)] = rate / nominal
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("cbu rates: empty feed")
	}
	return rates, nil
}
