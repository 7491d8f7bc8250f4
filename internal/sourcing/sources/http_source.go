package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

// HTTPSource talks to a supplier platform gateway exposing a uniform search
// API. The gateways front 1688/Alibaba and normalize their payloads, so one
// client shape serves every platform.
type HTTPSource struct {
	name     string
	origin   string
	currency string
	http     *resty.Client
}

func NewHTTPSource(name, origin, currency, baseURL string, cfg config.SourcingConfig) *HTTPSource {
	return &HTTPSource{
		name:     name,
		origin:   origin,
		currency: currency,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Accept", "application/json"),
	}
}

func (s *HTTPSource) Name() string   { return s.name }
func (s *HTTPSource) Origin() string { return s.origin }

type searchResponse struct {
	Items []struct {
		Title       string  `json:"title"`
		Price       float64 `json:"price"`
		Currency    string  `json:"currency"`
		URL         string  `json:"url"`
		StoreName   string  `json:"store_name"`
		StoreRating float64 `json:"store_rating"`
		WeightKg    float64 `json:"weight_kg"`
	} `json:"items"`
}

func (s *HTTPSource) Search(ctx context.Context, query string, limit int) ([]domain.OfferInput, error) {
	var out searchResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/v1/search")
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", s.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s search: status %d", s.name, resp.StatusCode())
	}

	offers := make([]domain.OfferInput, 0, len(out.Items))
	for _, item := range out.Items {
		if item.Price <= 0 || item.Title == "" {
			continue
		}
		currency := item.Currency
		if currency == "" {
			currency = s.currency
		}
		offers = append(offers, domain.OfferInput{
			Title:       item.Title,
			Price:       item.Price,
			Currency:    currency,
			OfferURL:    item.URL,
			StoreName:   item.StoreName,
			StoreRating: item.StoreRating,
			WeightKg:    item.WeightKg,
		})
	}
	return offers, nil
}
