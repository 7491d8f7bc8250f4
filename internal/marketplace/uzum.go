package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/ratelimit"
)

const searchPageSize = 48

var defaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Origin":     "https://uzum.uz",
	"Referer":    "https://uzum.uz/",
	"Accept":     "application/json",
}

// UzumClient talks to the Uzum REST detail API and GraphQL search endpoint.
type UzumClient struct {
	rest    *resty.Client
	search  *resty.Client
	limiter *ratelimit.MarketplaceLimiter
}

func NewUzumClient(cfg config.Config, limiter *ratelimit.MarketplaceLimiter) *UzumClient {
	timeout := cfg.Marketplace.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rest := resty.New().
		SetBaseURL(cfg.Marketplace.RESTBaseURL).
		SetTimeout(timeout).
		SetHeaders(defaultHeaders)
	search := resty.New().
		SetBaseURL(cfg.Marketplace.SearchBaseURL).
		SetTimeout(timeout).
		SetHeaders(defaultHeaders).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})

	return &UzumClient{rest: rest, search: search, limiter: limiter}
}

type detailEnvelope struct {
	Payload struct {
		Data *detailPayload `json:"data"`
		*detailPayload
	} `json:"payload"`
}

type detailPayload struct {
	Title            string `json:"title"`
	LocalizableTitle struct {
		RU string `json:"ru"`
	} `json:"localizableTitle"`
	Rating               float64 `json:"rating"`
	OrdersAmount         int64   `json:"ordersAmount"`
	ROrdersAmount        *int64  `json:"rOrdersAmount"`
	ReviewsAmount        int64   `json:"reviewsAmount"`
	FeedbackQuantity     int64   `json:"feedbackQuantity"`
	TotalAvailableAmount int64   `json:"totalAvailableAmount"`
	Category             struct {
		ID int64 `json:"id"`
	} `json:"category"`
	SkuList []struct {
		ID            int64   `json:"id"`
		PurchasePrice float64 `json:"purchasePrice"`
		FullPrice     float64 `json:"fullPrice"`
		Stock         struct {
			Type string `json:"type"`
		} `json:"stock"`
	} `json:"skuList"`
}

// FetchDetail implements Client over the /product/{id} endpoint. The API
// wraps the body in payload.data for newer responses and payload for older
// ones.
func (c *UzumClient) FetchDetail(ctx context.Context, productID int64) (*domain.DetailRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var envelope detailEnvelope
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/product/%d", productID))
	if err != nil {
		return nil, fmt.Errorf("fetch detail %d: %w", productID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch detail %d: status %d", productID, resp.StatusCode())
	}

	payload := envelope.Payload.Data
	if payload == nil {
		payload = envelope.Payload.detailPayload
	}
	if payload == nil {
		return nil, domain.ErrNotFound
	}

	title := payload.LocalizableTitle.RU
	if title == "" {
		title = payload.Title
	}
	reviewCount := payload.ReviewsAmount
	if reviewCount == 0 {
		reviewCount = payload.FeedbackQuantity
	}

	stockType := domain.StockTypeFBS
	var minSellPrice float64
	if len(payload.SkuList) > 0 {
		first := payload.SkuList[0]
		if first.Stock.Type == domain.StockTypeFBO {
			stockType = domain.StockTypeFBO
		}
		minSellPrice = first.PurchasePrice
	}

	var weeklyDemand *float64
	if payload.ROrdersAmount != nil {
		value := float64(*payload.ROrdersAmount)
		weeklyDemand = &value
	}

	return &domain.DetailRecord{
		ExternalID:      productID,
		Title:           title,
		Rating:          payload.Rating,
		ReviewCount:     reviewCount,
		OrdersQuantity:  payload.OrdersAmount,
		WeeklyDemand:    weeklyDemand,
		AvailableAmount: payload.TotalAvailableAmount,
		MinSellPrice:    minSellPrice,
		StockType:       stockType,
		CategoryID:      payload.Category.ID,
	}, nil
}

const makeSearchQuery = `
  query makeSearch($queryInput: MakeSearchQueryInput!) {
    makeSearch(query: $queryInput) {
      items { catalogCard { ... on SkuGroupCard { __typename id productId ordersQuantity feedbackQuantity rating minSellPrice title buyingOptions { defaultSkuId deliveryOptions { stockType } } } } }
      total
    }
  }
`

type searchEnvelope struct {
	Data struct {
		MakeSearch struct {
			Items []struct {
				CatalogCard struct {
					Typename         string  `json:"__typename"`
					ProductID        int64   `json:"productId"`
					OrdersQuantity   int64   `json:"ordersQuantity"`
					FeedbackQuantity int64   `json:"feedbackQuantity"`
					Rating           float64 `json:"rating"`
					MinSellPrice     float64 `json:"minSellPrice"`
					Title            string  `json:"title"`
					BuyingOptions    struct {
						DeliveryOptions struct {
							StockType string `json:"stockType"`
						} `json:"deliveryOptions"`
					} `json:"buyingOptions"`
				} `json:"catalogCard"`
			} `json:"items"`
			Total int64 `json:"total"`
		} `json:"makeSearch"`
	} `json:"data"`
}

// SearchCategory implements Client over the GraphQL makeSearch operation,
// paging until limit cards are collected or the category runs out.
func (c *UzumClient) SearchCategory(ctx context.Context, categoryID int64, limit int) ([]domain.CatalogCard, error) {
	if limit <= 0 {
		return nil, nil
	}

	cards := make([]domain.CatalogCard, 0, limit)
	for page := 0; len(cards) < limit; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body := map[string]any{
			"operationName": "makeSearch",
			"query":         makeSearchQuery,
			"variables": map[string]any{
				"queryInput": map[string]any{
					"categoryId":       categoryID,
					"pagination":       map[string]int{"offset": page * searchPageSize, "limit": searchPageSize},
					"showAdultContent": "HIDE",
					"filters":          []any{},
					"sort":             "BY_RELEVANCE_DESC",
				},
			},
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal search request: %w", err)
		}

		var envelope searchEnvelope
		resp, err := c.search.R().
			SetContext(ctx).
			SetBody(raw).
			SetResult(&envelope).
			Post("/")
		if err != nil {
			return nil, fmt.Errorf("search category %d page %d: %w", categoryID, page, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("search category %d page %d: status %d", categoryID, page, resp.StatusCode())
		}

		items := envelope.Data.MakeSearch.Items
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			card := item.CatalogCard
			if card.Typename != "SkuGroupCard" || card.ProductID == 0 {
				continue
			}
			stockType := card.BuyingOptions.DeliveryOptions.StockType
			if stockType != domain.StockTypeFBO {
				stockType = domain.StockTypeFBS
			}
			cards = append(cards, domain.CatalogCard{
				ProductID:      card.ProductID,
				Title:          card.Title,
				Rating:         card.Rating,
				ReviewCount:    card.FeedbackQuantity,
				OrdersQuantity: card.OrdersQuantity,
				MinSellPrice:   card.MinSellPrice,
				StockType:      stockType,
			})
			if len(cards) == limit {
				break
			}
		}
	}
	return cards, nil
}

var _ Client = (*UzumClient)(nil)
