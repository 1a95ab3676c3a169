// internal/marketplace/pricing.go
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	errs "ichra-quotes/internal/common/errors"
	httpclient "ichra-quotes/internal/common/http"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/scheduler"
)

// PricingClient retrieves age/tobacco-rated premiums.
type PricingClient struct {
	baseURL    string
	httpClient *httpclient.Client
	sched      *scheduler.Scheduler
	log        logger.Logger
}

func NewPricingClient(baseURL, apiKey string, timeout time.Duration, sched *scheduler.Scheduler, log logger.Logger) *PricingClient {
	return &PricingClient{
		baseURL:    baseURL,
		httpClient: httpclient.NewBearerClient(timeout, apiKey),
		sched:      sched,
		log:        log.WithFields(map[string]interface{}{"client": "pricing"}),
	}
}

func (c *PricingClient) GetPremium(ctx context.Context, planID, ratingAreaID string, age int, tobacco bool, asOfDate string) (decimal.Decimal, error) {
	var premium decimal.Decimal
	err := c.sched.Do(ctx, "pricing", func(ctx context.Context) error {
		q := url.Values{}
		q.Set("ratingAreaId", ratingAreaID)
		q.Set("age", strconv.Itoa(age))
		q.Set("tobacco", strconv.FormatBool(tobacco))
		if asOfDate != "" {
			q.Set("asOfDate", asOfDate)
		}
		reqURL := fmt.Sprintf("%s/plans/%s/premium?%s", c.baseURL, url.PathEscape(planID), q.Encode())

		resp, err := c.httpClient.Get(ctx, reqURL)
		if err != nil {
			return errs.NewServiceUnavailableError("pricing", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return errs.FromHTTPStatus("pricing", resp.StatusCode, string(body))
		}

		var out struct {
			Premium decimal.Decimal `json:"premium"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		premium = out.Premium
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return premium, nil
}
