// internal/marketplace/catalog.go
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

	errs "ichra-quotes/internal/common/errors"
	httpclient "ichra-quotes/internal/common/http"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
	"ichra-quotes/internal/scheduler"
)

// CatalogClient fetches plan candidates from the catalog HTTP service.
type CatalogClient struct {
	baseURL    string
	httpClient *httpclient.Client
	sched      *scheduler.Scheduler
	log        logger.Logger
}

func NewCatalogClient(baseURL, apiKey string, timeout time.Duration, sched *scheduler.Scheduler, log logger.Logger) *CatalogClient {
	return &CatalogClient{
		baseURL:    baseURL,
		httpClient: httpclient.NewBearerClient(timeout, apiKey),
		sched:      sched,
		log:        log.WithFields(map[string]interface{}{"client": "catalog"}),
	}
}

func (c *CatalogClient) GetPlansForCounty(ctx context.Context, countyID string, filters models.PlanFilters) (*PlanPage, error) {
	var page *PlanPage
	err := c.sched.Do(ctx, "catalog", func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/counties/%s/plans?%s", c.baseURL, url.PathEscape(countyID), encodeFilters(filters))

		resp, err := c.httpClient.Get(ctx, reqURL)
		if err != nil {
			return errs.NewServiceUnavailableError("catalog", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return errs.FromHTTPStatus("catalog", resp.StatusCode, string(body))
		}

		var out PlanPage
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		page = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func encodeFilters(filters models.PlanFilters) string {
	q := url.Values{}
	q.Set("onMarket", strconv.FormatBool(filters.OnMarket))
	q.Set("offMarket", strconv.FormatBool(filters.OffMarket))
	if filters.MetalLevel != "" {
		q.Set("metalLevel", string(filters.MetalLevel))
	}
	if filters.Carrier != "" {
		q.Set("carrier", filters.Carrier)
	}
	if filters.HSAEligible != nil {
		q.Set("hsaEligible", strconv.FormatBool(*filters.HSAEligible))
	}
	if filters.Page > 0 {
		q.Set("page", strconv.Itoa(filters.Page))
	}
	if filters.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(filters.PageSize))
	}
	return q.Encode()
}
