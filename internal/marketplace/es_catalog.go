// internal/marketplace/es_catalog.go
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
	"ichra-quotes/internal/scheduler"
)

// ESCatalog is a PlanCatalog backed by an Elasticsearch plan index.
// Plan documents are indexed per county with keyword fields for market,
// metal level and carrier.
type ESCatalog struct {
	client *elasticsearch.Client
	index  string
	sched  *scheduler.Scheduler
	log    logger.Logger
}

func NewESCatalog(client *elasticsearch.Client, index string, sched *scheduler.Scheduler, log logger.Logger) *ESCatalog {
	return &ESCatalog{
		client: client,
		index:  index,
		sched:  sched,
		log:    log.WithFields(map[string]interface{}{"client": "es-catalog"}),
	}
}

func (c *ESCatalog) GetPlansForCounty(ctx context.Context, countyID string, filters models.PlanFilters) (*PlanPage, error) {
	var page *PlanPage
	err := c.sched.Do(ctx, "catalog", func(ctx context.Context) error {
		body, err := json.Marshal(buildPlanQuery(countyID, filters))
		if err != nil {
			return fmt.Errorf("failed to marshal query: %w", err)
		}

		from := 0
		size := filters.PageSize
		if size <= 0 {
			size = 100
		}
		if filters.Page > 1 {
			from = (filters.Page - 1) * size
		}

		req := esapi.SearchRequest{
			Index: []string{c.index},
			Body:  bytes.NewReader(body),
			From:  &from,
			Size:  &size,
		}

		resp, err := req.Do(ctx, c.client)
		if err != nil {
			return errs.NewServiceUnavailableError("catalog", err)
		}
		defer resp.Body.Close()

		if resp.IsError() {
			raw, _ := io.ReadAll(resp.Body)
			return errs.FromHTTPStatus("catalog", resp.StatusCode, string(raw))
		}

		var result struct {
			Hits struct {
				Total struct {
					Value int `json:"value"`
				} `json:"total"`
				Hits []struct {
					Source models.Plan `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		plans := make([]models.Plan, 0, len(result.Hits.Hits))
		for _, hit := range result.Hits.Hits {
			plans = append(plans, hit.Source)
		}
		page = &PlanPage{
			Plans:    plans,
			Total:    result.Hits.Total.Value,
			Page:     filters.Page,
			PageSize: size,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// buildPlanQuery assembles the bool filter for a county plan search.
func buildPlanQuery(countyID string, filters models.PlanFilters) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"countyId": countyID},
		},
		map[string]interface{}{
			"term": map[string]interface{}{"active": true},
		},
	}

	markets := []string{}
	if filters.OnMarket {
		markets = append(markets, string(models.MarketOn))
	}
	if filters.OffMarket {
		markets = append(markets, string(models.MarketOff))
	}
	if len(markets) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"terms": map[string]interface{}{"market": markets},
		})
	}

	if filters.MetalLevel != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"metalLevel": string(filters.MetalLevel)},
		})
	}
	if filters.Carrier != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"carrier": filters.Carrier},
		})
	}
	if filters.HSAEligible != nil {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"hsaEligible": *filters.HSAEligible},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filterClauses,
			},
		},
	}
}
