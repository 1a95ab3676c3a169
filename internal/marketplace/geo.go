// internal/marketplace/geo.go
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	errs "ichra-quotes/internal/common/errors"
	httpclient "ichra-quotes/internal/common/http"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/scheduler"
)

// ErrNotFound is returned when a collaborator has no record for the
// requested key (zip, plan, premium tuple). Never retried.
var ErrNotFound = errors.New("marketplace: not found")

// GeoClient resolves zip codes against the geography service.
type GeoClient struct {
	baseURL    string
	httpClient *httpclient.Client
	sched      *scheduler.Scheduler
	log        logger.Logger
}

func NewGeoClient(baseURL, apiKey string, timeout time.Duration, sched *scheduler.Scheduler, log logger.Logger) *GeoClient {
	return &GeoClient{
		baseURL:    baseURL,
		httpClient: httpclient.NewBearerClient(timeout, apiKey),
		sched:      sched,
		log:        log.WithFields(map[string]interface{}{"client": "geo"}),
	}
}

func (c *GeoClient) ResolveCounty(ctx context.Context, zip string) (*CountyResolution, error) {
	var resolution *CountyResolution
	err := c.sched.Do(ctx, "geo", func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/counties?zip=%s", c.baseURL, url.QueryEscape(zip))

		resp, err := c.httpClient.Get(ctx, reqURL)
		if err != nil {
			return errs.NewServiceUnavailableError("geo", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return errs.FromHTTPStatus("geo", resp.StatusCode, string(body))
		}

		var out CountyResolution
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Counties) == 0 {
			return ErrNotFound
		}
		resolution = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}
