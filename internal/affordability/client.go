// Package affordability manages the group-level external affordability
// calculation: a rate-limited submission, polling for completion, and a
// verbatim merge of the service's per-member determinations.
package affordability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "ichra-quotes/internal/common/errors"
	httpclient "ichra-quotes/internal/common/http"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
	"ichra-quotes/internal/scheduler"
)

// SubmitRequest is the payload for a new calculation.
type SubmitRequest struct {
	EffectiveDate      string `json:"effectiveDate"`
	PlanYear           int    `json:"planYear"`
	RatingAreaLocation string `json:"ratingAreaLocation"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	CalculationID string                   `json:"calculationId"`
	Status        models.CalculationStatus `json:"status"`
}

// CalculationResult is the service's calculation state.
type CalculationResult struct {
	Status               models.CalculationStatus    `json:"status"`
	OverallAffordability string                      `json:"overallAffordability"`
	Summary              models.AffordabilitySummary `json:"summary"`
}

// API is the external affordability service surface.
type API interface {
	Submit(ctx context.Context, groupExternalID string, req SubmitRequest) (*SubmitResponse, error)
	Get(ctx context.Context, calculationID string) (*CalculationResult, error)
	GetMembers(ctx context.Context, calculationID string) ([]models.MemberCompliance, error)
}

// Client calls the affordability service through its own dedicated
// scheduler: single-concurrency, and in constrained deployments a
// lifetime quota with no periodic refill.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
	sched      *scheduler.Scheduler
	log        logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, sched *scheduler.Scheduler, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.NewBearerClient(timeout, apiKey),
		sched:      sched,
		log:        log.WithFields(map[string]interface{}{"client": "affordability"}),
	}
}

func (c *Client) Submit(ctx context.Context, groupExternalID string, submitReq SubmitRequest) (*SubmitResponse, error) {
	var out *SubmitResponse
	err := c.sched.Do(ctx, "affordability", func(ctx context.Context) error {
		payload := map[string]interface{}{
			"groupExternalId":    groupExternalID,
			"effectiveDate":      submitReq.EffectiveDate,
			"planYear":           submitReq.PlanYear,
			"ratingAreaLocation": submitReq.RatingAreaLocation,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal submission: %w", err)
		}

		resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/calculations", body)
		if err != nil {
			return errs.NewServiceUnavailableError("affordability", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			raw, _ := io.ReadAll(resp.Body)
			return errs.FromHTTPStatus("affordability", resp.StatusCode, string(raw))
		}

		var decoded SubmitResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		out = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, calculationID string) (*CalculationResult, error) {
	var out *CalculationResult
	err := c.sched.Do(ctx, "affordability", func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/calculations/%s", c.baseURL, calculationID)
		var decoded CalculationResult
		if err := c.getJSON(ctx, reqURL, &decoded); err != nil {
			return err
		}
		out = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMembers(ctx context.Context, calculationID string) ([]models.MemberCompliance, error) {
	var out []models.MemberCompliance
	err := c.sched.Do(ctx, "affordability", func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/calculations/%s/members", c.baseURL, calculationID)
		var decoded struct {
			Members []models.MemberCompliance `json:"members"`
		}
		if err := c.getJSON(ctx, reqURL, &decoded); err != nil {
			return err
		}
		out = decoded.Members
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, target interface{}) error {
	resp, err := c.httpClient.Get(ctx, reqURL)
	if err != nil {
		return errs.NewServiceUnavailableError("affordability", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return errs.FromHTTPStatus("affordability", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
