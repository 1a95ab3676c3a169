// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Fakes
// ==========================

type fakeEngine struct {
	generateFunc   func(ctx context.Context, group *models.Group, filters models.PlanFilters) (*models.QuoteResult, error)
	applyFunc      func(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error)
	invalidateFunc func(ctx context.Context, groupID string) error

	lastGroup   *models.Group
	lastQuoteID string
	lastGroupID string
	lastFilters models.PlanFilters
}

func (f *fakeEngine) GenerateGroupQuote(ctx context.Context, group *models.Group, filters models.PlanFilters) (*models.QuoteResult, error) {
	f.lastGroup = group
	f.lastFilters = filters
	if f.generateFunc != nil {
		return f.generateFunc(ctx, group, filters)
	}
	return &models.QuoteResult{ID: "q-1", GroupID: group.ID, Status: models.QuoteStatusActive}, nil
}

func (f *fakeEngine) ApplyFiltersToQuote(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error) {
	f.lastQuoteID = quoteID
	f.lastFilters = filters
	if f.applyFunc != nil {
		return f.applyFunc(ctx, quoteID, filters)
	}
	return &models.FilteredQuoteView{QuoteID: quoteID}, nil
}

func (f *fakeEngine) InvalidateGroup(ctx context.Context, groupID string) error {
	f.lastGroupID = groupID
	if f.invalidateFunc != nil {
		return f.invalidateFunc(ctx, groupID)
	}
	return nil
}

func newTestServer(engine *fakeEngine) *httptest.Server {
	srv := NewServer(engine, logger.NewZapAdapter(logger.New("error", "console")))
	mux := http.NewServeMux()
	srv.Register(mux)
	return httptest.NewServer(mux)
}

func validQuoteBody() []byte {
	body := map[string]interface{}{
		"group": map[string]interface{}{
			"id":            "grp-1",
			"name":          "Acme Widgets",
			"effectiveDate": "2026-01-01",
			"planYear":      2026,
			"members": []map[string]interface{}{
				{
					"id":  "m1",
					"age": 34,
					"zip": "80202",
				},
			},
		},
		"filters": map[string]interface{}{
			"onMarket": true,
		},
	}
	raw, _ := json.Marshal(body)
	return raw
}

func postJSON(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

// ==========================
// POST /quotes
// ==========================

func TestGenerateQuote(t *testing.T) {
	engine := &fakeEngine{}
	ts := newTestServer(engine)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/quotes", validQuoteBody())
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var quote models.QuoteResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quote))
	assert.Equal(t, "q-1", quote.ID)
	assert.Equal(t, "grp-1", quote.GroupID)

	require.NotNil(t, engine.lastGroup)
	assert.Equal(t, "Acme Widgets", engine.lastGroup.Name)
	assert.True(t, engine.lastFilters.OnMarket)
}

func TestGenerateQuoteRejectsInvalidPayload(t *testing.T) {
	engine := &fakeEngine{}
	ts := newTestServer(engine)
	defer ts.Close()

	// Missing the group block entirely.
	resp := postJSON(t, ts.URL+"/quotes", []byte(`{"filters":{}}`))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, engine.lastGroup, "engine should not be called for invalid input")

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, string(errs.ErrCodeInvalidFilterInput), envelope.Error.Code)
}

func TestGenerateQuoteRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(&fakeEngine{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/quotes", []byte(`{not json`))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateQuoteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no plans", errs.NewNoPlansAvailableError("grp-1"), http.StatusUnprocessableEntity},
		{"trial limit", errs.NewTrialLimitExceededError(10, 10), http.StatusTooManyRequests},
		{"compliance unavailable", errs.NewComplianceUnavailableError("grp-1", "pending"), http.StatusServiceUnavailable},
		{"store unavailable", errs.NewStoreUnavailableError(errors.New("save failed")), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{
				generateFunc: func(ctx context.Context, group *models.Group, filters models.PlanFilters) (*models.QuoteResult, error) {
					return nil, tt.err
				},
			}
			ts := newTestServer(engine)
			defer ts.Close()

			resp := postJSON(t, ts.URL+"/quotes", validQuoteBody())
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var envelope struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
			assert.Equal(t, string(errs.CodeOf(tt.err)), envelope.Error.Code)
		})
	}
}

// ==========================
// POST /quotes/{id}/filters
// ==========================

func TestApplyFilters(t *testing.T) {
	engine := &fakeEngine{}
	ts := newTestServer(engine)
	defer ts.Close()

	body := []byte(`{"filters":{"metalLevel":"silver","onMarket":true}}`)
	resp := postJSON(t, ts.URL+"/quotes/q-99/filters", body)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "q-99", engine.lastQuoteID)
	assert.Equal(t, models.MetalSilver, engine.lastFilters.MetalLevel)

	var view models.FilteredQuoteView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "q-99", view.QuoteID)
}

func TestApplyFiltersQuoteNotFound(t *testing.T) {
	engine := &fakeEngine{
		applyFunc: func(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error) {
			return nil, errs.NewQuoteNotFoundError(quoteID)
		},
	}
	ts := newTestServer(engine)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/quotes/missing/filters", []byte(`{"filters":{}}`))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplyFiltersQuoteExpired(t *testing.T) {
	engine := &fakeEngine{
		applyFunc: func(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error) {
			return nil, errs.NewQuoteExpiredError(quoteID)
		},
	}
	ts := newTestServer(engine)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/quotes/q-old/filters", []byte(`{"filters":{}}`))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

// ==========================
// POST /admin/groups/{id}/invalidate
// ==========================

func TestInvalidateGroup(t *testing.T) {
	engine := &fakeEngine{}
	ts := newTestServer(engine)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/admin/groups/grp-7/invalidate", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "grp-7", engine.lastGroupID)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "grp-7", out["groupId"])
	assert.NotEmpty(t, out["invalidatedAt"])
}

func TestInvalidateGroupCacheError(t *testing.T) {
	engine := &fakeEngine{
		invalidateFunc: func(ctx context.Context, groupID string) error {
			return errs.NewCacheUnavailableError(errors.New("redis down"))
		},
	}
	ts := newTestServer(engine)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/admin/groups/grp-7/invalidate", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
