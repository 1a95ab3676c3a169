package affordability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeAPI struct {
	mu            sync.Mutex
	submitCalls   int32
	getCalls      int32
	submitStatus  models.CalculationStatus
	statusByCall  []models.CalculationStatus // consumed per Get call
	finalStatus   models.CalculationStatus
	members       []models.MemberCompliance
	summary       models.AffordabilitySummary
	submitErr     error
	getErr        error
}

func (f *fakeAPI) Submit(ctx context.Context, groupExternalID string, req SubmitRequest) (*SubmitResponse, error) {
	atomic.AddInt32(&f.submitCalls, 1)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &SubmitResponse{CalculationID: "calc-1", Status: f.submitStatus}, nil
}

func (f *fakeAPI) Get(ctx context.Context, calculationID string) (*CalculationResult, error) {
	n := atomic.AddInt32(&f.getCalls, 1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.finalStatus
	if int(n) <= len(f.statusByCall) {
		status = f.statusByCall[n-1]
	}
	return &CalculationResult{
		Status:               status,
		OverallAffordability: "affordable",
		Summary:              f.summary,
	}, nil
}

func (f *fakeAPI) GetMembers(ctx context.Context, calculationID string) ([]models.MemberCompliance, error) {
	return f.members, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) CalculationCompleted(ctx context.Context, group *models.Group, calc *models.AffordabilityCalculation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, group.ID)
}

func testGroup() *models.Group {
	return &models.Group{
		ID:            "group-1",
		ExternalID:    "ext-1",
		EffectiveDate: "2024-07-01",
		PlanYear:      2024,
		Members:       []models.Member{{ID: "m1", Zip: "80203"}},
	}
}

func compliance() []models.MemberCompliance {
	return []models.MemberCompliance{{MemberID: "m1", Affordable: true, SafeHarbor: "rate_of_pay"}}
}

func summary() models.AffordabilitySummary {
	return models.AffordabilitySummary{TotalMembers: 1, AffordableMembers: 1, Overall: "affordable"}
}

func newTestCoordinator(t *testing.T, api API, notifier Notifier) *Coordinator {
	return NewCoordinator(api, Options{
		SyncWait:          10 * time.Millisecond,
		BackgroundRetries: 3,
		RetryInterval:     10 * time.Millisecond,
	}, notifier, logger.NewTestLogger(t))
}

func TestCoordinator_ImmediateCompletion(t *testing.T) {
	api := &fakeAPI{
		submitStatus: models.CalculationCompleted,
		finalStatus:  models.CalculationCompleted,
		members:      compliance(),
		summary:      summary(),
	}
	coord := newTestCoordinator(t, api, nil)

	calc, err := coord.Ensure(context.Background(), testGroup(), true)
	require.NoError(t, err)

	assert.Equal(t, models.CalculationCompleted, calc.Status)
	assert.Len(t, calc.PerMember, 1)
	assert.Equal(t, 1, calc.Summary.AffordableMembers)
	assert.LessOrEqual(t, calc.Summary.AffordableMembers, calc.Summary.TotalMembers)
}

func TestCoordinator_SyncWaitThenFetch(t *testing.T) {
	// Pending at submit, completed on the post-wait fetch.
	api := &fakeAPI{
		submitStatus: models.CalculationPending,
		finalStatus:  models.CalculationCompleted,
		members:      compliance(),
		summary:      summary(),
	}
	coord := newTestCoordinator(t, api, nil)

	calc, err := coord.Ensure(context.Background(), testGroup(), true)
	require.NoError(t, err)

	assert.Equal(t, models.CalculationCompleted, calc.Status)
}

func TestCoordinator_FallsBackToBackgroundPolling(t *testing.T) {
	// Still pending after the sync window: the caller gets a pending
	// snapshot and a background task finishes the job.
	api := &fakeAPI{
		submitStatus: models.CalculationPending,
		statusByCall: []models.CalculationStatus{models.CalculationPending},
		finalStatus:  models.CalculationCompleted,
		members:      compliance(),
		summary:      summary(),
	}
	notifier := &recordingNotifier{}
	coord := newTestCoordinator(t, api, notifier)

	calc, err := coord.Ensure(context.Background(), testGroup(), true)
	require.NoError(t, err)
	assert.Equal(t, models.CalculationPending, calc.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, "group-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalculationCompleted, final.Status)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"group-1"}, notifier.calls)
}

func TestCoordinator_NoWaitGoesStraightToBackground(t *testing.T) {
	api := &fakeAPI{
		submitStatus: models.CalculationPending,
		finalStatus:  models.CalculationCompleted,
		members:      compliance(),
		summary:      summary(),
	}
	coord := newTestCoordinator(t, api, nil)

	calc, err := coord.Ensure(context.Background(), testGroup(), false)
	require.NoError(t, err)
	assert.Equal(t, models.CalculationPending, calc.Status)
	// The sync fetch was skipped entirely.
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.getCalls))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, "group-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalculationCompleted, final.Status)
}

func TestCoordinator_SubmitsOncePerGroup(t *testing.T) {
	api := &fakeAPI{
		submitStatus: models.CalculationCompleted,
		finalStatus:  models.CalculationCompleted,
		members:      compliance(),
		summary:      summary(),
	}
	coord := newTestCoordinator(t, api, nil)

	group := testGroup()
	_, err := coord.Ensure(context.Background(), group, true)
	require.NoError(t, err)
	_, err = coord.Ensure(context.Background(), group, true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.submitCalls))
}

func TestCoordinator_BackgroundRetriesExhausted(t *testing.T) {
	api := &fakeAPI{
		submitStatus: models.CalculationPending,
		finalStatus:  models.CalculationPending,
	}
	coord := newTestCoordinator(t, api, nil)

	calc, err := coord.Ensure(context.Background(), testGroup(), true)
	require.NoError(t, err)
	assert.Equal(t, models.CalculationPending, calc.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, "group-1")
	require.NoError(t, err)
	assert.Equal(t, models.CalculationFailed, final.Status)
	assert.Contains(t, final.FailureReason, "exhausted")
}

func TestCoordinator_TrialLimitIsFatal(t *testing.T) {
	api := &fakeAPI{submitErr: errs.NewTrialLimitExceededError(5, 5)}
	coord := newTestCoordinator(t, api, nil)

	_, err := coord.Ensure(context.Background(), testGroup(), true)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeTrialLimitExceeded, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err))
}

func TestCoordinator_CancelStopsBackgroundPolling(t *testing.T) {
	api := &fakeAPI{
		submitStatus: models.CalculationPending,
		finalStatus:  models.CalculationPending,
	}
	coord := newTestCoordinator(t, api, nil)

	_, err := coord.Ensure(context.Background(), testGroup(), false)
	require.NoError(t, err)

	coord.Cancel("group-1")
	before := atomic.LoadInt32(&api.getCalls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&api.getCalls))

	snapshot, ok := coord.Result("group-1")
	require.True(t, ok)
	assert.Equal(t, models.CalculationPending, snapshot.Status)
}
