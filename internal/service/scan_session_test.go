package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/backend"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
	scanvalidator "github.com/fairyhunter13/carwash-scan-terminal/internal/validator"
)

// mockBackend is a mock implementation of BackendInterface.
type mockBackend struct {
	resolveCustomerFn func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error)
	resolveRewardFn   func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error)
	submitWashFn      func(ctx context.Context, rec model.WashRecord) error
	redeemRewardFn    func(ctx context.Context, merchantID, code string) error

	calls atomic.Int32
}

func (m *mockBackend) ResolveCustomerByCode(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
	m.calls.Add(1)
	if m.resolveCustomerFn != nil {
		return m.resolveCustomerFn(ctx, merchantID, code)
	}
	return nil, errors.New("unexpected customer lookup")
}

func (m *mockBackend) ResolveRewardByCode(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
	m.calls.Add(1)
	if m.resolveRewardFn != nil {
		return m.resolveRewardFn(ctx, merchantID, code)
	}
	return nil, errors.New("unexpected reward lookup")
}

func (m *mockBackend) SubmitWash(ctx context.Context, rec model.WashRecord) error {
	m.calls.Add(1)
	if m.submitWashFn != nil {
		return m.submitWashFn(ctx, rec)
	}
	return nil
}

func (m *mockBackend) RedeemReward(ctx context.Context, merchantID, code string) error {
	m.calls.Add(1)
	if m.redeemRewardFn != nil {
		return m.redeemRewardFn(ctx, merchantID, code)
	}
	return nil
}

var (
	testZone = time.FixedZone("AST", 3*60*60)
	testNow  = time.Date(2026, 10, 18, 14, 30, 0, 0, testZone)
)

func fixedClock() time.Time {
	return testNow
}

func newTestSession(b BackendInterface) *ScanSession {
	return newScanSession("lane-1", "m-1", b, scanvalidator.New(), fixedClock)
}

func nineOfTen(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
	return &model.CustomerRecord{
		ID:             "c-42",
		Name:           "Ali",
		Phone:          "0551234567",
		CarPlateNumber: "ABC-123",
		CurrentWashes:  9,
		WashesRequired: 10,
		DaysLeft:       12,
		LastWashDate:   "2026-10-17T09:00:00+03:00",
	}, nil
}

func TestScanSession_Scan_CustomerSuccess(t *testing.T) {
	var gotMerchant, gotCode string
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			gotMerchant, gotCode = merchantID, code
			return nineOfTen(ctx, merchantID, code)
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "  DP-CUST-0001 ")

	require.NoError(t, err)
	assert.Equal(t, "m-1", gotMerchant)
	assert.Equal(t, "DP-CUST-0001", gotCode, "code should be trimmed")
	assert.Equal(t, model.SessionResultReady, snap.State)
	assert.Nil(t, snap.Reward)
	require.NotNil(t, snap.Customer)

	c := snap.Customer
	assert.Equal(t, model.CustomerScanSuccess, c.Status)
	assert.Equal(t, "c-42", c.CustomerID)
	assert.Equal(t, "DP-CUST-0001", c.CustomerCode)
	assert.Equal(t, 9, c.CurrentWashes)
	assert.Equal(t, 10, c.WashesRequired)
	assert.Equal(t, float64(90), c.Progress)
	assert.Equal(t, 12, c.DaysLeft)
	assert.False(t, c.RewardEarned)
	assert.True(t, c.CanAddWash)

	assert.True(t, snap.WashFormOpen)
	assert.Equal(t, "ABC-123", snap.WashForm.CarPlateNumber, "plate should be prefilled")
}

func TestScanSession_Scan_AppliesDefaults(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			return &model.CustomerRecord{ID: "c-1", CurrentWashes: 3}, nil
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "CUST-7")

	require.NoError(t, err)
	c := snap.Customer
	assert.Equal(t, model.DefaultWashesRequired, c.WashesRequired)
	assert.Equal(t, model.DefaultDaysLeft, c.DaysLeft)
	assert.Equal(t, float64(30), c.Progress)
	assert.Equal(t, "Customer", c.CustomerName)
	assert.Equal(t, "-", c.CustomerPhone)
	assert.True(t, c.CanAddWash, "no last wash means a wash is allowed")
}

func TestScanSession_Scan_AlreadyWashedToday(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			rec, _ := nineOfTen(ctx, merchantID, code)
			rec.LastWashDate = "2026-10-18T08:00:00+03:00"
			return rec, nil
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "DP-CUST-0001")

	require.NoError(t, err)
	assert.Equal(t, model.CustomerScanSuccess, snap.Customer.Status)
	assert.False(t, snap.Customer.CanAddWash)
	assert.False(t, snap.WashFormOpen)
	assert.NotEmpty(t, snap.Customer.Message)
}

func TestScanSession_Scan_InvalidCodes(t *testing.T) {
	testCases := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too_short", "ab12"},
		{"symbols", "hello world!"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mb := &mockBackend{}
			sess := newTestSession(mb)

			snap, err := sess.Scan(context.Background(), tc.code)

			require.NoError(t, err)
			assert.Equal(t, int32(0), mb.calls.Load(), "malformed codes must not reach the platform")
			assert.Equal(t, model.SessionResultReady, snap.State)
			require.NotNil(t, snap.Customer)
			assert.Equal(t, model.CustomerScanInvalid, snap.Customer.Status)
			assert.NotEmpty(t, snap.Customer.Message)
			assert.False(t, snap.Customer.CanAddWash)
			assert.False(t, snap.WashFormOpen)
		})
	}
}

func TestScanSession_Scan_NotLinked(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			return nil, &backend.NotLinkedError{
				Customer: model.CustomerIdentity{Name: "Sara", Phone: "0559999999"},
				Message:  "Customer is not registered with this merchant",
			}
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "CUST-1234")

	require.NoError(t, err)
	c := snap.Customer
	assert.Equal(t, model.CustomerScanNotLinked, c.Status)
	assert.Equal(t, "Sara", c.CustomerName)
	assert.Equal(t, "0559999999", c.CustomerPhone)
	assert.Equal(t, "Customer is not registered with this merchant", c.Message)
	assert.Equal(t, 0, c.CurrentWashes)
	assert.False(t, c.CanAddWash)
	assert.False(t, snap.WashFormOpen)
}

func TestScanSession_Scan_CustomerLookupFailure(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		message string
	}{
		{"platform_message", &backend.APIError{StatusCode: 404, Message: "Invalid QR code"}, "Invalid QR code"},
		{"transport", errors.New("dial tcp: connection refused"), "failed to process QR code"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mb := &mockBackend{
				resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
					return nil, tc.err
				},
			}
			sess := newTestSession(mb)

			snap, err := sess.Scan(context.Background(), "CUST-1234")

			require.NoError(t, err, "lookup failures become result cards")
			assert.Equal(t, model.CustomerScanError, snap.Customer.Status)
			assert.Equal(t, tc.message, snap.Customer.Message)
			assert.False(t, snap.Customer.CanAddWash)
			assert.Equal(t, model.SessionResultReady, snap.State)
		})
	}
}

func TestScanSession_Scan_RewardStatusPrecedence(t *testing.T) {
	testCases := []struct {
		name string
		rec  model.RewardRecord
		want model.RewardScanStatus
	}{
		{"valid", model.RewardRecord{Valid: true}, model.RewardScanSuccess},
		{"claimed", model.RewardRecord{IsAlreadyClaimed: true}, model.RewardScanClaimed},
		{"expired", model.RewardRecord{IsExpired: true}, model.RewardScanExpired},
		{"claimed_and_expired", model.RewardRecord{IsAlreadyClaimed: true, IsExpired: true}, model.RewardScanClaimed},
		{"claimed_and_valid", model.RewardRecord{Valid: true, IsAlreadyClaimed: true}, model.RewardScanClaimed},
		{"expired_and_valid", model.RewardRecord{Valid: true, IsExpired: true}, model.RewardScanExpired},
		{"nothing", model.RewardRecord{}, model.RewardScanError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mb := &mockBackend{
				resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
					rec := tc.rec
					return &rec, nil
				},
			}
			sess := newTestSession(mb)

			snap, err := sess.Scan(context.Background(), "REWARD-abc123")

			require.NoError(t, err)
			assert.Nil(t, snap.Customer)
			require.NotNil(t, snap.Reward)
			assert.Equal(t, tc.want, snap.Reward.Status)
			assert.Equal(t, "REWARD-abc123", snap.Reward.RewardCode)
			assert.NotEmpty(t, snap.Reward.Title)
		})
	}
}

func TestScanSession_Scan_RewardLookupFailure(t *testing.T) {
	mb := &mockBackend{
		resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
			return nil, errors.New("timeout")
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "REWARD-xyz")

	require.NoError(t, err)
	assert.Equal(t, model.RewardScanError, snap.Reward.Status)
	assert.Equal(t, "failed to validate reward", snap.Reward.Message)
	assert.Equal(t, model.DefaultRewardType, snap.Reward.RewardType)
}

func TestScanSession_Scan_ReplacesPreviousResult(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: nineOfTen,
		resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
			return &model.RewardRecord{Valid: true}, nil
		},
	}
	sess := newTestSession(mb)

	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	snap, err := sess.Scan(context.Background(), "REWARD-abc123")
	require.NoError(t, err)
	assert.Nil(t, snap.Customer)
	assert.NotNil(t, snap.Reward)
	assert.False(t, snap.WashFormOpen)
	assert.Equal(t, model.WashSubmission{}, snap.WashForm)

	snap, err = sess.Scan(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, snap.Reward)
	assert.Equal(t, model.CustomerScanInvalid, snap.Customer.Status)
}

func TestScanSession_ConfirmWash_Success(t *testing.T) {
	var captured model.WashRecord
	mb := &mockBackend{
		resolveCustomerFn: nineOfTen,
		submitWashFn: func(ctx context.Context, rec model.WashRecord) error {
			captured = rec
			return nil
		},
	}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	snap, err := sess.ConfirmWash(context.Background(), model.WashSubmission{
		ServiceName: " Full wash ",
		Price:       decimal.RequireFromString("45.50"),
		Notes:       "interior too",
	})

	require.NoError(t, err)
	assert.Equal(t, "c-42", captured.CustomerID)
	assert.Equal(t, "DP-CUST-0001", captured.CustomerCode)
	assert.Equal(t, "m-1", captured.MerchantID)
	assert.Equal(t, "Full wash", captured.ServiceName)
	assert.True(t, decimal.RequireFromString("45.5").Equal(captured.Price))
	assert.Equal(t, "ABC-123", captured.CarPlateNumber, "blank plate falls back to the customer's plate")
	assert.Equal(t, "interior too", captured.Notes)

	c := snap.Customer
	assert.Equal(t, 10, c.CurrentWashes)
	assert.Equal(t, float64(100), c.Progress)
	assert.True(t, c.RewardEarned)
	assert.False(t, c.CanAddWash)
	assert.Equal(t, testNow.Format(time.RFC3339), c.LastWashDate)
	assert.False(t, snap.WashFormOpen)
	assert.Equal(t, model.WashSubmission{}, snap.WashForm)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, model.SessionResultReady, snap.State)

	// One wash per customer per day
	_, err = sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Full wash"})
	assert.ErrorIs(t, err, ErrWashNotAllowed)
}

func TestScanSession_ConfirmWash_BackendFailureKeepsForm(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: nineOfTen,
		submitWashFn: func(ctx context.Context, rec model.WashRecord) error {
			return &backend.APIError{StatusCode: 500, Message: "Database unavailable"}
		},
	}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	details := model.WashSubmission{
		ServiceName:    "Basic wash",
		Price:          decimal.NewFromInt(20),
		CarPlateNumber: "XYZ-9",
	}
	snap, err := sess.ConfirmWash(context.Background(), details)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWashFailed)
	var apiErr *backend.APIError
	assert.ErrorAs(t, err, &apiErr)

	assert.Equal(t, "Database unavailable", snap.LastError)
	assert.True(t, snap.WashFormOpen)
	assert.Equal(t, "Basic wash", snap.WashForm.ServiceName)
	assert.Equal(t, "XYZ-9", snap.WashForm.CarPlateNumber)
	assert.Equal(t, 9, snap.Customer.CurrentWashes, "counters change only on success")
	assert.True(t, snap.Customer.CanAddWash)
	assert.Equal(t, model.SessionResultReady, snap.State)
}

func TestScanSession_ConfirmWash_InvalidDetails(t *testing.T) {
	testCases := []struct {
		name    string
		details model.WashSubmission
	}{
		{"missing_service", model.WashSubmission{Price: decimal.NewFromInt(10)}},
		{"blank_service", model.WashSubmission{ServiceName: "   ", Price: decimal.NewFromInt(10)}},
		{"negative_price", model.WashSubmission{ServiceName: "Basic", Price: decimal.NewFromInt(-1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mb := &mockBackend{resolveCustomerFn: nineOfTen}
			sess := newTestSession(mb)
			_, err := sess.Scan(context.Background(), "DP-CUST-0001")
			require.NoError(t, err)

			snap, err := sess.ConfirmWash(context.Background(), tc.details)

			assert.ErrorIs(t, err, ErrInvalidWash)
			assert.Equal(t, int32(1), mb.calls.Load(), "invalid details must not be submitted")
			assert.True(t, snap.WashFormOpen)
			assert.NotEmpty(t, snap.LastError)
			assert.Equal(t, 9, snap.Customer.CurrentWashes)
		})
	}
}

func TestScanSession_ConfirmWash_ZeroPriceAllowed(t *testing.T) {
	mb := &mockBackend{resolveCustomerFn: nineOfTen}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	_, err = sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Courtesy rinse"})

	assert.NoError(t, err)
}

func TestScanSession_ConfirmWash_WithoutCustomer(t *testing.T) {
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			return nil, &backend.NotLinkedError{}
		},
	}
	sess := newTestSession(mb)

	_, err := sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic"})
	assert.ErrorIs(t, err, ErrNoCustomerResult)

	_, err = sess.Scan(context.Background(), "CUST-1234")
	require.NoError(t, err)
	_, err = sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic"})
	assert.ErrorIs(t, err, ErrNoCustomerResult, "not-linked customers cannot get washes")
}

func TestScanSession_CancelWash(t *testing.T) {
	mb := &mockBackend{resolveCustomerFn: nineOfTen}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	snap, err := sess.CancelWash()

	require.NoError(t, err)
	assert.False(t, snap.WashFormOpen)
	assert.Equal(t, model.WashSubmission{}, snap.WashForm)
	assert.NotNil(t, snap.Customer, "cancel keeps the scan result")
	assert.True(t, snap.Customer.CanAddWash)
}

func TestScanSession_RedeemReward_ClaimedIsNoop(t *testing.T) {
	var redeemCalls atomic.Int32
	mb := &mockBackend{
		resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
			return &model.RewardRecord{Valid: true, IsAlreadyClaimed: true}, nil
		},
		redeemRewardFn: func(ctx context.Context, merchantID, code string) error {
			redeemCalls.Add(1)
			return nil
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "REWARD-abc123")
	require.NoError(t, err)
	require.Equal(t, model.RewardScanClaimed, snap.Reward.Status)

	snap, err = sess.RedeemReward(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(0), redeemCalls.Load())
	assert.Equal(t, model.RewardScanClaimed, snap.Reward.Status)
}

func TestScanSession_RedeemReward_Success(t *testing.T) {
	var gotCode string
	mb := &mockBackend{
		resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
			return &model.RewardRecord{Valid: true, RewardTitle: "Free wash"}, nil
		},
		redeemRewardFn: func(ctx context.Context, merchantID, code string) error {
			gotCode = code
			return nil
		},
	}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "REWARD-abc123")
	require.NoError(t, err)

	snap, err := sess.RedeemReward(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "REWARD-abc123", gotCode)
	assert.Equal(t, model.RewardScanClaimed, snap.Reward.Status)
	assert.True(t, snap.Reward.IsAlreadyClaimed)

	// A second redeem is a no-op
	_, err = sess.RedeemReward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), mb.calls.Load())
}

func TestScanSession_RedeemReward_Failure(t *testing.T) {
	mb := &mockBackend{
		resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
			return &model.RewardRecord{Valid: true}, nil
		},
		redeemRewardFn: func(ctx context.Context, merchantID, code string) error {
			return &backend.APIError{StatusCode: 409, Message: "Reward already redeemed"}
		},
	}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "REWARD-abc123")
	require.NoError(t, err)

	snap, err := sess.RedeemReward(context.Background())

	assert.ErrorIs(t, err, ErrRedeemFailed)
	assert.Equal(t, "Reward already redeemed", snap.LastError)
	assert.Equal(t, model.RewardScanSuccess, snap.Reward.Status)
}

func TestScanSession_RedeemReward_NotRedeemable(t *testing.T) {
	testCases := []struct {
		name string
		rec  *model.RewardRecord
		err  error
	}{
		{"expired", &model.RewardRecord{IsExpired: true}, nil},
		{"invalid", &model.RewardRecord{}, nil},
		{"lookup_failed", nil, errors.New("boom")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mb := &mockBackend{
				resolveRewardFn: func(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
					return tc.rec, tc.err
				},
			}
			sess := newTestSession(mb)
			_, err := sess.Scan(context.Background(), "REWARD-abc123")
			require.NoError(t, err)

			_, err = sess.RedeemReward(context.Background())

			assert.ErrorIs(t, err, ErrRewardNotRedeemable)
			assert.Equal(t, int32(1), mb.calls.Load())
		})
	}
}

func TestScanSession_RedeemReward_WithoutReward(t *testing.T) {
	sess := newTestSession(&mockBackend{})

	_, err := sess.RedeemReward(context.Background())

	assert.ErrorIs(t, err, ErrNoRewardResult)
}

func TestScanSession_BusyWhileSubmitting(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	mb := &mockBackend{
		resolveCustomerFn: nineOfTen,
		submitWashFn: func(ctx context.Context, rec model.WashRecord) error {
			close(entered)
			<-release
			return nil
		},
	}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic"})
		done <- err
	}()
	<-entered

	assert.Equal(t, model.SessionSubmitting, sess.Snapshot().State)

	_, err = sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic"})
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = sess.Scan(context.Background(), "DP-CUST-0002")
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = sess.Reset()
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = sess.CancelWash()
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-done)

	snap := sess.Snapshot()
	assert.Equal(t, model.SessionResultReady, snap.State)
	assert.Equal(t, 10, snap.Customer.CurrentWashes, "exactly one wash recorded")
}

func TestScanSession_BusyWhileScanning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			close(entered)
			<-release
			return nineOfTen(ctx, merchantID, code)
		},
	}
	sess := newTestSession(mb)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Scan(context.Background(), "DP-CUST-0001")
		done <- err
	}()
	<-entered

	snap, err := sess.Scan(context.Background(), "DP-CUST-0001")
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Equal(t, model.SessionScanning, snap.State)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), mb.calls.Load())
}

func TestScanSession_Reset(t *testing.T) {
	mb := &mockBackend{resolveCustomerFn: nineOfTen}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	snap, err := sess.Reset()

	require.NoError(t, err)
	assert.Equal(t, model.SessionIdle, snap.State)
	assert.Nil(t, snap.Customer)
	assert.Nil(t, snap.Reward)
	assert.False(t, snap.WashFormOpen)
	assert.Equal(t, "lane-1", snap.TerminalID)
	assert.Equal(t, "m-1", snap.MerchantID)
}

func TestScanSession_SnapshotIsCopy(t *testing.T) {
	mb := &mockBackend{resolveCustomerFn: nineOfTen}
	sess := newTestSession(mb)
	snap, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	snap.Customer.CurrentWashes = 99

	assert.Equal(t, 9, sess.Snapshot().Customer.CurrentWashes)
}

func TestScanSession_Retire(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			close(entered)
			<-release
			return nineOfTen(ctx, merchantID, code)
		},
	}
	sess := newTestSession(mb)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Scan(context.Background(), "DP-CUST-0001")
		done <- err
	}()
	<-entered

	assert.False(t, sess.retire(), "an in-flight session cannot be retired")

	close(release)
	require.NoError(t, <-done)

	assert.True(t, sess.retire())
	for _, op := range []func() (*model.SessionSnapshot, error){
		func() (*model.SessionSnapshot, error) { return sess.Scan(context.Background(), "DP-CUST-0001") },
		func() (*model.SessionSnapshot, error) { return sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic"}) },
		func() (*model.SessionSnapshot, error) { return sess.RedeemReward(context.Background()) },
		sess.CancelWash,
		sess.Reset,
	} {
		snap, err := op()
		assert.ErrorIs(t, err, errSessionRetired)
		assert.Nil(t, snap)
	}
	assert.Equal(t, int32(1), mb.calls.Load())
}

func TestScanSession_Scan_LowercaseRewardPrefixIsCustomerCode(t *testing.T) {
	var gotCode string
	mb := &mockBackend{
		resolveCustomerFn: func(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
			gotCode = code
			return nineOfTen(ctx, merchantID, code)
		},
	}
	sess := newTestSession(mb)

	snap, err := sess.Scan(context.Background(), "reward-xyz")

	require.NoError(t, err)
	assert.Equal(t, "reward-xyz", gotCode)
	assert.Nil(t, snap.Reward)
	require.NotNil(t, snap.Customer)
	assert.Equal(t, model.CustomerScanSuccess, snap.Customer.Status)
}

func TestScanSession_ConfirmWash_InvalidDetailsKeepValidationErrors(t *testing.T) {
	mb := &mockBackend{resolveCustomerFn: nineOfTen}
	sess := newTestSession(mb)
	_, err := sess.Scan(context.Background(), "DP-CUST-0001")
	require.NoError(t, err)

	_, err = sess.ConfirmWash(context.Background(), model.WashSubmission{ServiceName: "Basic", Price: decimal.NewFromInt(-5)})

	assert.ErrorIs(t, err, ErrInvalidWash)
	var ve validator.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Price", ve[0].Field())
}
