package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/backend"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/eligibility"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/metrics"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
	scanvalidator "github.com/fairyhunter13/carwash-scan-terminal/internal/validator"
)

// BackendInterface defines the loyalty platform operations a scan session uses.
type BackendInterface interface {
	ResolveCustomerByCode(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error)
	ResolveRewardByCode(ctx context.Context, merchantID, code string) (*model.RewardRecord, error)
	SubmitWash(ctx context.Context, rec model.WashRecord) error
	RedeemReward(ctx context.Context, merchantID, code string) error
}

// ScanSession holds the scan state of one terminal for one merchant.
//
// The mutex is never held across a backend call. While a call is in flight
// the state is scanning or submitting, and every mutating entry point
// returns ErrSessionBusy instead of touching the session.
type ScanSession struct {
	mu         sync.Mutex
	terminalID string
	merchantID string
	backend    BackendInterface
	validator  *validator.Validate
	now        func() time.Time

	state        model.SessionState
	customer     *model.CustomerScanResult
	reward       *model.RewardScanResult
	washFormOpen bool
	washForm     model.WashSubmission
	lastError    string
	retired      bool
}

// NewScanSession creates an idle session for terminalID scanning on behalf
// of merchantID.
func NewScanSession(terminalID, merchantID string, b BackendInterface, v *validator.Validate) *ScanSession {
	return newScanSession(terminalID, merchantID, b, v, time.Now)
}

func newScanSession(terminalID, merchantID string, b BackendInterface, v *validator.Validate, now func() time.Time) *ScanSession {
	return &ScanSession{
		terminalID: terminalID,
		merchantID: merchantID,
		backend:    b,
		validator:  v,
		now:        now,
		state:      model.SessionIdle,
	}
}

// MerchantID returns the merchant the session scans for.
func (s *ScanSession) MerchantID() string {
	return s.merchantID
}

// Scan processes one scanned code. Malformed codes produce an invalid result
// without contacting the platform. Platform failures are converted into
// result variants; the only error returned is ErrSessionBusy.
func (s *ScanSession) Scan(ctx context.Context, rawCode string) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil, errSessionRetired
	}
	if s.inFlight() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrSessionBusy
	}

	// Drop the previous result before anything else
	s.clearLocked()

	code := strings.TrimSpace(rawCode)
	kind := scanvalidator.KindOf(code)
	if kind == model.CodeKindInvalid {
		s.customer = invalidCustomerResult(code)
		s.state = model.SessionResultReady
		snap := s.snapshotLocked()
		s.mu.Unlock()

		metrics.RecordScanOutcome(string(kind), string(model.CustomerScanInvalid))
		log.Warn().
			Str("terminal_id", s.terminalID).
			Str("merchant_id", s.merchantID).
			Msg("rejected malformed scan code")
		return snap, nil
	}

	s.state = model.SessionScanning
	s.mu.Unlock()

	var (
		customer *model.CustomerScanResult
		reward   *model.RewardScanResult
		status   string
	)
	if kind == model.CodeKindReward {
		reward = s.lookupReward(ctx, code)
		status = string(reward.Status)
	} else {
		customer = s.lookupCustomer(ctx, code)
		status = string(customer.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = model.SessionResultReady
	s.customer = customer
	s.reward = reward
	if customer != nil && customer.Status == model.CustomerScanSuccess {
		s.washForm.CarPlateNumber = customer.CarPlateNumber
		s.washFormOpen = customer.CanAddWash
	}

	metrics.RecordScanOutcome(string(kind), status)
	log.Info().
		Str("terminal_id", s.terminalID).
		Str("merchant_id", s.merchantID).
		Str("kind", string(kind)).
		Str("status", status).
		Msg("scan processed")

	return s.snapshotLocked(), nil
}

// ConfirmWash records a wash for the scanned customer. The wash form is kept
// when validation or submission fails so the operator can retry; counters
// change only after the platform confirms the wash.
func (s *ScanSession) ConfirmWash(ctx context.Context, details model.WashSubmission) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil, errSessionRetired
	}
	if s.inFlight() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrSessionBusy
	}
	if s.customer == nil || s.customer.Status != model.CustomerScanSuccess {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrNoCustomerResult
	}
	if !s.customer.CanAddWash {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrWashNotAllowed
	}

	s.washForm = details
	s.washFormOpen = true
	if err := s.validator.Struct(details); err != nil {
		s.lastError = "service name is required and price cannot be negative"
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: %w", ErrInvalidWash, err)
	}

	plate := strings.TrimSpace(details.CarPlateNumber)
	if plate == "" {
		plate = s.customer.CarPlateNumber
	}
	rec := model.WashRecord{
		CustomerID:     s.customer.CustomerID,
		CustomerCode:   s.customer.CustomerCode,
		MerchantID:     s.merchantID,
		ServiceName:    strings.TrimSpace(details.ServiceName),
		Price:          details.Price,
		CarPlateNumber: plate,
		Notes:          details.Notes,
	}
	s.state = model.SessionSubmitting
	s.lastError = ""
	s.mu.Unlock()

	err := s.backend.SubmitWash(ctx, rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.SessionResultReady

	if err != nil {
		s.lastError = backend.ErrorMessage(err, "failed to record wash")
		log.Error().
			Err(err).
			Str("terminal_id", s.terminalID).
			Str("merchant_id", s.merchantID).
			Str("customer_id", rec.CustomerID).
			Msg("failed to record wash")
		return s.snapshotLocked(), fmt.Errorf("%w: %w", ErrWashFailed, err)
	}

	c := s.customer
	c.CurrentWashes++
	c.Progress = eligibility.ProgressPercent(c.CurrentWashes, c.WashesRequired)
	c.RewardEarned = eligibility.RewardEarned(c.CurrentWashes, c.WashesRequired)
	c.CanAddWash = false
	c.LastWashDate = s.now().Format(time.RFC3339)
	c.Message = "Wash recorded"
	if c.RewardEarned {
		c.Message = "Wash recorded. Customer has earned a reward"
	}

	s.washForm = model.WashSubmission{}
	s.washFormOpen = false

	metrics.WashesRecorded.Inc()
	log.Info().
		Str("terminal_id", s.terminalID).
		Str("merchant_id", s.merchantID).
		Str("customer_id", rec.CustomerID).
		Int("current_washes", c.CurrentWashes).
		Bool("reward_earned", c.RewardEarned).
		Msg("wash recorded")

	return s.snapshotLocked(), nil
}

// CancelWash clears and closes the wash form.
func (s *ScanSession) CancelWash() (*model.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return nil, errSessionRetired
	}
	if s.inFlight() {
		return s.snapshotLocked(), ErrSessionBusy
	}
	s.washForm = model.WashSubmission{}
	s.washFormOpen = false
	s.lastError = ""
	return s.snapshotLocked(), nil
}

// RedeemReward claims the scanned reward. Redeeming an already claimed
// reward is a no-op that never reaches the platform.
func (s *ScanSession) RedeemReward(ctx context.Context) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil, errSessionRetired
	}
	if s.inFlight() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrSessionBusy
	}
	if s.reward == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrNoRewardResult
	}
	switch s.reward.Status {
	case model.RewardScanClaimed:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	case model.RewardScanSuccess:
	default:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrRewardNotRedeemable
	}

	code := s.reward.RewardCode
	s.state = model.SessionSubmitting
	s.lastError = ""
	s.mu.Unlock()

	err := s.backend.RedeemReward(ctx, s.merchantID, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.SessionResultReady

	if err != nil {
		s.lastError = backend.ErrorMessage(err, "failed to redeem reward")
		log.Error().
			Err(err).
			Str("terminal_id", s.terminalID).
			Str("merchant_id", s.merchantID).
			Msg("failed to redeem reward")
		return s.snapshotLocked(), fmt.Errorf("%w: %w", ErrRedeemFailed, err)
	}

	r := s.reward
	r.Status = model.RewardScanClaimed
	r.IsAlreadyClaimed = true
	r.Title = "Reward redeemed"
	r.Message = "Reward redeemed successfully"

	metrics.RewardsRedeemed.Inc()
	log.Info().
		Str("terminal_id", s.terminalID).
		Str("merchant_id", s.merchantID).
		Str("reward_title", r.RewardTitle).
		Msg("reward redeemed")

	return s.snapshotLocked(), nil
}

// Reset returns the session to idle, dropping results and the wash form.
func (s *ScanSession) Reset() (*model.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return nil, errSessionRetired
	}
	if s.inFlight() {
		return s.snapshotLocked(), ErrSessionBusy
	}
	s.clearLocked()
	s.state = model.SessionIdle
	return s.snapshotLocked(), nil
}

// Snapshot returns a copy of the current session state.
func (s *ScanSession) Snapshot() *model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// retire marks the session as replaced so no further call can start on it.
// It refuses while a scan or submission is in flight.
func (s *ScanSession) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight() {
		return false
	}
	s.retired = true
	return true
}

func (s *ScanSession) inFlight() bool {
	return s.state == model.SessionScanning || s.state == model.SessionSubmitting
}

func (s *ScanSession) clearLocked() {
	s.customer = nil
	s.reward = nil
	s.washForm = model.WashSubmission{}
	s.washFormOpen = false
	s.lastError = ""
}

func (s *ScanSession) snapshotLocked() *model.SessionSnapshot {
	snap := &model.SessionSnapshot{
		TerminalID:   s.terminalID,
		MerchantID:   s.merchantID,
		State:        s.state,
		WashFormOpen: s.washFormOpen,
		WashForm:     s.washForm,
		LastError:    s.lastError,
	}
	if s.customer != nil {
		c := *s.customer
		snap.Customer = &c
	}
	if s.reward != nil {
		r := *s.reward
		snap.Reward = &r
	}
	return snap
}

func (s *ScanSession) lookupCustomer(ctx context.Context, code string) *model.CustomerScanResult {
	rec, err := s.backend.ResolveCustomerByCode(ctx, s.merchantID, code)
	if err != nil {
		var notLinked *backend.NotLinkedError
		if errors.As(err, &notLinked) {
			return notLinkedCustomerResult(code, notLinked)
		}
		log.Warn().
			Err(err).
			Str("terminal_id", s.terminalID).
			Str("merchant_id", s.merchantID).
			Msg("customer lookup failed")
		return failedCustomerResult(code, backend.ErrorMessage(err, "failed to process QR code"))
	}
	if rec == nil {
		return failedCustomerResult(code, "failed to process QR code")
	}

	required := rec.WashesRequired
	if required == 0 {
		required = model.DefaultWashesRequired
	}
	daysLeft := rec.DaysLeft
	if daysLeft == 0 {
		daysLeft = model.DefaultDaysLeft
	}

	result := &model.CustomerScanResult{
		Status:         model.CustomerScanSuccess,
		Title:          "Customer recognised",
		CustomerID:     rec.ID,
		CustomerCode:   code,
		CustomerName:   orDefault(rec.Name, "Customer"),
		CustomerPhone:  orDefault(rec.Phone, "-"),
		CustomerPhoto:  rec.Photo,
		CarPlateNumber: rec.CarPlateNumber,
		CurrentWashes:  rec.CurrentWashes,
		WashesRequired: required,
		Progress:       eligibility.ProgressPercent(rec.CurrentWashes, required),
		DaysLeft:       daysLeft,
		RewardEarned:   eligibility.RewardEarned(rec.CurrentWashes, required),
		CanAddWash:     eligibility.CanAddWashToday(rec.LastWashDate, s.now()),
		LastWashDate:   rec.LastWashDate,
	}
	switch {
	case result.RewardEarned:
		result.Message = "Customer has earned a reward"
	case !result.CanAddWash:
		result.Message = "A wash has already been recorded for this customer today"
	}
	return result
}

func (s *ScanSession) lookupReward(ctx context.Context, code string) *model.RewardScanResult {
	rec, err := s.backend.ResolveRewardByCode(ctx, s.merchantID, code)
	if err != nil || rec == nil {
		if err != nil {
			log.Warn().
				Err(err).
				Str("terminal_id", s.terminalID).
				Str("merchant_id", s.merchantID).
				Msg("reward lookup failed")
		}
		return &model.RewardScanResult{
			Status:        model.RewardScanError,
			Title:         "Reward check failed",
			Message:       backend.ErrorMessage(err, "failed to validate reward"),
			RewardCode:    code,
			CustomerName:  "Unknown",
			CustomerPhone: "-",
			RewardTitle:   "Reward",
			RewardType:    model.DefaultRewardType,
		}
	}

	status := rewardStatus(rec)
	return &model.RewardScanResult{
		Status:           status,
		Title:            orDefault(rec.Title, rewardTitles[status]),
		Message:          rec.Message,
		RewardCode:       code,
		CustomerName:     orDefault(rec.CustomerName, "Unknown"),
		CustomerPhone:    orDefault(rec.CustomerPhone, "-"),
		RewardTitle:      orDefault(rec.RewardTitle, "Reward"),
		RewardType:       orDefault(rec.RewardType, model.DefaultRewardType),
		RewardValue:      rec.RewardValue,
		RewardExpiresAt:  rec.RewardExpiresAt,
		IsAlreadyClaimed: rec.IsAlreadyClaimed,
		IsExpired:        rec.IsExpired,
	}
}

var rewardTitles = map[model.RewardScanStatus]string{
	model.RewardScanSuccess: "Valid reward",
	model.RewardScanClaimed: "Reward already used",
	model.RewardScanExpired: "Reward expired",
	model.RewardScanError:   "Invalid reward",
}

// rewardStatus derives the outcome variant. A claim is permanent, so it
// outranks expiry, which outranks the validity flag.
func rewardStatus(rec *model.RewardRecord) model.RewardScanStatus {
	switch {
	case rec.IsAlreadyClaimed:
		return model.RewardScanClaimed
	case rec.IsExpired:
		return model.RewardScanExpired
	case rec.Valid:
		return model.RewardScanSuccess
	default:
		return model.RewardScanError
	}
}

func invalidCustomerResult(code string) *model.CustomerScanResult {
	return &model.CustomerScanResult{
		Status:         model.CustomerScanInvalid,
		Title:          "Invalid code",
		Message:        "QR code format is not valid",
		CustomerCode:   code,
		CustomerName:   "Unknown",
		CustomerPhone:  "-",
		WashesRequired: model.DefaultWashesRequired,
	}
}

func notLinkedCustomerResult(code string, err *backend.NotLinkedError) *model.CustomerScanResult {
	return &model.CustomerScanResult{
		Status:         model.CustomerScanNotLinked,
		Title:          "Customer not registered with this merchant",
		Message:        orDefault(err.Message, "This customer is not registered with your car wash. Add them from the customer list."),
		CustomerCode:   code,
		CustomerName:   orDefault(err.Customer.Name, "Customer"),
		CustomerPhone:  orDefault(err.Customer.Phone, "-"),
		CarPlateNumber: err.Customer.CarPlateNumber,
		WashesRequired: model.DefaultWashesRequired,
	}
}

func failedCustomerResult(code, message string) *model.CustomerScanResult {
	return &model.CustomerScanResult{
		Status:         model.CustomerScanError,
		Title:          "Scan failed",
		Message:        message,
		CustomerCode:   code,
		CustomerName:   "Unknown",
		CustomerPhone:  "-",
		WashesRequired: model.DefaultWashesRequired,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
