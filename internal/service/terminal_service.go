package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
)

// TerminalService routes terminal requests to per-terminal scan sessions.
// A terminal that switches merchant starts over with a fresh session, but
// only once the current session has no call in flight.
type TerminalService struct {
	backend   BackendInterface
	validator *validator.Validate
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*ScanSession
}

// NewTerminalService creates a new TerminalService backed by the given platform client.
func NewTerminalService(b BackendInterface, v *validator.Validate) *TerminalService {
	return newTerminalService(b, v, time.Now)
}

func newTerminalService(b BackendInterface, v *validator.Validate, now func() time.Time) *TerminalService {
	return &TerminalService{
		backend:   b,
		validator: v,
		now:       now,
		sessions:  make(map[string]*ScanSession),
	}
}

// Scan processes a scanned code on the terminal's session.
func (s *TerminalService) Scan(ctx context.Context, terminalID, merchantID, code string) (*model.SessionSnapshot, error) {
	return s.withSession(terminalID, merchantID, func(sess *ScanSession) (*model.SessionSnapshot, error) {
		return sess.Scan(ctx, code)
	})
}

// ConfirmWash records a wash for the customer currently shown on the terminal.
func (s *TerminalService) ConfirmWash(ctx context.Context, terminalID, merchantID string, details model.WashSubmission) (*model.SessionSnapshot, error) {
	return s.withSession(terminalID, merchantID, func(sess *ScanSession) (*model.SessionSnapshot, error) {
		return sess.ConfirmWash(ctx, details)
	})
}

// CancelWash closes the terminal's wash form.
func (s *TerminalService) CancelWash(terminalID, merchantID string) (*model.SessionSnapshot, error) {
	return s.withSession(terminalID, merchantID, (*ScanSession).CancelWash)
}

// RedeemReward claims the reward currently shown on the terminal.
func (s *TerminalService) RedeemReward(ctx context.Context, terminalID, merchantID string) (*model.SessionSnapshot, error) {
	return s.withSession(terminalID, merchantID, func(sess *ScanSession) (*model.SessionSnapshot, error) {
		return sess.RedeemReward(ctx)
	})
}

// Reset returns the terminal's session to idle.
func (s *TerminalService) Reset(terminalID, merchantID string) (*model.SessionSnapshot, error) {
	return s.withSession(terminalID, merchantID, (*ScanSession).Reset)
}

// Snapshot returns the terminal's session state as seen by merchantID.
// A terminal holding another merchant's session reports idle and keeps
// that session untouched.
func (s *TerminalService) Snapshot(terminalID, merchantID string) *model.SessionSnapshot {
	s.mu.Lock()
	sess, ok := s.sessions[terminalID]
	s.mu.Unlock()

	if !ok || sess.MerchantID() != merchantID {
		return &model.SessionSnapshot{
			TerminalID: terminalID,
			MerchantID: merchantID,
			State:      model.SessionIdle,
		}
	}
	return sess.Snapshot()
}

// withSession runs fn on the terminal's session for merchantID. A session
// retired by a concurrent merchant switch is looked up again.
func (s *TerminalService) withSession(terminalID, merchantID string, fn func(*ScanSession) (*model.SessionSnapshot, error)) (*model.SessionSnapshot, error) {
	for {
		sess, err := s.session(terminalID, merchantID)
		if err != nil {
			return nil, err
		}
		snap, err := fn(sess)
		if errors.Is(err, errSessionRetired) {
			continue
		}
		return snap, err
	}
}

func (s *TerminalService) session(terminalID, merchantID string) (*ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[terminalID]
	if ok && sess.MerchantID() == merchantID {
		return sess, nil
	}
	if ok && !sess.retire() {
		return nil, ErrSessionBusy
	}

	sess = newScanSession(terminalID, merchantID, s.backend, s.validator, s.now)
	s.sessions[terminalID] = sess
	return sess, nil
}
