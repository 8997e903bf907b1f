package model

// SessionState is the state of a terminal's scan session.
type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionScanning    SessionState = "scanning"
	SessionResultReady SessionState = "result_ready"
	SessionSubmitting  SessionState = "submitting"
)

// SessionSnapshot is a copy of a scan session's state returned to the
// presentation layer. At most one of Customer and Reward is set.
type SessionSnapshot struct {
	TerminalID   string              `json:"terminal_id"`
	MerchantID   string              `json:"merchant_id"`
	State        SessionState        `json:"state"`
	Customer     *CustomerScanResult `json:"customer,omitempty"`
	Reward       *RewardScanResult   `json:"reward,omitempty"`
	WashFormOpen bool                `json:"wash_form_open"`
	WashForm     WashSubmission      `json:"wash_form"`
	LastError    string              `json:"last_error,omitempty"`
}
