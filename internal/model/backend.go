package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// APIResponse is the envelope returned by every loyalty platform endpoint.
type APIResponse[T any] struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Data      T        `json:"data"`
	Errors    []string `json:"errors"`
	ErrorCode string   `json:"errorCode,omitempty"`
}

// CustomerIdentity identifies a customer without any loyalty state.
type CustomerIdentity struct {
	Name           string
	Phone          string
	CarPlateNumber string
}

// CustomerRecord is a customer's loyalty card at a merchant as resolved by
// the backend. Zero counters mean the backend did not send them.
type CustomerRecord struct {
	ID             string
	Name           string
	Phone          string
	Photo          string
	CarPlateNumber string
	CurrentWashes  int
	WashesRequired int
	DaysLeft       int
	LastWashDate   string
}

// RewardRecord is a reward's validation result as resolved by the backend.
type RewardRecord struct {
	Valid            bool
	IsAlreadyClaimed bool
	IsExpired        bool
	Title            string
	Message          string
	CustomerName     string
	CustomerPhone    string
	RewardTitle      string
	RewardType       string
	RewardValue      decimal.Decimal
	RewardExpiresAt  *time.Time
}
