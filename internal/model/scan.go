package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CodeKind classifies a scanned code by its shape.
type CodeKind string

const (
	CodeKindInvalid  CodeKind = "invalid"
	CodeKindCustomer CodeKind = "customer"
	CodeKindReward   CodeKind = "reward"
)

// CustomerScanStatus is the outcome variant of a customer code scan.
type CustomerScanStatus string

const (
	CustomerScanSuccess   CustomerScanStatus = "success"
	CustomerScanNotLinked CustomerScanStatus = "not-linked"
	CustomerScanError     CustomerScanStatus = "error"
	CustomerScanInvalid   CustomerScanStatus = "invalid"
)

// RewardScanStatus is the outcome variant of a reward code scan.
type RewardScanStatus string

const (
	RewardScanSuccess RewardScanStatus = "success"
	RewardScanClaimed RewardScanStatus = "claimed"
	RewardScanExpired RewardScanStatus = "expired"
	RewardScanError   RewardScanStatus = "error"
)

// Defaults applied when the backend omits loyalty card values.
const (
	DefaultWashesRequired = 10
	DefaultDaysLeft       = 30
	DefaultRewardType     = "free_wash"
)

// CustomerScanResult is the loyalty state of a customer at scan time.
// Progress, RewardEarned and CanAddWash are derived from the counters.
type CustomerScanResult struct {
	Status         CustomerScanStatus `json:"status"`
	Title          string             `json:"title"`
	Message        string             `json:"message,omitempty"`
	CustomerID     string             `json:"customer_id"`
	CustomerCode   string             `json:"customer_code"`
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	CustomerPhoto  string             `json:"customer_photo,omitempty"`
	CarPlateNumber string             `json:"car_plate_number,omitempty"`
	CurrentWashes  int                `json:"current_washes"`
	WashesRequired int                `json:"washes_required"`
	Progress       float64            `json:"progress"`
	DaysLeft       int                `json:"days_left"`
	RewardEarned   bool               `json:"reward_earned"`
	CanAddWash     bool               `json:"can_add_wash"`
	LastWashDate   string             `json:"last_wash_date,omitempty"`
}

// RewardScanResult is the redemption eligibility of a scanned reward.
type RewardScanResult struct {
	Status           RewardScanStatus `json:"status"`
	Title            string           `json:"title"`
	Message          string           `json:"message,omitempty"`
	RewardCode       string           `json:"reward_code"`
	CustomerName     string           `json:"customer_name"`
	CustomerPhone    string           `json:"customer_phone"`
	RewardTitle      string           `json:"reward_title"`
	RewardType       string           `json:"reward_type"`
	RewardValue      decimal.Decimal  `json:"reward_value"`
	RewardExpiresAt  *time.Time       `json:"reward_expires_at,omitempty"`
	IsAlreadyClaimed bool             `json:"is_already_claimed"`
	IsExpired        bool             `json:"is_expired"`
}
