package model

import "github.com/shopspring/decimal"

// WashSubmission holds the wash details entered by the operator.
type WashSubmission struct {
	ServiceName    string          `json:"service_name" validate:"required,notblank,max=255"`
	Price          decimal.Decimal `json:"price" validate:"gte=0"`
	CarPlateNumber string          `json:"car_plate_number" validate:"max=32"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

// WashRecord is the transaction sent to the backend for a confirmed wash.
type WashRecord struct {
	CustomerID     string
	CustomerCode   string
	MerchantID     string
	ServiceName    string
	Price          decimal.Decimal
	CarPlateNumber string
	Notes          string
}

// ScanRequest is the DTO for POST /api/terminals/:terminal/scan.
// Code shape is checked by the scan session so malformed codes still
// produce a result card.
type ScanRequest struct {
	Code string `json:"code" validate:"max=512"`
}
