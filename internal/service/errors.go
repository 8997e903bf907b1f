package service

import "errors"

var (
	// ErrSessionBusy is returned when a call is made while a scan or
	// submission is still in flight for the same terminal
	ErrSessionBusy = errors.New("scan session busy")

	// ErrNoCustomerResult is returned when confirming a wash without a
	// successfully resolved customer
	ErrNoCustomerResult = errors.New("no resolved customer in session")

	// ErrWashNotAllowed is returned when the customer already has a wash today
	ErrWashNotAllowed = errors.New("wash already recorded today")

	// ErrInvalidWash is returned when the wash details are incomplete or invalid
	ErrInvalidWash = errors.New("invalid wash details")

	// ErrWashFailed is returned when the platform did not record the wash
	ErrWashFailed = errors.New("wash submission failed")

	// ErrNoRewardResult is returned when redeeming without a scanned reward
	ErrNoRewardResult = errors.New("no scanned reward in session")

	// ErrRewardNotRedeemable is returned for expired or unresolved rewards
	ErrRewardNotRedeemable = errors.New("reward cannot be redeemed")

	// ErrRedeemFailed is returned when the platform did not redeem the reward
	ErrRedeemFailed = errors.New("reward redemption failed")

	// errSessionRetired is returned by a session replaced after a merchant switch
	errSessionRetired = errors.New("scan session retired")
)
