package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
)

// flexString accepts JSON strings and numbers, since the platform has sent
// ids both ways.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// wireCustomer accepts every field spelling the platform has shipped for a
// scanned customer. JSON keys match case-insensitively, so PascalCase
// payloads decode too.
type wireCustomer struct {
	CustomerID      flexString `json:"customerId"`
	ID              flexString `json:"id"`
	CustomerName    string     `json:"customerName"`
	Name            string     `json:"name"`
	CustomerPhone   string     `json:"customerPhone"`
	Phone           string     `json:"phone"`
	CustomerPhoto   string     `json:"customerPhoto"`
	Photo           string     `json:"photo"`
	CarPlateNumber  string     `json:"carPlateNumber"`
	PlateNumber     string     `json:"plateNumber"`
	CurrentWashes   int        `json:"currentWashes"`
	CompletedStamps int        `json:"completedStamps"`
	WashesRequired  int        `json:"washesRequired"`
	RequiredStamps  int        `json:"requiredStamps"`
	DaysLeft        int        `json:"daysLeft"`
	DaysRemaining   int        `json:"daysRemaining"`
	LastWashDate    string     `json:"lastWashDate"`
	LastWash        string     `json:"lastWash"`
}

func (w wireCustomer) record() *model.CustomerRecord {
	return &model.CustomerRecord{
		ID:             firstNonEmpty(string(w.CustomerID), string(w.ID)),
		Name:           firstNonEmpty(w.CustomerName, w.Name),
		Phone:          firstNonEmpty(w.CustomerPhone, w.Phone),
		Photo:          firstNonEmpty(w.CustomerPhoto, w.Photo),
		CarPlateNumber: firstNonEmpty(w.CarPlateNumber, w.PlateNumber),
		CurrentWashes:  firstNonZero(w.CurrentWashes, w.CompletedStamps),
		WashesRequired: firstNonZero(w.WashesRequired, w.RequiredStamps),
		DaysLeft:       firstNonZero(w.DaysLeft, w.DaysRemaining),
		LastWashDate:   firstNonEmpty(w.LastWashDate, w.LastWash),
	}
}

type wireReward struct {
	Success          bool            `json:"success"`
	IsAlreadyClaimed bool            `json:"isAlreadyClaimed"`
	IsExpired        bool            `json:"isExpired"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	CustomerName     string          `json:"customerName"`
	CustomerPhone    string          `json:"customerPhone"`
	RewardTitle      string          `json:"rewardTitle"`
	RewardType       string          `json:"rewardType"`
	RewardValue      decimal.Decimal `json:"rewardValue"`
	RewardExpiresAt  string          `json:"rewardExpiresAt"`
}

var expiryLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"}

func (w wireReward) record() *model.RewardRecord {
	rec := &model.RewardRecord{
		Valid:            w.Success,
		IsAlreadyClaimed: w.IsAlreadyClaimed,
		IsExpired:        w.IsExpired,
		Title:            w.Title,
		Message:          w.Message,
		CustomerName:     w.CustomerName,
		CustomerPhone:    w.CustomerPhone,
		RewardTitle:      w.RewardTitle,
		RewardType:       w.RewardType,
		RewardValue:      w.RewardValue,
	}
	if raw := strings.TrimSpace(w.RewardExpiresAt); raw != "" {
		for _, layout := range expiryLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				rec.RewardExpiresAt = &t
				break
			}
		}
	}
	return rec
}

// notLinkedFrom converts a platform rejection into a NotLinkedError when it
// describes a customer without a card at the merchant. The explicit error
// code is authoritative; payloads from platform versions that predate it
// are recognised by carrying the customer's name.
func notLinkedFrom(apiErr *APIError) *NotLinkedError {
	var w wireCustomer
	hasPayload := !isEmptyPayload(apiErr.Data) && json.Unmarshal(apiErr.Data, &w) == nil

	if apiErr.Code != ErrorCodeCustomerNotLinked {
		if !hasPayload || firstNonEmpty(w.CustomerName, w.Name) == "" {
			return nil
		}
	}

	return &NotLinkedError{
		Customer: model.CustomerIdentity{
			Name:           firstNonEmpty(w.CustomerName, w.Name),
			Phone:          firstNonEmpty(w.CustomerPhone, w.Phone),
			CarPlateNumber: firstNonEmpty(w.CarPlateNumber, w.PlateNumber),
		},
		Message: apiErr.Message,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
