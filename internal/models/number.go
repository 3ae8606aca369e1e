package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NumberStatus is the lifecycle state of a rented number. WAITING is the only
// non-terminal state; every other status is final and a record enters at most
// one of them.
type NumberStatus string

const (
	StatusWaiting       NumberStatus = "WAITING"
	StatusReceived      NumberStatus = "RECEIVED"
	StatusCancelled     NumberStatus = "CANCELLED"
	StatusError         NumberStatus = "ERROR"
	StatusAutoCancelled NumberStatus = "AUTO_CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s NumberStatus) Terminal() bool {
	return s != StatusWaiting
}

// NumberRecord is one purchased virtual number. Cost is fixed at purchase
// time and is the exact amount refunded if the record is cancelled or swept.
type NumberRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	ActivationID  string             `bson:"activation_id" json:"activation_id"`
	PhoneNumber   string             `bson:"phone_number" json:"phone_number"`
	Service       string             `bson:"service" json:"service"`
	ServiceName   string             `bson:"service_name" json:"service_name"`
	Country       string             `bson:"country" json:"country"`
	CountryName   string             `bson:"country_name" json:"country_name"`
	ServerID      string             `bson:"server_id" json:"server_id"`
	ServerName    string             `bson:"server_name" json:"server_name"`
	Status        NumberStatus       `bson:"status" json:"status"`
	OTPCode       *string            `bson:"otp_code" json:"otp_code"`
	Cost          float64            `bson:"cost" json:"cost"`
	RawResponse   string             `bson:"raw_response" json:"-"`
	PurchasedAt   time.Time          `bson:"purchased_at" json:"purchased_at"`
	CompletedAt   *time.Time         `bson:"completed_at" json:"completed_at"`
	LastCheckedAt time.Time          `bson:"last_checked_at" json:"last_checked_at"`
	CancelledAt   *time.Time         `bson:"cancelled_at" json:"cancelled_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

type PurchaseRequest struct {
	Service     string `json:"service" binding:"required"`
	ServiceName string `json:"service_name"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	ServerID    string `json:"server_id"`
	ServerName  string `json:"server_name"`
}

type PurchaseResult struct {
	ActivationID     string  `json:"activation_id"`
	PhoneNumber      string  `json:"phone_number"`
	Service          string  `json:"service"`
	Country          string  `json:"country"`
	Server           string  `json:"server"`
	Cost             float64 `json:"cost"`
	RemainingBalance float64 `json:"remaining_balance"`
}

type PollResult struct {
	Status      NumberStatus `json:"status"`
	OTPCode     *string      `json:"otp_code"`
	PhoneNumber string       `json:"phone_number"`
	Service     string       `json:"service"`
	LastChecked time.Time    `json:"last_checked"`
}

type CancelResult struct {
	ActivationID string  `json:"activation_id"`
	Status       string  `json:"status"`
	RefundAmount float64 `json:"refund_amount"`
	NewBalance   float64 `json:"new_balance"`
}

// SweepResult summarises one expiry sweep run. Cancelled plus Failed covers
// every stale record the scan returned except those another actor already
// terminated (Skipped). ProviderFailures counts advisory upstream cancels
// that errored; the records behind them are still refunded locally.
type SweepResult struct {
	RunID            string `json:"run_id"`
	Scanned          int    `json:"scanned"`
	Cancelled        int    `json:"cancelled"`
	Failed           int    `json:"failed"`
	Skipped          int    `json:"skipped"`
	ProviderFailures int    `json:"provider_failures"`
}

type HistoryPage struct {
	History    []*NumberRecord `json:"history"`
	Pagination Pagination      `json:"pagination"`
}

type UserDashboard struct {
	Username      string          `json:"username"`
	Balance       float64         `json:"balance"`
	TotalSpent    float64         `json:"total_spent"`
	TotalNumbers  int64           `json:"total_numbers"`
	Successful    int64           `json:"successful_numbers"`
	Pending       int64           `json:"pending_numbers"`
	SuccessRate   float64         `json:"success_rate"`
	RecentNumbers []*NumberRecord `json:"recent_numbers"`
}

type AdminDashboard struct {
	UserStats      AdminUserStats   `json:"user_stats"`
	NumberStats    AdminNumberStats `json:"number_stats"`
	TotalRevenue   float64          `json:"total_revenue"`
	RecentActivity []*NumberRecord  `json:"recent_activity"`
}

type AdminUserStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

type AdminNumberStats struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Pending     int64   `json:"pending"`
	Cancelled   int64   `json:"cancelled"`
	SuccessRate float64 `json:"success_rate"`
}
