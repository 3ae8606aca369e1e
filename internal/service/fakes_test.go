package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bazaarverse/numrent/internal/models"
)

// fakeAccounts is an in-memory AccountStore with the same balance-guarded
// debit semantics as the Mongo repository.
type fakeAccounts struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeAccounts(users ...*models.User) *fakeAccounts {
	f := &fakeAccounts{users: make(map[string]*models.User)}
	for _, u := range users {
		f.users[u.ID.Hex()] = u
	}
	return f
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeAccounts) Debit(_ context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	if user.Balance < amount {
		return &models.InsufficientBalanceError{Required: amount, Available: user.Balance}
	}
	user.Balance -= amount
	user.TotalSpent += amount
	return nil
}

func (f *fakeAccounts) Refund(_ context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	user.Balance += amount
	user.TotalSpent -= amount
	return nil
}

func (f *fakeAccounts) balance(id string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Balance
}

// fakeNumbers is an in-memory NumberStore whose Transition performs the same
// compare-and-set the Mongo repository does.
type fakeNumbers struct {
	mu      sync.Mutex
	records map[string]*models.NumberRecord
}

func newFakeNumbers(records ...*models.NumberRecord) *fakeNumbers {
	f := &fakeNumbers{records: make(map[string]*models.NumberRecord)}
	for _, r := range records {
		f.records[r.ActivationID] = r
	}
	return f
}

func (f *fakeNumbers) Create(_ context.Context, record *models.NumberRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	record.ID = primitive.NewObjectID()
	record.PurchasedAt = now
	record.LastCheckedAt = now
	record.UpdatedAt = now
	f.records[record.ActivationID] = record
	return nil
}

func (f *fakeNumbers) FindByActivationID(_ context.Context, activationID string) (*models.NumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[activationID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (f *fakeNumbers) TouchChecked(_ context.Context, activationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record, ok := f.records[activationID]; ok {
		record.LastCheckedAt = time.Now()
	}
	return nil
}

func (f *fakeNumbers) RecordPollResult(_ context.Context, activationID string, status models.NumberStatus, code *string, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[activationID]
	if !ok || record.Status != models.StatusWaiting {
		return nil
	}
	record.Status = status
	record.LastCheckedAt = time.Now()
	if code != nil {
		record.OTPCode = code
	}
	if completedAt != nil {
		record.CompletedAt = completedAt
	}
	return nil
}

func (f *fakeNumbers) Transition(_ context.Context, activationID string, from, to models.NumberStatus, clearCode bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[activationID]
	if !ok || record.Status != from {
		return false, nil
	}

	now := time.Now()
	record.Status = to
	record.CancelledAt = &now
	if clearCode {
		record.OTPCode = nil
	}
	return true, nil
}

func (f *fakeNumbers) FindStale(_ context.Context, before time.Time) ([]*models.NumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stale []*models.NumberRecord
	for _, record := range f.records {
		if record.Status == models.StatusWaiting && record.PurchasedAt.Before(before) {
			copied := *record
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (f *fakeNumbers) FindActive(_ context.Context, userID primitive.ObjectID, since time.Time) ([]*models.NumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var active []*models.NumberRecord
	for _, record := range f.records {
		if record.UserID == userID && record.Status == models.StatusWaiting && !record.PurchasedAt.Before(since) {
			copied := *record
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (f *fakeNumbers) status(activationID string) models.NumberStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[activationID].Status
}

// fakeProvider returns canned replies and records cancellation calls.
type fakeProvider struct {
	mu          sync.Mutex
	order       NumberOrder
	orderErr    error
	status      StatusReply
	statusErr   error
	prices      PriceTable
	pricesErr   error
	cancelErr   error
	cancelCalls []string
}

func (f *fakeProvider) GetServers(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeProvider) GetCountries(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeProvider) GetServices(context.Context, string, string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeProvider) GetPrices(context.Context, string, string) (PriceTable, error) {
	return f.prices, f.pricesErr
}

func (f *fakeProvider) GetNumber(context.Context, string, string, string) (NumberOrder, error) {
	return f.order, f.orderErr
}

func (f *fakeProvider) GetStatus(context.Context, string) (StatusReply, error) {
	return f.status, f.statusErr
}

func (f *fakeProvider) CancelActivation(_ context.Context, activationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelCalls = append(f.cancelCalls, activationID)
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	return true, nil
}

func (f *fakeProvider) cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelCalls...)
}
