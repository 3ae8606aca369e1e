package service

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bazaarverse/numrent/internal/config"
	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/logger"
)

const catalogTTL = time.Minute

// AccountStore is the slice of the user repository the number service needs
// for balance mutations.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Debit(ctx context.Context, id string, amount float64) error
	Refund(ctx context.Context, id string, amount float64) error
}

// NumberStore persists number records and performs the guarded status
// transitions.
type NumberStore interface {
	Create(ctx context.Context, record *models.NumberRecord) error
	FindByActivationID(ctx context.Context, activationID string) (*models.NumberRecord, error)
	TouchChecked(ctx context.Context, activationID string) error
	RecordPollResult(ctx context.Context, activationID string, status models.NumberStatus, code *string, completedAt *time.Time) error
	Transition(ctx context.Context, activationID string, from, to models.NumberStatus, clearCode bool) (bool, error)
	FindStale(ctx context.Context, before time.Time) ([]*models.NumberRecord, error)
	FindActive(ctx context.Context, userID primitive.ObjectID, since time.Time) ([]*models.NumberRecord, error)
}

// ProviderAPI is the upstream SMS-activation gateway.
type ProviderAPI interface {
	GetServers(ctx context.Context) (json.RawMessage, error)
	GetCountries(ctx context.Context, serverID string) (json.RawMessage, error)
	GetServices(ctx context.Context, serverID, country string) (json.RawMessage, error)
	GetPrices(ctx context.Context, serverID, country string) (PriceTable, error)
	GetNumber(ctx context.Context, service, country, serverID string) (NumberOrder, error)
	GetStatus(ctx context.Context, activationID string) (StatusReply, error)
	CancelActivation(ctx context.Context, activationID string) (bool, error)
}

// NumberService owns the purchase, poll and cancel lifecycle of rented
// numbers.
type NumberService struct {
	users    AccountStore
	numbers  NumberStore
	provider ProviderAPI
	cache    *CacheService
	events   *EventPublisher
	metrics  *MetricsCollector
	log      logger.Logger

	providerCfg config.ProviderConfig
	numbersCfg  config.NumbersConfig
}

func NewNumberService(
	users AccountStore,
	numbers NumberStore,
	provider ProviderAPI,
	cache *CacheService,
	events *EventPublisher,
	metrics *MetricsCollector,
	providerCfg config.ProviderConfig,
	numbersCfg config.NumbersConfig,
	log logger.Logger,
) *NumberService {
	return &NumberService{
		users:       users,
		numbers:     numbers,
		provider:    provider,
		cache:       cache,
		events:      events,
		metrics:     metrics,
		providerCfg: providerCfg,
		numbersCfg:  numbersCfg,
		log:         log,
	}
}

// Servers returns the provider's server list, cached briefly to spare the
// upstream.
func (s *NumberService) Servers(ctx context.Context) (json.RawMessage, error) {
	key := CatalogKey("servers")
	if raw, ok := s.cache.GetCatalog(ctx, key); ok {
		return raw, nil
	}

	raw, err := s.provider.GetServers(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetCatalog(ctx, key, raw, catalogTTL)
	return raw, nil
}

func (s *NumberService) Countries(ctx context.Context, serverID string) (json.RawMessage, error) {
	serverID = s.serverOrDefault(serverID)

	key := CatalogKey("countries", serverID)
	if raw, ok := s.cache.GetCatalog(ctx, key); ok {
		return raw, nil
	}

	raw, err := s.provider.GetCountries(ctx, serverID)
	if err != nil {
		return nil, err
	}

	s.cache.SetCatalog(ctx, key, raw, catalogTTL)
	return raw, nil
}

func (s *NumberService) Services(ctx context.Context, serverID, country string) (json.RawMessage, error) {
	serverID = s.serverOrDefault(serverID)
	country = s.countryOrDefault(country)

	key := CatalogKey("services", serverID, country)
	if raw, ok := s.cache.GetCatalog(ctx, key); ok {
		return raw, nil
	}

	raw, err := s.provider.GetServices(ctx, serverID, country)
	if err != nil {
		return nil, err
	}

	s.cache.SetCatalog(ctx, key, raw, catalogTTL)
	return raw, nil
}

func (s *NumberService) Prices(ctx context.Context, serverID, country string) (PriceTable, error) {
	serverID = s.serverOrDefault(serverID)
	country = s.countryOrDefault(country)

	if table, ok := s.cache.GetPriceTable(ctx, serverID, country); ok {
		return table, nil
	}

	table, err := s.provider.GetPrices(ctx, serverID, country)
	if err != nil {
		return nil, err
	}

	s.cache.SetPriceTable(ctx, serverID, country, table, catalogTTL)
	return table, nil
}

// Purchase rents a number for the given service. The account is charged the
// quoted price, or the configured fallback cost when no quote is available,
// and the record starts in WAITING.
func (s *NumberService) Purchase(ctx context.Context, principal models.Principal, req *models.PurchaseRequest) (*models.PurchaseResult, error) {
	serverID := s.serverOrDefault(req.ServerID)
	country := s.countryOrDefault(req.Country)

	cost := s.lookupCost(ctx, serverID, country, req.Service)

	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.metrics.IncrementPurchaseFailed("account_not_found")
		return nil, models.ErrAccountNotFound
	}

	if user.Balance < cost {
		s.metrics.IncrementPurchaseFailed("insufficient_balance")
		return nil, &models.InsufficientBalanceError{Required: cost, Available: user.Balance}
	}

	order, err := s.provider.GetNumber(ctx, req.Service, country, serverID)
	if err != nil {
		s.metrics.IncrementPurchaseFailed("provider_unavailable")
		return nil, err
	}
	if !order.Accepted {
		s.metrics.IncrementPurchaseFailed("provider_rejected")
		return nil, &models.ProviderRejectedError{Message: order.Raw}
	}

	record := &models.NumberRecord{
		UserID:       user.ID,
		ActivationID: order.ActivationID,
		PhoneNumber:  order.PhoneNumber,
		Service:      req.Service,
		ServiceName:  req.ServiceName,
		Country:      country,
		CountryName:  req.CountryName,
		ServerID:     serverID,
		ServerName:   req.ServerName,
		Status:       models.StatusWaiting,
		Cost:         cost,
		RawResponse:  order.Raw,
	}

	if err := s.numbers.Create(ctx, record); err != nil {
		s.metrics.IncrementPurchaseFailed("storage")
		return nil, err
	}

	if err := s.users.Debit(ctx, principal.UserID, cost); err != nil {
		// The provider already handed out the number. Close the record so
		// an uncharged activation is never swept into a refund later.
		s.abortUnchargedPurchase(ctx, record)
		s.metrics.IncrementPurchaseFailed("debit")
		return nil, err
	}

	s.metrics.IncrementPurchaseSuccess(req.Service, country)
	s.metrics.RecordPurchaseCost(cost)
	s.events.NumberPurchased(record)

	s.log.Info("number purchased",
		logger.Field{Key: "activation_id", Value: record.ActivationID},
		logger.Field{Key: "user_id", Value: principal.UserID},
		logger.Field{Key: "service", Value: req.Service},
		logger.Field{Key: "cost", Value: cost},
	)

	return &models.PurchaseResult{
		ActivationID:     record.ActivationID,
		PhoneNumber:      record.PhoneNumber,
		Service:          record.Service,
		Country:          record.Country,
		Server:           record.ServerID,
		Cost:             cost,
		RemainingBalance: user.Balance - cost,
	}, nil
}

// Poll queries the provider for the current state of an activation and
// records the outcome. Poll never refunds; a cancellation observed here keeps
// the money, only the explicit cancel path and the sweeper credit it back.
func (s *NumberService) Poll(ctx context.Context, principal models.Principal, activationID string) (*models.PollResult, error) {
	record, err := s.ownedRecord(ctx, principal, activationID)
	if err != nil {
		return nil, err
	}

	reply, err := s.provider.GetStatus(ctx, activationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	status := record.Status
	var code *string

	switch reply.Kind {
	case StatusReplyWaiting:
		if err := s.numbers.TouchChecked(ctx, activationID); err != nil {
			return nil, err
		}

	case StatusReplyReceived:
		code = &reply.Code
		status = models.StatusReceived
		if err := s.numbers.RecordPollResult(ctx, activationID, status, code, &now); err != nil {
			return nil, err
		}
		if record.Status == models.StatusWaiting {
			s.metrics.IncrementCodeReceived(record.Service)
		}

	case StatusReplyCancelled:
		status = models.StatusCancelled
		if err := s.numbers.RecordPollResult(ctx, activationID, status, nil, nil); err != nil {
			return nil, err
		}
		s.log.Warn("provider reported cancellation during poll, charge stands",
			logger.Field{Key: "activation_id", Value: activationID},
			logger.Field{Key: "cost", Value: record.Cost},
		)

	default:
		status = models.StatusError
		if err := s.numbers.RecordPollResult(ctx, activationID, status, nil, nil); err != nil {
			return nil, err
		}
		s.log.Warn("unrecognized provider status reply",
			logger.Field{Key: "activation_id", Value: activationID},
			logger.Field{Key: "reply", Value: reply.Raw},
		)
	}

	if code == nil && record.OTPCode != nil {
		code = record.OTPCode
	}

	return &models.PollResult{
		Status:      status,
		OTPCode:     code,
		PhoneNumber: record.PhoneNumber,
		Service:     record.Service,
		LastChecked: now,
	}, nil
}

// Cancel terminates a WAITING activation and refunds its cost. The status
// transition is a compare-and-set, so concurrent cancels of the same record
// produce exactly one refund.
func (s *NumberService) Cancel(ctx context.Context, principal models.Principal, activationID string) (*models.CancelResult, error) {
	record, err := s.ownedRecord(ctx, principal, activationID)
	if err != nil {
		return nil, err
	}

	if record.Status.Terminal() {
		return nil, models.ErrInvalidState
	}

	won, err := s.numbers.Transition(ctx, activationID, models.StatusWaiting, models.StatusCancelled, false)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.ErrInvalidState
	}

	// Advisory only. The local record is already CANCELLED and the refund
	// happens regardless of what the provider says.
	if _, err := s.provider.CancelActivation(ctx, activationID); err != nil {
		s.log.Warn("provider cancel failed",
			logger.Field{Key: "activation_id", Value: activationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	if err := s.users.Refund(ctx, principal.UserID, record.Cost); err != nil {
		s.log.Error("refund failed after cancellation",
			logger.Field{Key: "activation_id", Value: activationID},
			logger.Field{Key: "user_id", Value: principal.UserID},
			logger.Field{Key: "amount", Value: record.Cost},
		)
		return nil, err
	}

	s.metrics.IncrementRefund("cancel")
	s.events.NumberCancelled(record, record.Cost)

	s.log.Info("number cancelled",
		logger.Field{Key: "activation_id", Value: activationID},
		logger.Field{Key: "refund", Value: record.Cost},
	)

	newBalance := record.Cost
	if user, err := s.users.FindByID(ctx, principal.UserID); err == nil && user != nil {
		newBalance = user.Balance
	}

	return &models.CancelResult{
		ActivationID: activationID,
		Status:       string(models.StatusCancelled),
		RefundAmount: record.Cost,
		NewBalance:   newBalance,
	}, nil
}

// ActiveNumbers lists the caller's WAITING numbers still inside the pending
// window.
func (s *NumberService) ActiveNumbers(ctx context.Context, principal models.Principal) ([]*models.NumberRecord, error) {
	userID, err := primitive.ObjectIDFromHex(principal.UserID)
	if err != nil {
		return nil, models.ErrAccountNotFound
	}

	since := time.Now().Add(-s.numbersCfg.PendingWindow)
	records, err := s.numbers.FindActive(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.NumberRecord{}
	}

	return records, nil
}

// lookupCost resolves the price for a service/country pair. Any failure along
// the way falls back to the configured flat cost, loudly.
func (s *NumberService) lookupCost(ctx context.Context, serverID, country, service string) float64 {
	table, err := s.Prices(ctx, serverID, country)
	if err != nil {
		s.log.Warn("price lookup failed, using fallback cost",
			logger.Field{Key: "service", Value: service},
			logger.Field{Key: "country", Value: country},
			logger.Field{Key: "fallback_cost", Value: s.providerCfg.FallbackCost},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return s.providerCfg.FallbackCost
	}

	price, ok := table.PriceFor(country, service)
	if !ok {
		s.log.Warn("service not quoted, using fallback cost",
			logger.Field{Key: "service", Value: service},
			logger.Field{Key: "country", Value: country},
			logger.Field{Key: "fallback_cost", Value: s.providerCfg.FallbackCost},
		)
		return s.providerCfg.FallbackCost
	}

	return price
}

// abortUnchargedPurchase closes a record whose debit never landed. Without
// this the sweeper would eventually refund money that was never taken.
func (s *NumberService) abortUnchargedPurchase(ctx context.Context, record *models.NumberRecord) {
	if _, err := s.provider.CancelActivation(ctx, record.ActivationID); err != nil {
		s.log.Warn("provider cancel failed for uncharged purchase",
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	if _, err := s.numbers.Transition(ctx, record.ActivationID, models.StatusWaiting, models.StatusError, false); err != nil {
		s.log.Error("failed to close uncharged purchase",
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}

// ownedRecord loads a record and verifies the caller owns it. Records owned
// by someone else look exactly like missing ones.
func (s *NumberService) ownedRecord(ctx context.Context, principal models.Principal, activationID string) (*models.NumberRecord, error) {
	record, err := s.numbers.FindByActivationID(ctx, activationID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, models.ErrRecordNotFound
	}
	if record.UserID.Hex() != principal.UserID {
		return nil, models.ErrRecordNotFound
	}

	return record, nil
}

func (s *NumberService) serverOrDefault(serverID string) string {
	if serverID == "" {
		return s.providerCfg.DefaultServer
	}
	return serverID
}

func (s *NumberService) countryOrDefault(country string) string {
	if country == "" {
		return s.providerCfg.DefaultCountry
	}
	return country
}
