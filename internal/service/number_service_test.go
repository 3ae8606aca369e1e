package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bazaarverse/numrent/internal/config"
	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/logger"
)

type NumberServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	user      *models.User
	principal models.Principal
	accounts  *fakeAccounts
	numbers   *fakeNumbers
	provider  *fakeProvider
}

func (s *NumberServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.user = &models.User{
		ID:       primitive.NewObjectID(),
		Username: "alice",
		Role:     models.RoleUser,
		IsActive: true,
		Balance:  50.00,
	}
	s.principal = models.Principal{UserID: s.user.ID.Hex(), Username: s.user.Username, Role: s.user.Role}
	s.accounts = newFakeAccounts(s.user)
	s.numbers = newFakeNumbers()
	s.provider = &fakeProvider{
		order:  NumberOrder{Accepted: true, ActivationID: "483920", PhoneNumber: "79261234567"},
		prices: PriceTable{"22": {"vk": {"12.50": 10}}},
	}
}

func (s *NumberServiceTestSuite) newService() *NumberService {
	providerCfg := config.ProviderConfig{
		DefaultServer:  "1",
		DefaultCountry: "22",
		FallbackCost:   1.0,
	}
	numbersCfg := config.NumbersConfig{PendingWindow: 15 * time.Minute}

	return NewNumberService(
		s.accounts, s.numbers, s.provider,
		nil, nil, nil,
		providerCfg, numbersCfg, logger.Default(),
	)
}

func TestNumberServiceTestSuite(t *testing.T) {
	suite.Run(t, new(NumberServiceTestSuite))
}

func (s *NumberServiceTestSuite) TestPurchaseChargesQuotedPrice() {
	svc := s.newService()

	result, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.Equal("483920", result.ActivationID)
	s.Equal("79261234567", result.PhoneNumber)
	s.Equal(12.50, result.Cost)
	s.Equal(37.50, result.RemainingBalance)
	s.Equal(37.50, s.accounts.balance(s.principal.UserID))
	s.Equal(models.StatusWaiting, s.numbers.status("483920"))
}

func (s *NumberServiceTestSuite) TestPurchaseFallbackCostWhenNotQuoted() {
	s.provider.prices = PriceTable{"22": {"tg": {"8.00": 5}}}
	svc := s.newService()

	result, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.Equal(1.0, result.Cost)
	s.Equal(49.00, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestPurchaseFallbackCostWhenPriceLookupFails() {
	s.provider.pricesErr = models.ErrProviderUnavailable
	svc := s.newService()

	result, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.Equal(1.0, result.Cost)
}

func (s *NumberServiceTestSuite) TestPurchaseInsufficientBalance() {
	s.user.Balance = 5.00
	s.accounts = newFakeAccounts(s.user)
	s.provider.prices = PriceTable{"22": {"vk": {"10.00": 10}}}
	svc := s.newService()

	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})

	var insufficient *models.InsufficientBalanceError
	s.Require().ErrorAs(err, &insufficient)
	s.Equal(10.00, insufficient.Required)
	s.Equal(5.00, insufficient.Available)

	// Balance untouched and nothing handed out.
	s.Equal(5.00, s.accounts.balance(s.principal.UserID))
	s.Empty(s.provider.cancelled())
}

func (s *NumberServiceTestSuite) TestPurchaseProviderRejection() {
	s.provider.order = NumberOrder{Raw: "NO_NUMBERS"}
	svc := s.newService()

	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})

	var rejected *models.ProviderRejectedError
	s.Require().ErrorAs(err, &rejected)
	s.Equal("NO_NUMBERS", rejected.Message)
	s.Equal(50.00, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestPurchaseUnknownAccount() {
	svc := s.newService()
	ghost := models.Principal{UserID: primitive.NewObjectID().Hex(), Role: models.RoleUser}

	_, err := svc.Purchase(s.ctx, ghost, &models.PurchaseRequest{Service: "vk"})
	s.ErrorIs(err, models.ErrAccountNotFound)
}

func (s *NumberServiceTestSuite) TestPollCodeReceived() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.provider.status = StatusReply{Kind: StatusReplyReceived, Code: "9137"}

	result, err := svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(models.StatusReceived, result.Status)
	s.Require().NotNil(result.OTPCode)
	s.Equal("9137", *result.OTPCode)

	record, err := s.numbers.FindByActivationID(s.ctx, "483920")
	s.Require().NoError(err)
	s.Equal(models.StatusReceived, record.Status)
	s.NotNil(record.CompletedAt)
}

func (s *NumberServiceTestSuite) TestPollStillWaiting() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.provider.status = StatusReply{Kind: StatusReplyWaiting}

	result, err := svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(models.StatusWaiting, result.Status)
	s.Nil(result.OTPCode)
	s.Equal(models.StatusWaiting, s.numbers.status("483920"))
}

func (s *NumberServiceTestSuite) TestPollObservedCancellationKeepsCharge() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)
	charged := s.accounts.balance(s.principal.UserID)

	s.provider.status = StatusReply{Kind: StatusReplyCancelled}

	result, err := svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(models.StatusCancelled, result.Status)
	s.Equal(models.StatusCancelled, s.numbers.status("483920"))
	// Poll never refunds.
	s.Equal(charged, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestPollNeverOverwritesTerminalStatus() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	_, err = svc.Cancel(s.ctx, s.principal, "483920")
	s.Require().NoError(err)
	refunded := s.accounts.balance(s.principal.UserID)

	// A late STATUS_OK must not flip the settled record back to RECEIVED.
	s.provider.status = StatusReply{Kind: StatusReplyReceived, Code: "9137"}

	_, err = svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(models.StatusCancelled, s.numbers.status("483920"))
	s.Equal(refunded, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestPollUnrecognizedReply() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.provider.status = StatusReply{Kind: StatusReplyUnrecognized, Raw: "BANNED"}

	result, err := svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(models.StatusError, result.Status)
	s.Equal(models.StatusError, s.numbers.status("483920"))
}

func (s *NumberServiceTestSuite) TestPollUnknownActivation() {
	svc := s.newService()

	_, err := svc.Poll(s.ctx, s.principal, "999999")
	s.ErrorIs(err, models.ErrRecordNotFound)
}

func (s *NumberServiceTestSuite) TestPollForeignActivation() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	other := models.Principal{UserID: primitive.NewObjectID().Hex(), Role: models.RoleUser}
	_, err = svc.Poll(s.ctx, other, "483920")
	s.ErrorIs(err, models.ErrRecordNotFound)
}

func (s *NumberServiceTestSuite) TestCancelRefundsOnce() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)
	s.Equal(37.50, s.accounts.balance(s.principal.UserID))

	result, err := svc.Cancel(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(12.50, result.RefundAmount)
	s.Equal(50.00, result.NewBalance)
	s.Equal(50.00, s.accounts.balance(s.principal.UserID))
	s.Equal(models.StatusCancelled, s.numbers.status("483920"))
	s.Equal([]string{"483920"}, s.provider.cancelled())

	// Second cancel must not refund again.
	_, err = svc.Cancel(s.ctx, s.principal, "483920")
	s.ErrorIs(err, models.ErrInvalidState)
	s.Equal(50.00, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestCancelAfterCodeReceived() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.provider.status = StatusReply{Kind: StatusReplyReceived, Code: "9137"}
	_, err = svc.Poll(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	_, err = svc.Cancel(s.ctx, s.principal, "483920")
	s.ErrorIs(err, models.ErrInvalidState)
	s.Equal(37.50, s.accounts.balance(s.principal.UserID))
}

func (s *NumberServiceTestSuite) TestCancelRefundsDespiteProviderFailure() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	s.provider.cancelErr = models.ErrProviderUnavailable

	result, err := svc.Cancel(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	s.Equal(12.50, result.RefundAmount)
	s.Equal(50.00, s.accounts.balance(s.principal.UserID))
	s.Equal(models.StatusCancelled, s.numbers.status("483920"))
}

func (s *NumberServiceTestSuite) TestActiveNumbers() {
	svc := s.newService()
	_, err := svc.Purchase(s.ctx, s.principal, &models.PurchaseRequest{Service: "vk"})
	s.Require().NoError(err)

	active, err := svc.ActiveNumbers(s.ctx, s.principal)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("483920", active[0].ActivationID)

	_, err = svc.Cancel(s.ctx, s.principal, "483920")
	s.Require().NoError(err)

	active, err = svc.ActiveNumbers(s.ctx, s.principal)
	s.Require().NoError(err)
	s.Empty(active)
}

// Concurrent cancels of the same activation must produce exactly one refund.
func TestConcurrentCancelRefundsExactlyOnce(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Username: "bob", Role: models.RoleUser, Balance: 40.00}
	principal := models.Principal{UserID: user.ID.Hex(), Role: models.RoleUser}
	accounts := newFakeAccounts(user)
	provider := &fakeProvider{
		order:  NumberOrder{Accepted: true, ActivationID: "777", PhoneNumber: "79260000000"},
		prices: PriceTable{"22": {"vk": {"10.00": 5}}},
	}
	numbers := newFakeNumbers()

	svc := NewNumberService(
		accounts, numbers, provider,
		nil, nil, nil,
		config.ProviderConfig{DefaultServer: "1", DefaultCountry: "22", FallbackCost: 1.0},
		config.NumbersConfig{PendingWindow: 15 * time.Minute},
		logger.Default(),
	)

	_, err := svc.Purchase(context.Background(), principal, &models.PurchaseRequest{Service: "vk"})
	require.NoError(t, err)
	require.Equal(t, 30.00, accounts.balance(principal.UserID))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Cancel(context.Background(), principal, "777")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidState)
		}
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, 40.00, accounts.balance(principal.UserID))
	assert.Equal(t, models.StatusCancelled, numbers.status("777"))
}
