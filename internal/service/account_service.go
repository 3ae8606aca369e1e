package service

import (
	"context"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/internal/repository"
	"github.com/bazaarverse/numrent/pkg/logger"
)

const recentNumbersLimit = 5

// AccountService serves the user-facing dashboard and history views. All of
// its statistics exclude auto-cancelled records, matching what the history
// listing shows.
type AccountService struct {
	users   *repository.UserRepository
	numbers *repository.NumberRepository
	log     logger.Logger
}

func NewAccountService(users *repository.UserRepository, numbers *repository.NumberRepository, log logger.Logger) *AccountService {
	return &AccountService{
		users:   users,
		numbers: numbers,
		log:     log,
	}
}

func (s *AccountService) Dashboard(ctx context.Context, principal models.Principal) (*models.UserDashboard, error) {
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrAccountNotFound
	}

	total, err := s.numbers.CountByUser(ctx, user.ID, "", true)
	if err != nil {
		return nil, err
	}
	successful, err := s.numbers.CountByUser(ctx, user.ID, models.StatusReceived, false)
	if err != nil {
		return nil, err
	}
	pending, err := s.numbers.CountByUser(ctx, user.ID, models.StatusWaiting, false)
	if err != nil {
		return nil, err
	}

	recent, err := s.numbers.FindRecent(ctx, user.ID, recentNumbersLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*models.NumberRecord{}
	}

	return &models.UserDashboard{
		Username:      user.Username,
		Balance:       user.Balance,
		TotalSpent:    user.TotalSpent,
		TotalNumbers:  total,
		Successful:    successful,
		Pending:       pending,
		SuccessRate:   successRate(successful, total),
		RecentNumbers: recent,
	}, nil
}

func (s *AccountService) History(ctx context.Context, principal models.Principal, status models.NumberStatus, page, limit int) (*models.HistoryPage, error) {
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrAccountNotFound
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, total, err := s.numbers.History(ctx, user.ID, status, page, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.NumberRecord{}
	}

	return &models.HistoryPage{
		History: records,
		Pagination: models.Pagination{
			Current: page,
			Pages:   pageCount(total, limit),
			Total:   total,
		},
	}, nil
}

func successRate(successful, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

func pageCount(total int64, limit int) int {
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}
