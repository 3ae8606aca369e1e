package service

import (
	"context"
	"strings"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/internal/repository"
	"github.com/bazaarverse/numrent/pkg/crypto"
	"github.com/bazaarverse/numrent/pkg/logger"
)

const recentActivityLimit = 10

// AdminService backs the admin dashboard and user management endpoints.
type AdminService struct {
	users    *repository.UserRepository
	numbers  *repository.NumberRepository
	sessions *repository.SessionRepository
	sweeper  *Sweeper
	log      logger.Logger
}

func NewAdminService(
	users *repository.UserRepository,
	numbers *repository.NumberRepository,
	sessions *repository.SessionRepository,
	sweeper *Sweeper,
	log logger.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		numbers:  numbers,
		sessions: sessions,
		sweeper:  sweeper,
		log:      log,
	}
}

func (s *AdminService) Dashboard(ctx context.Context) (*models.AdminDashboard, error) {
	active := true
	totalUsers, err := s.users.CountByRole(ctx, models.RoleUser, nil)
	if err != nil {
		return nil, err
	}
	activeUsers, err := s.users.CountByRole(ctx, models.RoleUser, &active)
	if err != nil {
		return nil, err
	}

	totalNumbers, err := s.numbers.CountByStatus(ctx, "")
	if err != nil {
		return nil, err
	}
	successful, err := s.numbers.CountByStatus(ctx, models.StatusReceived)
	if err != nil {
		return nil, err
	}
	pending, err := s.numbers.CountByStatus(ctx, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.numbers.CountByStatus(ctx, models.StatusCancelled)
	if err != nil {
		return nil, err
	}

	revenue, err := s.numbers.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := s.numbers.RecentAll(ctx, recentActivityLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*models.NumberRecord{}
	}

	return &models.AdminDashboard{
		UserStats: models.AdminUserStats{
			Total:    totalUsers,
			Active:   activeUsers,
			Inactive: totalUsers - activeUsers,
		},
		NumberStats: models.AdminNumberStats{
			Total:       totalNumbers,
			Successful:  successful,
			Pending:     pending,
			Cancelled:   cancelled,
			SuccessRate: successRate(successful, totalNumbers),
		},
		TotalRevenue:   revenue,
		RecentActivity: recent,
	}, nil
}

func (s *AdminService) ListUsers(ctx context.Context, filter repository.ListFilter, page, limit int) (*models.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, total, err := s.users.List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}

	return &models.UserPage{
		Users: users,
		Pagination: models.Pagination{
			Current: page,
			Pages:   pageCount(total, limit),
			Total:   total,
		},
	}, nil
}

func (s *AdminService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if err := validateNewUser(req); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: hash,
		APIKey:   req.APIKey,
		Role:     models.RoleUser,
		IsActive: true,
		Balance:  req.Balance,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user created",
		logger.Field{Key: "username", Value: user.Username},
		logger.Field{Key: "balance", Value: user.Balance},
	)

	return user, nil
}

func (s *AdminService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrAccountNotFound
	}
	return user, nil
}

func (s *AdminService) UpdateUser(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 {
		return nil, &models.ValidationError{Message: "username must be at least 3 characters"}
	}

	if other, err := s.users.FindByUsername(ctx, req.Username); err != nil {
		return nil, err
	} else if other != nil && other.ID.Hex() != id {
		return nil, models.ErrUsernameTaken
	}

	return s.users.Update(ctx, id, req)
}

// DeleteUser removes the account together with its number records and
// sessions.
func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return models.ErrAccountNotFound
	}
	if user.Role == models.RoleAdmin {
		return &models.ValidationError{Message: "admin accounts cannot be deleted"}
	}

	if err := s.numbers.DeleteByUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.sessions.DeleteByUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info("user deleted",
		logger.Field{Key: "username", Value: user.Username},
		logger.Field{Key: "user_id", Value: id},
	)

	return nil
}

// RunSweep triggers an immediate expiry sweep outside the scheduled interval.
func (s *AdminService) RunSweep(ctx context.Context) (*models.SweepResult, error) {
	return s.sweeper.Sweep(ctx)
}

func validateNewUser(req *models.CreateUserRequest) error {
	if len(strings.TrimSpace(req.Username)) < 3 {
		return &models.ValidationError{Message: "username must be at least 3 characters"}
	}
	if len(req.Password) < 6 {
		return &models.ValidationError{Message: "password must be at least 6 characters"}
	}
	if req.Balance < 0 {
		return &models.ValidationError{Message: "balance cannot be negative"}
	}
	return nil
}
