package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username    string             `bson:"username" json:"username"`
	Email       string             `bson:"email" json:"email"`
	Password    string             `bson:"password" json:"-"`
	APIKey      string             `bson:"api_key" json:"api_key,omitempty"`
	Role        string             `bson:"role" json:"role"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
	Balance     float64            `bson:"balance" json:"balance"`
	TotalSpent  float64            `bson:"total_spent" json:"total_spent"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	LastLoginAt *time.Time         `bson:"last_login_at" json:"last_login_at"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal is the authenticated identity attached to each request.
// Operations receive it explicitly instead of reading ambient state.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Session struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Token        string             `bson:"token" json:"token"`
	RefreshToken string             `bson:"refresh_token" json:"refresh_token"`
	UserAgent    string             `bson:"user_agent" json:"user_agent"`
	IPAddress    string             `bson:"ip_address" json:"ip_address"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token       string  `json:"token"`
	Username    string  `json:"username"`
	Role        string  `json:"role"`
	Balance     float64 `json:"balance"`
	RedirectURL string  `json:"redirect_url"`
}

type CreateUserRequest struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Email    string  `json:"email"`
	APIKey   string  `json:"api_key"`
	Balance  float64 `json:"balance"`
}

type UpdateUserRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    string  `json:"email"`
	APIKey   string  `json:"api_key"`
	Balance  float64 `json:"balance"`
	IsActive *bool   `json:"is_active"`
}

type UserPage struct {
	Users      []*User    `json:"users"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}
