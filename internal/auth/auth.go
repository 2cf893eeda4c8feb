package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of roles known to the application. Gating decisions
// go through the capability methods below, never through raw string compares.
type Role string

const (
	RoleEmploye Role = "EMPLOYE"
	RoleRH      Role = "RH"
	RoleDAF     Role = "DAF"
	RoleAdmin   Role = "ADMIN"
)

// CanApprove reports whether the role may act on a validation step at all.
func (r Role) CanApprove() bool {
	return r == RoleRH || r == RoleDAF
}

// IsFinanceDirector reports whether the role satisfies the mandatory
// above-threshold approval tier.
func (r Role) IsFinanceDirector() bool {
	return r == RoleDAF
}

func (r Role) Valid() bool {
	switch r {
	case RoleEmploye, RoleRH, RoleDAF, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Nom          string    `json:"nom" gorm:"column:nom;not null"`
	Role         Role      `json:"role" gorm:"column:role;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	IsActive     bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Repository is the user lookup surface the middleware needs; the gorm
// implementation lives in the postgres sub-package.
type Repository interface {
	GetByID(id int64) (*User, error)
}

// Claims is the bearer-token payload supplied by the external auth service.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUserNotFound = errors.New("user not found")
)

// ParseToken validates an HMAC-signed bearer token and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
