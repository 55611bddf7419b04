package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminDisabled = errors.New("admin access is not configured")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

const adminIssuer = "flight-radar"

// AuthService guards the admin API with a bcrypt-hashed key and short-lived
// HS256 tokens exchanged for it.
type AuthService struct {
	apiKeyHash string
	jwtSecret  []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewAuthService(apiKeyHash, jwtSecret string, ttl time.Duration) *AuthService {
	return &AuthService{
		apiKeyHash: apiKeyHash,
		jwtSecret:  []byte(jwtSecret),
		ttl:        ttl,
		now:        time.Now,
	}
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) GenerateToken() (string, time.Time, error) {
	if len(s.jwtSecret) == 0 {
		return "", time.Time{}, ErrAdminDisabled
	}

	now := s.now()
	expirationTime := now.Add(s.ttl)
	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expirationTime, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrAdminDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(adminIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != "admin" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (s *AuthService) ValidateAPIKey(apiKey string) error {
	if s.apiKeyHash == "" {
		return ErrAdminDisabled
	}
	if apiKey == "" || !CheckAPIKeyHash(apiKey, s.apiKeyHash) {
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey produces the value for ADMIN_API_KEY_HASH.
func HashAPIKey(apiKey string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckAPIKeyHash(apiKey, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey))
	return err == nil
}
