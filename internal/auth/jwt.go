package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "studybuddy"

	audienceAccess  = "studybuddy:access"
	audienceRefresh = "studybuddy:refresh"

	clockSkew = 30 * time.Second
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims carries the email so a refreshed access token keeps it.
// TokenID names the Redis entry that keeps the token alive.
type RefreshClaims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email"`
	TokenID string `json:"tid"`
	jwt.RegisteredClaims
}

// JWTManager signs HS256 tokens. Access and refresh tokens use separate
// secrets and audiences so neither can stand in for the other.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration

	accessParser  *jwt.Parser
	refreshParser *jwt.Parser
	now           func() time.Time
}

func NewJWTManager(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		accessParser:  newParser(audienceAccess),
		refreshParser: newParser(audienceRefresh),
		now:           time.Now,
	}
}

func newParser(audience string) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
}

func (m *JWTManager) sign(claims jwt.Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func registered(audience, subject string, issued time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
}

// GenerateTokenPair signs a new access/refresh pair and returns the refresh
// token ID alongside it.
func (m *JWTManager) GenerateTokenPair(userID, email string) (*TokenPair, string, error) {
	issued := m.now()
	tokenID := uuid.NewString()

	access, err := m.sign(AccessClaims{
		UserID:           userID,
		Email:            email,
		RegisteredClaims: registered(audienceAccess, userID, issued, m.accessExpiry),
	}, m.accessSecret)
	if err != nil {
		return nil, "", fmt.Errorf("signing access token: %w", err)
	}

	refreshClaims := RefreshClaims{
		UserID:           userID,
		Email:            email,
		TokenID:          tokenID,
		RegisteredClaims: registered(audienceRefresh, userID, issued, m.refreshExpiry),
	}
	refreshClaims.ID = tokenID
	refresh, err := m.sign(refreshClaims, m.refreshSecret)
	if err != nil {
		return nil, "", fmt.Errorf("signing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessExpiry / time.Second),
	}, tokenID, nil
}

func (m *JWTManager) ValidateAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.accessParser.ParseWithClaims(raw, claims, secretFunc(m.accessSecret)); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	return claims, nil
}

func (m *JWTManager) ValidateRefreshToken(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if _, err := m.refreshParser.ParseWithClaims(raw, claims, secretFunc(m.refreshSecret)); err != nil {
		return nil, fmt.Errorf("parsing refresh token: %w", err)
	}
	if claims.TokenID == "" {
		return nil, fmt.Errorf("parsing refresh token: missing token id")
	}
	return claims, nil
}

func secretFunc(secret []byte) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return secret, nil
	}
}

func (m *JWTManager) RefreshExpiry() time.Duration {
	return m.refreshExpiry
}
