package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	json "github.com/goccy/go-json"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/id"
)

const (
	tokenIssuer   = "watchlog-server"
	tokenAudience = "watchlog-client"

	keyBytesSize = 32
	keyHexSize   = 64
)

// TokenService issues and verifies access tokens.
type TokenService struct {
	key      paseto.V4SymmetricKey
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service from a hex-encoded 32-byte key.
func NewTokenService(keyHex string, lifetime time.Duration) (*TokenService, error) {
	raw, err := decodeKey(keyHex)
	if err != nil {
		return nil, err
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("create PASETO symmetric key: %w", err)
	}
	return &TokenService{key: key, lifetime: lifetime, now: time.Now}, nil
}

// Issue creates an access token for user.
func (s *TokenService) Issue(user *domain.User) (string, error) {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(user.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.lifetime))

	jti, err := id.Generate("token")
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	token.SetJti(jti)

	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("user_id", user.ID)
	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("nickname", user.Nickname)

	return token.V4Encrypt(s.key, nil), nil
}

// Verify decrypts tokenString and checks issuer, audience and validity window.
func (s *TokenService) Verify(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, fmt.Errorf("invalid token: subject mismatch")
	}
	return &claims, nil
}

// Lifetime returns the configured token lifetime.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}
