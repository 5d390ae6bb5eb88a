package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// ErrInvalidBearer is returned for any credential that fails verification.
var ErrInvalidBearer = errors.New("identity: invalid bearer credential")

// IdentityClaims is the subset of identity provider claims this service reads.
type IdentityClaims struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// BearerVerifierConfig selects the verification mode. When Keys is set RS256
// tokens are accepted, otherwise HMACSecret drives HS256.
type BearerVerifierConfig struct {
	Issuer     string
	Audience   []string
	HMACSecret []byte
	Keys       KeyProvider
	Leeway     time.Duration
}

// BearerVerifier validates identity provider tokens and maps them to principals.
type BearerVerifier struct {
	cfg    BearerVerifierConfig
	parser *jwt.Parser
}

// NewBearerVerifier constructs a verifier; one of HMACSecret or Keys is required.
func NewBearerVerifier(cfg BearerVerifierConfig) (*BearerVerifier, error) {
	if cfg.Keys == nil && len(cfg.HMACSecret) == 0 {
		return nil, fmt.Errorf("identity: hmac secret or public keys required")
	}

	methods := []string{jwt.SigningMethodHS256.Alg()}
	if cfg.Keys != nil {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &BearerVerifier{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses bearer and returns the principal it names.
func (v *BearerVerifier) Verify(_ context.Context, bearer string) (*domain.Principal, error) {
	raw := strings.TrimSpace(bearer)
	if raw == "" {
		return nil, ErrInvalidBearer
	}

	claims := &IdentityClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBearer, err)
	}

	if len(v.cfg.Audience) > 0 && !audienceMatches(claims.Audience, v.cfg.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidBearer)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidBearer)
	}

	return &domain.Principal{
		UserID: userID,
		Email:  strings.TrimSpace(claims.Email),
	}, nil
}

func (v *BearerVerifier) keyFunc(token *jwt.Token) (any, error) {
	if v.cfg.Keys == nil {
		return v.cfg.HMACSecret, nil
	}
	kid, _ := token.Header["kid"].(string)
	return v.cfg.Keys.GetVerificationKey(kid)
}

func audienceMatches(got jwt.ClaimStrings, accepted []string) bool {
	for _, a := range got {
		for _, b := range accepted {
			if a == b {
				return true
			}
		}
	}
	return false
}

var _ port.IdentityVerifier = (*BearerVerifier)(nil)
