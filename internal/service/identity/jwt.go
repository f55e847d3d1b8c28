package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"mivoto/internal/domain"
)

// JWTVerifier accepts HMAC-signed ID tokens from a trusted issuer
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier checks issuer and audience when they are set
func NewJWTVerifier(secret, issuer, audience string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &JWTVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, assertion string) (*domain.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(assertion, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, rejected("invalid id token", err)
	}
	if !token.Valid {
		return nil, rejected("invalid id token", nil)
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, rejected("id token missing subject", err)
	}

	return &domain.Identity{Subject: subject, Attributes: profileAttributes(claims)}, nil
}

// profileAttributes keeps the optional profile claims
func profileAttributes(claims map[string]interface{}) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, key := range []string{"given_name", "family_name", "email"} {
		if v, ok := claims[key].(string); ok && v != "" {
			attrs[key] = v
		}
	}
	return attrs
}
