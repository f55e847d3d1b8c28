package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"mivoto/internal/domain"
)

// Stub assertions accepted in development
const (
	StubAssertion      = "stub-id-token"
	stubPrefix         = StubAssertion + "."
	StubDefaultSubject = "stub-user"
)

// StubVerifier accepts "stub-id-token" and "stub-id-token.<base64url JSON>"
// where the JSON carries at least a "sub" claim
type StubVerifier struct{}

func NewStubVerifier() *StubVerifier {
	return &StubVerifier{}
}

func (StubVerifier) Verify(_ context.Context, assertion string) (*domain.Identity, error) {
	if assertion == StubAssertion {
		return &domain.Identity{
			Subject: StubDefaultSubject,
			Attributes: map[string]interface{}{
				"given_name":  "Ciudadano",
				"family_name": "Prueba",
				"email":       "ciudadano@example.com",
			},
		}, nil
	}

	encoded, ok := strings.CutPrefix(assertion, stubPrefix)
	if !ok {
		return nil, rejected("unrecognized stub assertion", nil)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, rejected("invalid stub assertion encoding", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, rejected("invalid stub assertion payload", err)
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return nil, rejected("stub assertion missing subject", nil)
	}

	return &domain.Identity{Subject: subject, Attributes: profileAttributes(claims)}, nil
}

// StubExchanger returns the stub assertion for any code
type StubExchanger struct{}

func (StubExchanger) Exchange(_ context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", rejected("authorization code required", nil)
	}
	return StubAssertion, nil
}
