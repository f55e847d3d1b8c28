package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"mivoto/internal/domain"
)

// GoogleVerifier validates Google-signed ID tokens
type GoogleVerifier struct {
	validator *idtoken.Validator
	clientID  string
	log       *zap.Logger
}

// NewGoogleVerifier validates tokens issued for clientID
func NewGoogleVerifier(ctx context.Context, clientID string, log *zap.Logger) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}

	validator, err := idtoken.NewValidator(ctx, option.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}

	return &GoogleVerifier{validator: validator, clientID: clientID, log: log}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (*domain.Identity, error) {
	payload, err := v.validator.Validate(ctx, assertion, v.clientID)
	if err != nil {
		v.log.Debug("google id token rejected", zap.Error(err))
		return nil, rejected("invalid google id token", err)
	}
	if payload.Subject == "" {
		return nil, rejected("google id token missing subject", nil)
	}

	return &domain.Identity{Subject: payload.Subject, Attributes: profileAttributes(payload.Claims)}, nil
}
