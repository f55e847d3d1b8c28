package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/ledger"
	"mivoto/internal/repository"
	"mivoto/internal/service/identity"
	"mivoto/pkg/credential"
	apperrors "mivoto/pkg/errors"
	"mivoto/pkg/hashing"
)

const (
	// DefaultEligibilityTTL is how long an issued credential stays usable
	DefaultEligibilityTTL = 2 * time.Hour

	secretBytes = 32
	saltBytes   = 16
)

// EligibilityManager issues single-use credentials to verified identities
type EligibilityManager struct {
	verifier identity.Verifier
	hasher   *hashing.Hasher
	codec    *credential.Codec
	gateway  *ledger.Gateway
	repo     repository.EligibilityRepository
	audit    *AuditService
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
	random   io.Reader
}

// NewEligibilityService wires the eligibility manager
func NewEligibilityService(
	verifier identity.Verifier,
	hasher *hashing.Hasher,
	codec *credential.Codec,
	gateway *ledger.Gateway,
	repo repository.EligibilityRepository,
	audit *AuditService,
	ttl time.Duration,
	logger *zap.Logger,
) *EligibilityManager {
	if ttl <= 0 {
		ttl = DefaultEligibilityTTL
	}
	return &EligibilityManager{
		verifier: verifier,
		hasher:   hasher,
		codec:    codec,
		gateway:  gateway,
		repo:     repo,
		audit:    audit,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// WithClock overrides the time source
func (s *EligibilityManager) WithClock(now func() time.Time) *EligibilityManager {
	s.now = now
	return s
}

// IssueEligibility registers the credential on the ledger before anything
// is persisted, so a ledger failure leaves no usable off-chain record
func (s *EligibilityManager) IssueEligibility(ctx context.Context, req domain.IssueRequest) (*domain.IssuedCredential, error) {
	ident, err := s.verifier.Verify(ctx, req.IdentityAssertion)
	if err != nil {
		s.logger.Info("Identity assertion rejected", zap.Error(err))
		return nil, apperrors.NewEligibilityError("Identity assertion is invalid or expired", err)
	}

	wallet := strings.TrimSpace(req.WalletAddress)
	if !common.IsHexAddress(wallet) {
		return nil, apperrors.NewEligibilityError("A valid wallet address is required", domain.ErrInvalidWallet)
	}
	wallet = common.HexToAddress(wallet).Hex()

	subjectHash := s.hasher.HashSubject(ident.Subject)
	log := s.logger.With(zap.String("subject_hash", subjectHash))

	if err := s.supersede(ctx, subjectHash); err != nil {
		return nil, err
	}

	secret, salt, err := s.newSecret()
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to generate credential", err)
	}
	tokenHash := s.hasher.HashToken(secret, salt)

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)

	tx, err := s.gateway.IssueToken(ctx, tokenHash, wallet).Wait(ctx)
	if err != nil {
		log.Warn("Ledger rejected credential registration", zap.Error(err))
		return nil, apperrors.NewLedgerError("Failed to register credential on ledger", err, ledger.IsRetryable(err))
	}

	eligibility := &domain.VoterEligibility{
		ID:            uuid.NewString(),
		SubjectHash:   subjectHash,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		TokenHash:     tokenHash,
		WalletAddress: wallet,
		Status:        domain.EligibilityActive,
		IssuedBy:      domain.ActorIdentityService,
	}
	if err := s.repo.Save(ctx, eligibility); err != nil {
		log.Error("Failed to persist eligibility after ledger registration",
			zap.String("tx_hash", tx.TxHash),
			zap.Error(err))
		if errors.Is(err, repository.ErrActiveEligibilityExists) {
			return nil, apperrors.NewEligibilityError("Another credential was issued concurrently, please retry", err)
		}
		return nil, apperrors.NewInternalError("Failed to persist eligibility", err)
	}

	s.audit.Record(ctx, domain.ActorIdentityService, domain.AuditEligibilityIssued, map[string]string{
		"eligibilityId": eligibility.ID,
		"subjectHash":   subjectHash,
	})

	token, err := s.codec.Encode(secret, salt, expiresAt)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to encode credential", err)
	}

	log.Info("Eligibility issued",
		zap.String("eligibility_id", eligibility.ID),
		zap.String("tx_hash", tx.TxHash),
		zap.Time("expires_at", expiresAt))

	return &domain.IssuedCredential{Token: token, ExpiresAt: expiresAt}, nil
}

// supersede consumes any credential the subject still holds
func (s *EligibilityManager) supersede(ctx context.Context, subjectHash string) error {
	active, err := s.repo.FindActiveBySubjectHash(ctx, subjectHash)
	if err != nil {
		return apperrors.NewInternalError("Failed to look up eligibility", err)
	}
	if active == nil {
		return nil
	}

	if err := s.repo.MarkConsumed(ctx, active.TokenHash); err != nil {
		return apperrors.NewInternalError("Failed to supersede previous eligibility", err)
	}
	s.logger.Info("Superseded previous eligibility", zap.String("eligibility_id", active.ID))
	return nil
}

func (s *EligibilityManager) newSecret() (string, []byte, error) {
	raw := make([]byte, secretBytes)
	if _, err := io.ReadFull(s.random, raw); err != nil {
		return "", nil, fmt.Errorf("failed to read secret: %w", err)
	}
	salt := make([]byte, saltBytes)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return "", nil, fmt.Errorf("failed to read salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), salt, nil
}

func (s *EligibilityManager) DecodeToken(token string) (*domain.DecodedCredential, error) {
	secret, salt, expiresAt, err := s.codec.Decode(strings.TrimSpace(token))
	if err != nil {
		return nil, apperrors.NewEligibilityError("Credential is malformed", fmt.Errorf("%w: %v", domain.ErrMalformedCredential, err))
	}
	if !s.now().Before(expiresAt) {
		return nil, apperrors.NewEligibilityError("Credential has expired", domain.ErrCredentialExpired)
	}
	return &domain.DecodedCredential{RawSecret: secret, Salt: salt, ExpiresAt: expiresAt}, nil
}
