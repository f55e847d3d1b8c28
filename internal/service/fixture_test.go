package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/ledger"
	"mivoto/internal/repository"
	"mivoto/internal/service/identity"
	"mivoto/pkg/credential"
	"mivoto/pkg/hashing"
	"mivoto/pkg/redis"
)

const testWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedLedger fails mutating calls with the configured errors
type scriptedLedger struct {
	*ledger.Simulated
	mu        sync.Mutex
	issueErr  error
	castErr   error
	lookupErr error
}

func (l *scriptedLedger) IssueToken(ctx context.Context, tokenHash, wallet string) (*ledger.TxReceipt, error) {
	l.mu.Lock()
	err := l.issueErr
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.Simulated.IssueToken(ctx, tokenHash, wallet)
}

func (l *scriptedLedger) CastVote(ctx context.Context, ballotID uint64, tokenHash, voteHash, receipt string) (*ledger.TxReceipt, error) {
	l.mu.Lock()
	err := l.castErr
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.Simulated.CastVote(ctx, ballotID, tokenHash, voteHash, receipt)
}

func (l *scriptedLedger) IsReceiptRegistered(ctx context.Context, receipt string) (bool, error) {
	l.mu.Lock()
	err := l.lookupErr
	l.mu.Unlock()
	if err != nil {
		return false, err
	}
	return l.Simulated.IsReceiptRegistered(ctx, receipt)
}

func (l *scriptedLedger) setIssueErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issueErr = err
}

func (l *scriptedLedger) setCastErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.castErr = err
}

func (l *scriptedLedger) setLookupErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookupErr = err
}

type fixture struct {
	clock       *fakeClock
	hasher      *hashing.Hasher
	repos       *repository.Repositories
	eligibility *repository.MemoryEligibilityRepository
	votes       *repository.MemoryVoteRecordRepository
	results     *repository.MemoryBallotResultRepository
	auditLog    *repository.MemoryAuditRepository
	ledger      *scriptedLedger
	cache       *CacheService
	redis       *miniredis.Miniredis

	issuer  *EligibilityManager
	ballots *BallotCatalog
	voting  *VoteCastingEngine
	tally   *TallyEngine
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	withRedis bool
}

func withRedis() fixtureOption {
	return func(c *fixtureConfig) { c.withRedis = true }
}

// newFixture builds every service on in-memory stores and a simulated
// ledger. Ballots:
//
//	"1"   open, multiple selection, [cand-1 cand-2 cand-4]; cand-4 inactive
//	"2"   open, single selection, [cand-1 cand-2]
//	"3"   open for one more hour, [cand-1 cand-2]
//	"4"   closed, [cand-1 cand-2]
//	"abc" open, non-numeric id
//	"5"   not yet open
//
// cand-3 belongs to the institution but to no ballot; cand-x belongs to
// another institution.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := &fixtureConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clock := &fakeClock{now: baseTime}
	log := zap.NewNop()

	catalog := repository.NewMemoryCatalog()
	catalog.PutInstitution(&domain.Institution{ID: "inst-1", Name: "Colegio Central", Active: true})
	catalog.PutInstitution(&domain.Institution{ID: "inst-2", Name: "Liceo Norte", Active: true})
	for _, c := range []*domain.Candidate{
		{ID: "cand-1", InstitutionID: "inst-1", DisplayName: "Ana Rojas", ListName: "Lista A", Active: true},
		{ID: "cand-2", InstitutionID: "inst-1", DisplayName: "Bruno Diaz", ListName: "Lista B", Active: true},
		{ID: "cand-3", InstitutionID: "inst-1", DisplayName: "Carla Soto", ListName: "Lista C", Active: true},
		{ID: "cand-4", InstitutionID: "inst-1", DisplayName: "Dario Paz", ListName: "Lista D", Active: false},
		{ID: "cand-x", InstitutionID: "inst-2", DisplayName: "Xavier Luna", ListName: "Lista X", Active: true},
	} {
		catalog.PutCandidate(c)
	}

	hourAgo := baseTime.Add(-time.Hour)
	inHour := baseTime.Add(time.Hour)
	tomorrow := baseTime.Add(24 * time.Hour)
	catalog.PutBallot(&domain.Ballot{ID: "1", InstitutionID: "inst-1", Title: "Consejo", CandidateIDs: []string{"cand-1", "cand-2", "cand-4"}, AllowMultipleSelection: true})
	catalog.PutBallot(&domain.Ballot{ID: "2", InstitutionID: "inst-1", Title: "Presidencia", CandidateIDs: []string{"cand-1", "cand-2"}})
	catalog.PutBallot(&domain.Ballot{ID: "3", InstitutionID: "inst-1", Title: "Tesoreria", CandidateIDs: []string{"cand-1", "cand-2"}, OpensAt: &hourAgo, ClosesAt: &inHour})
	catalog.PutBallot(&domain.Ballot{ID: "4", InstitutionID: "inst-1", Title: "Secretaria", CandidateIDs: []string{"cand-1", "cand-2"}, ClosesAt: &hourAgo})
	catalog.PutBallot(&domain.Ballot{ID: "abc", InstitutionID: "inst-1", Title: "Delegados", CandidateIDs: []string{"cand-1"}})
	catalog.PutBallot(&domain.Ballot{ID: "5", InstitutionID: "inst-1", Title: "Vocales", CandidateIDs: []string{"cand-1"}, OpensAt: &tomorrow})

	repos := repository.NewMemoryRepositories(catalog)

	hasher, err := hashing.New("pepper-s", "pepper-t")
	require.NoError(t, err)
	codec, err := credential.NewCodec("credential-secret")
	require.NoError(t, err)

	f := &fixture{
		clock:       clock,
		hasher:      hasher,
		repos:       repos,
		eligibility: repos.Eligibility.(*repository.MemoryEligibilityRepository),
		votes:       repos.Votes.(*repository.MemoryVoteRecordRepository),
		results:     repos.Results.(*repository.MemoryBallotResultRepository),
		auditLog:    repos.Audit.(*repository.MemoryAuditRepository),
		ledger:      &scriptedLedger{Simulated: ledger.NewSimulated()},
	}

	var redisClient *redis.Client
	if cfg.withRedis {
		f.redis = miniredis.RunT(t)
		rdb := goredis.NewClient(&goredis.Options{Addr: f.redis.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		redisClient = redis.NewFromRedis(rdb, "test", log)
	}
	f.cache = NewCacheService(redisClient, log)

	policy := ledger.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, Multiplier: 1}
	gateway := ledger.NewGateway(f.ledger, policy, log)
	audit := NewAuditService(repos.Audit, log).WithClock(clock.Now)

	f.issuer = NewEligibilityService(identity.NewStubVerifier(), hasher, codec, gateway, repos.Eligibility, audit, 2*time.Hour, log).WithClock(clock.Now)
	f.ballots = NewBallotService(repos, f.cache, log).WithClock(clock.Now)
	f.voting = NewVotingService(f.ballots, repos, f.issuer, hasher, gateway, f.cache, audit, log).WithClock(clock.Now)
	f.tally = NewTallyService(f.ballots, repos, hasher, f.cache, audit, log).WithClock(clock.Now)
	return f
}

// stubAssertion builds a stub identity assertion for subject
func stubAssertion(subject string) string {
	payload, _ := json.Marshal(map[string]string{"sub": subject})
	return identity.StubAssertion + "." + base64.RawURLEncoding.EncodeToString(payload)
}

func (f *fixture) issue(t *testing.T, subject string) string {
	t.Helper()
	cred, err := f.issuer.IssueEligibility(context.Background(), domain.IssueRequest{
		IdentityAssertion: stubAssertion(subject),
		WalletAddress:     testWallet,
	})
	require.NoError(t, err)
	return cred.Token
}

func (f *fixture) cast(ballotID, token string, candidateIDs ...string) (*domain.CastVoteResult, error) {
	return f.voting.CastVote(context.Background(), domain.CastVoteRequest{
		BallotID:         ballotID,
		EligibilityToken: token,
		Selection:        domain.Selection{InstitutionID: "inst-1", CandidateIDs: candidateIDs},
	})
}

func (f *fixture) auditActions() []string {
	var actions []string
	for _, e := range f.auditLog.Events() {
		actions = append(actions, e.Action)
	}
	return actions
}
