package repository

import (
	"context"
	"sort"
	"sync"

	"mivoto/internal/domain"
)

// In-memory repositories back development mode and tests. Each guards its
// state with a single mutex so check-and-insert is atomic.

type MemoryEligibilityRepository struct {
	mu      sync.Mutex
	byToken map[string]*domain.VoterEligibility
}

func NewMemoryEligibilityRepository() *MemoryEligibilityRepository {
	return &MemoryEligibilityRepository{byToken: make(map[string]*domain.VoterEligibility)}
}

func (r *MemoryEligibilityRepository) FindActiveBySubjectHash(_ context.Context, subjectHash string) (*domain.VoterEligibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.byToken {
		if e.SubjectHash == subjectHash && e.IsActive() {
			clone := *e
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryEligibilityRepository) FindByTokenHash(_ context.Context, tokenHash string) (*domain.VoterEligibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byToken[tokenHash]
	if !ok {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (r *MemoryEligibilityRepository) Save(_ context.Context, e *domain.VoterEligibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.IsActive() {
		for _, existing := range r.byToken {
			if existing.SubjectHash == e.SubjectHash && existing.IsActive() {
				return ErrActiveEligibilityExists
			}
		}
	}

	clone := *e
	r.byToken[e.TokenHash] = &clone
	return nil
}

func (r *MemoryEligibilityRepository) MarkConsumed(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byToken[tokenHash]; ok && e.IsActive() {
		e.Status = domain.EligibilityConsumed
	}
	return nil
}

type MemoryVoteRecordRepository struct {
	mu        sync.Mutex
	records   []*domain.VoteRecord
	byBallot  map[string]map[string]struct{} // ballot id -> subject hashes
	byReceipt map[string]*domain.VoteRecord
}

func NewMemoryVoteRecordRepository() *MemoryVoteRecordRepository {
	return &MemoryVoteRecordRepository{
		byBallot:  make(map[string]map[string]struct{}),
		byReceipt: make(map[string]*domain.VoteRecord),
	}
}

func (r *MemoryVoteRecordRepository) Save(_ context.Context, v *domain.VoteRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subjects, ok := r.byBallot[v.BallotID]
	if !ok {
		subjects = make(map[string]struct{})
		r.byBallot[v.BallotID] = subjects
	}
	if _, voted := subjects[v.SubjectHash]; voted {
		return domain.ErrAlreadyVoted
	}

	clone := *v
	clone.CandidateIDs = append([]string(nil), v.CandidateIDs...)
	subjects[v.SubjectHash] = struct{}{}
	r.records = append(r.records, &clone)
	r.byReceipt[v.Receipt] = &clone
	return nil
}

func (r *MemoryVoteRecordRepository) FindByReceipt(_ context.Context, receipt string) (*domain.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byReceipt[receipt]
	if !ok {
		return nil, nil
	}
	clone := *v
	return &clone, nil
}

func (r *MemoryVoteRecordRepository) ExistsByBallotIDAndSubjectHash(_ context.Context, ballotID, subjectHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byBallot[ballotID][subjectHash]
	return ok, nil
}

func (r *MemoryVoteRecordRepository) ExistsBySubjectHash(_ context.Context, subjectHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, subjects := range r.byBallot {
		if _, ok := subjects[subjectHash]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryVoteRecordRepository) TallyByBallot(_ context.Context, ballotID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int64)
	for _, v := range r.records {
		if v.BallotID != ballotID {
			continue
		}
		for _, candidateID := range v.CandidateIDs {
			counts[candidateID]++
		}
	}
	return counts, nil
}

// Count returns the number of stored records
func (r *MemoryVoteRecordRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// MemoryCatalog holds ballots, candidates and institutions
type MemoryCatalog struct {
	mu           sync.RWMutex
	ballots      map[string]*domain.Ballot
	candidates   map[string]*domain.Candidate
	institutions map[string]*domain.Institution
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		ballots:      make(map[string]*domain.Ballot),
		candidates:   make(map[string]*domain.Candidate),
		institutions: make(map[string]*domain.Institution),
	}
}

func (c *MemoryCatalog) PutBallot(b *domain.Ballot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *b
	clone.CandidateIDs = append([]string(nil), b.CandidateIDs...)
	c.ballots[b.ID] = &clone
}

func (c *MemoryCatalog) PutCandidate(cand *domain.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *cand
	c.candidates[cand.ID] = &clone
}

func (c *MemoryCatalog) PutInstitution(i *domain.Institution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *i
	c.institutions[i.ID] = &clone
}

// Ballots returns the catalog as a BallotRepository
func (c *MemoryCatalog) Ballots() BallotRepository { return memoryBallots{c} }

// Candidates returns the catalog as a CandidateRepository
func (c *MemoryCatalog) Candidates() CandidateRepository { return memoryCandidates{c} }

// Institutions returns the catalog as an InstitutionRepository
func (c *MemoryCatalog) Institutions() InstitutionRepository { return memoryInstitutions{c} }

type memoryBallots struct{ c *MemoryCatalog }

func (m memoryBallots) FindByID(_ context.Context, id string) (*domain.Ballot, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()

	b, ok := m.c.ballots[id]
	if !ok {
		return nil, nil
	}
	clone := *b
	clone.CandidateIDs = append([]string(nil), b.CandidateIDs...)
	return &clone, nil
}

func (m memoryBallots) List(_ context.Context) ([]*domain.Ballot, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()

	ballots := make([]*domain.Ballot, 0, len(m.c.ballots))
	for _, b := range m.c.ballots {
		clone := *b
		clone.CandidateIDs = append([]string(nil), b.CandidateIDs...)
		ballots = append(ballots, &clone)
	}
	sort.Slice(ballots, func(i, j int) bool { return ballots[i].ID < ballots[j].ID })
	return ballots, nil
}

type memoryCandidates struct{ c *MemoryCatalog }

func (m memoryCandidates) FindByID(_ context.Context, id string) (*domain.Candidate, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()

	cand, ok := m.c.candidates[id]
	if !ok {
		return nil, nil
	}
	clone := *cand
	return &clone, nil
}

func (m memoryCandidates) FindByIDs(_ context.Context, ids []string) (map[string]*domain.Candidate, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()

	found := make(map[string]*domain.Candidate, len(ids))
	for _, id := range ids {
		if cand, ok := m.c.candidates[id]; ok {
			clone := *cand
			found[id] = &clone
		}
	}
	return found, nil
}

type memoryInstitutions struct{ c *MemoryCatalog }

func (m memoryInstitutions) FindByID(_ context.Context, id string) (*domain.Institution, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()

	i, ok := m.c.institutions[id]
	if !ok {
		return nil, nil
	}
	clone := *i
	return &clone, nil
}

type MemoryBallotResultRepository struct {
	mu      sync.Mutex
	results map[string]*domain.BallotResult
	saves   int
}

func NewMemoryBallotResultRepository() *MemoryBallotResultRepository {
	return &MemoryBallotResultRepository{results: make(map[string]*domain.BallotResult)}
}

func (r *MemoryBallotResultRepository) FindByBallotID(_ context.Context, ballotID string) (*domain.BallotResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[ballotID]
	if !ok {
		return nil, nil
	}
	return cloneResult(res), nil
}

func (r *MemoryBallotResultRepository) Save(_ context.Context, res *domain.BallotResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.results[res.BallotID]; ok {
		return ErrResultExists
	}
	r.results[res.BallotID] = cloneResult(res)
	r.saves++
	return nil
}

// Saves returns how many results were written
func (r *MemoryBallotResultRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func cloneResult(res *domain.BallotResult) *domain.BallotResult {
	clone := *res
	clone.CandidateVotes = make(map[string]int64, len(res.CandidateVotes))
	for k, v := range res.CandidateVotes {
		clone.CandidateVotes[k] = v
	}
	return &clone
}

type MemoryAuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Save(_ context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Events returns a copy of the recorded events
func (r *MemoryAuditRepository) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}

// NewMemoryRepositories wires every in-memory repository around catalog
func NewMemoryRepositories(catalog *MemoryCatalog) *Repositories {
	return &Repositories{
		Eligibility:  NewMemoryEligibilityRepository(),
		Votes:        NewMemoryVoteRecordRepository(),
		Ballots:      catalog.Ballots(),
		Candidates:   catalog.Candidates(),
		Institutions: catalog.Institutions(),
		Results:      NewMemoryBallotResultRepository(),
		Audit:        NewMemoryAuditRepository(),
	}
}
