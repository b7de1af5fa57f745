package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/pkg/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockStore) FindMostRecent(ctx context.Context, scope string) (*domain.OTPRecord, error) {
	args := m.Called(ctx, scope)
	if r, _ := args.Get(0).(*domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) FindPending(ctx context.Context, scope string) ([]domain.OTPRecord, error) {
	args := m.Called(ctx, scope)
	if r, _ := args.Get(0).([]domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) IncrementAttempts(ctx context.Context, scope, otpID string) (int, error) {
	args := m.Called(ctx, scope, otpID)
	return args.Int(0), args.Error(1)
}
func (m *mockStore) UpdateStatus(ctx context.Context, scope, otpID string, status domain.OTPStatus, verifiedAt *time.Time) error {
	return m.Called(ctx, scope, otpID, status, verifiedAt).Error(0)
}
func (m *mockStore) ExpiredBefore(ctx context.Context, cutoff, now time.Time) ([]domain.OTPRecord, error) {
	args := m.Called(ctx, cutoff, now)
	if r, _ := args.Get(0).([]domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, scope, otpID string) error {
	return m.Called(ctx, scope, otpID).Error(0)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) Put(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type mockDispatcher struct {
	mock.Mock
	mu    sync.Mutex
	codes []string
}

func (m *mockDispatcher) Dispatch(identifier string, purpose domain.Purpose, code string) {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()
	m.Called(identifier, purpose, code)
}

// --- builders ---

const testCipherKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

var ownerID = "01HX5K7Q8R9S0T1U2V3W4X5Y6Z"

func testCipher(t *testing.T) cipher.CodeCipher {
	t.Helper()
	c, err := cipher.New(testCipherKey)
	require.NoError(t, err)
	return c
}

func newTestService(t *testing.T, store otpStore, disp *mockDispatcher, archive archiveStore) Service {
	t.Helper()
	if disp == nil {
		disp = &mockDispatcher{}
		disp.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Maybe()
	}
	return NewService(ServiceDeps{
		Store:      store,
		Cipher:     testCipher(t),
		Dispatcher: disp,
		Archive:    archive,
		Policy: Policy{
			TTL:         5 * time.Minute,
			CodeLength:  6,
			MaxAttempts: map[domain.Purpose]int{domain.PurposePasswordReset: 3},
			Retention:   24 * time.Hour,
		},
	})
}

func testScope() string {
	return domain.OTPScope(domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset)
}

func pendingRecord(t *testing.T, code string) *domain.OTPRecord {
	t.Helper()
	enc, err := testCipher(t).Encrypt(code)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.OTPRecord{
		OTPID:       "01HX5K7QAAAAAAAAAAAAAAAAAA",
		Scope:       testScope(),
		OwnerKind:   domain.KindClient,
		OwnerID:     &ownerID,
		Identifier:  "a@b.com",
		Purpose:     domain.PurposePasswordReset,
		Code:        enc,
		Status:      domain.OTPPending,
		ExpiresAt:   now.Add(5 * time.Minute).Unix(),
		Attempts:    0,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- Issue ---

func TestIssue_SupersedesPendingBeforeCreate(t *testing.T) {
	store := &mockStore{}
	disp := &mockDispatcher{}
	old := pendingRecord(t, "111111")

	store.On("FindPending", mock.Anything, testScope()).Return([]domain.OTPRecord{*old}, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), old.OTPID, domain.OTPExpired, mock.Anything).Return(nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)
	disp.On("Dispatch", "a@b.com", domain.PurposePasswordReset, mock.Anything).Return()

	svc := newTestService(t, store, disp, nil)
	rec, err := svc.Issue(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset)

	require.NoError(t, err)
	assert.Equal(t, domain.OTPPending, rec.Status)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.NotEqual(t, old.OTPID, rec.OTPID)
	store.AssertExpectations(t)
	disp.AssertExpectations(t)
}

func TestIssue_DispatchedCodeMatchesStoredCode(t *testing.T) {
	store := &mockStore{}
	disp := &mockDispatcher{}
	var created *domain.OTPRecord

	store.On("FindPending", mock.Anything, testScope()).Return([]domain.OTPRecord{}, nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.OTPRecord)
	}).Return(nil)
	disp.On("Dispatch", "a@b.com", domain.PurposePasswordReset, mock.Anything).Return()

	svc := newTestService(t, store, disp, nil)
	_, err := svc.Issue(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset)
	require.NoError(t, err)

	require.Len(t, disp.codes, 1)
	assert.Len(t, disp.codes[0], 6)
	stored, err := testCipher(t).Decrypt(created.Code)
	require.NoError(t, err)
	assert.Equal(t, disp.codes[0], stored)
}

func TestIssue_InvalidInputs(t *testing.T) {
	svc := newTestService(t, &mockStore{}, nil, nil)

	_, err := svc.Issue(context.Background(), domain.KindClient, nil, "", domain.PurposePasswordReset)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	_, err = svc.Issue(context.Background(), "ghost", nil, "a@b.com", domain.PurposePasswordReset)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	_, err = svc.Issue(context.Background(), domain.KindClient, nil, "a@b.com", "mystery")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestIssue_StoreFailureWrapsIssuance(t *testing.T) {
	store := &mockStore{}
	store.On("FindPending", mock.Anything, mock.Anything).Return([]domain.OTPRecord{}, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(fmt.Errorf("dynamo down"))

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Issue(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIssuance))
}

// --- Verify decision table ---

func TestVerify_NoRecord(t *testing.T) {
	store := &mockStore{}
	store.On("FindMostRecent", mock.Anything, testScope()).Return(nil, domain.ErrNotFound)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPNotFound))
}

func TestVerify_IdentifierMustMatchIssuedRecord(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)

	svc := newTestService(t, store, nil, nil)
	// Same owner, same purpose, correct code, but the code went to a@b.com.
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "evil@x.com", domain.PurposePasswordReset, "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPNotFound))
	store.AssertNotCalled(t, "IncrementAttempts", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_AlreadyVerified(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.Status = domain.OTPVerified
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyVerified))
}

func TestVerify_LazyExpiry_TransitionsPendingRecord(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), rec.OTPID, domain.OTPExpired, mock.Anything).Return(nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPExpired))
	store.AssertExpectations(t)
}

func TestVerify_ExpiryWinsOverAttemptBudget(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	rec.Attempts = 3
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), rec.OTPID, domain.OTPExpired, mock.Anything).Return(nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPExpired))
}

func TestVerify_ExhaustedBudget(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.Attempts = 3
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), rec.OTPID, domain.OTPFailed, mock.Anything).Return(nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTooManyAttempts))
	store.AssertExpectations(t)
}

func TestVerify_WrongCode_ReportsAttemptsRemaining(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("IncrementAttempts", mock.Anything, testScope(), rec.OTPID).Return(1, nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "999999")
	require.Error(t, err)

	var invalid *domain.InvalidCodeError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 2, invalid.AttemptsRemaining)
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
}

func TestVerify_WrongCodeExhaustsBudget(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.Attempts = 2
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("IncrementAttempts", mock.Anything, testScope(), rec.OTPID).Return(3, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), rec.OTPID, domain.OTPFailed, mock.Anything).Return(nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "999999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTooManyAttempts))
	store.AssertExpectations(t)
}

func TestVerify_CorrectCode_AttemptStillConsumed(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("IncrementAttempts", mock.Anything, testScope(), rec.OTPID).Return(1, nil)
	store.On("UpdateStatus", mock.Anything, testScope(), rec.OTPID, domain.OTPVerified, mock.Anything).Return(nil)

	svc := newTestService(t, store, nil, nil)
	out, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")

	require.NoError(t, err)
	assert.Equal(t, domain.OTPVerified, out.Status)
	assert.Equal(t, 1, out.Attempts)
	require.NotNil(t, out.VerifiedAt)
	store.AssertExpectations(t)
}

func TestVerify_IncrementConflict_Classified(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil).Once()
	store.On("IncrementAttempts", mock.Anything, testScope(), rec.OTPID).Return(0, domain.ErrConflict)

	winner := *rec
	winner.Status = domain.OTPVerified
	store.On("FindMostRecent", mock.Anything, testScope()).Return(&winner, nil).Once()

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyVerified))
}

func TestVerify_CorruptedStoredCode(t *testing.T) {
	store := &mockStore{}
	rec := pendingRecord(t, "123456")
	rec.Code = "not-a-ciphertext"
	store.On("FindMostRecent", mock.Anything, testScope()).Return(rec, nil)
	store.On("IncrementAttempts", mock.Anything, testScope(), rec.OTPID).Return(1, nil)

	svc := newTestService(t, store, nil, nil)
	_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCorruptedRecord))
}

// --- PurgeExpired ---

func TestPurgeExpired_SkipsRecordsThatFailToArchive(t *testing.T) {
	store := &mockStore{}
	archive := &mockArchive{}
	a := *pendingRecord(t, "111111")
	a.OTPID = "01HX5K7QAAAAAAAAAAAAAAAAA1"
	a.Status = domain.OTPVerified
	b := *pendingRecord(t, "222222")
	b.OTPID = "01HX5K7QAAAAAAAAAAAAAAAAA2"
	b.Status = domain.OTPFailed

	store.On("ExpiredBefore", mock.Anything, mock.Anything, mock.Anything).Return([]domain.OTPRecord{a, b}, nil)
	archive.On("Put", mock.Anything, mock.MatchedBy(func(r *domain.OTPRecord) bool { return r.OTPID == a.OTPID })).Return(nil)
	archive.On("Put", mock.Anything, mock.MatchedBy(func(r *domain.OTPRecord) bool { return r.OTPID == b.OTPID })).Return(fmt.Errorf("s3 down"))
	store.On("Delete", mock.Anything, a.Scope, a.OTPID).Return(nil)

	svc := newTestService(t, store, nil, archive)
	n, err := svc.PurgeExpired(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertNotCalled(t, "Delete", mock.Anything, b.Scope, b.OTPID)
}

// --- full lifecycle against a CAS-faithful in-memory store ---

type memStore struct {
	mu  sync.Mutex
	rec *domain.OTPRecord
}

func (s *memStore) Create(_ context.Context, rec *domain.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rec = &cp
	return nil
}

func (s *memStore) FindMostRecent(_ context.Context, scope string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.Scope != scope {
		return nil, domain.ErrNotFound
	}
	cp := *s.rec
	return &cp, nil
}

func (s *memStore) FindPending(_ context.Context, scope string) ([]domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil && s.rec.Scope == scope && s.rec.Status == domain.OTPPending {
		return []domain.OTPRecord{*s.rec}, nil
	}
	return nil, nil
}

func (s *memStore) IncrementAttempts(_ context.Context, scope, otpID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.Scope != scope || s.rec.OTPID != otpID {
		return 0, domain.ErrNotFound
	}
	if s.rec.Status != domain.OTPPending || s.rec.Attempts >= s.rec.MaxAttempts {
		return 0, domain.ErrConflict
	}
	s.rec.Attempts++
	return s.rec.Attempts, nil
}

func (s *memStore) UpdateStatus(_ context.Context, scope, otpID string, status domain.OTPStatus, verifiedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.Scope != scope || s.rec.OTPID != otpID {
		return domain.ErrNotFound
	}
	if s.rec.Status != domain.OTPPending {
		return domain.ErrConflict
	}
	s.rec.Status = status
	s.rec.VerifiedAt = verifiedAt
	return nil
}

func (s *memStore) ExpiredBefore(_ context.Context, _, _ time.Time) ([]domain.OTPRecord, error) {
	return nil, nil
}

func (s *memStore) Delete(_ context.Context, _, _ string) error { return nil }

func TestVerify_Lifecycle_ThreeWrongCodesLockTheRecord(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), pendingRecord(t, "123456")))
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	for _, want := range []int{2, 1} {
		_, err := svc.Verify(ctx, domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "000000")
		var invalid *domain.InvalidCodeError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, want, invalid.AttemptsRemaining)
	}

	_, err := svc.Verify(ctx, domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "000000")
	assert.True(t, errors.Is(err, domain.ErrTooManyAttempts))

	// The budget is spent. The correct code no longer helps.
	_, err = svc.Verify(ctx, domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
	assert.True(t, errors.Is(err, domain.ErrTooManyAttempts))
	assert.Equal(t, domain.OTPFailed, store.rec.Status)
}

func TestVerify_ConcurrentCorrectSubmissions_ExactlyOneWins(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), pendingRecord(t, "123456")))
	svc := newTestService(t, store, nil, nil)

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "123456")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		ok := errors.Is(err, domain.ErrAlreadyVerified) || errors.Is(err, domain.ErrTooManyAttempts)
		assert.True(t, ok, "unexpected loser error: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, domain.OTPVerified, store.rec.Status)
}

func TestVerify_ConcurrentWrongSubmissions_BudgetNeverOvershoots(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), pendingRecord(t, "123456")))
	svc := newTestService(t, store, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Verify(context.Background(), domain.KindClient, &ownerID, "a@b.com", domain.PurposePasswordReset, "000000")
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, store.rec.Attempts)
	assert.NotEqual(t, domain.OTPVerified, store.rec.Status)
}
