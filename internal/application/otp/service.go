package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/care-auth-api/internal/application/notification"
	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/pkg/cipher"
	"github.com/care-auth-api/internal/pkg/id"
)

// Policy is the issuance configuration consumed by the engine.
type Policy struct {
	TTL         time.Duration
	CodeLength  int
	MaxAttempts map[domain.Purpose]int
	Retention   time.Duration
}

// Service owns the verification-code state machine: it is the only writer of
// otp records. Principal rows are never touched here; callers react to a
// verified transition through their own registry.
type Service interface {
	Issue(ctx context.Context, kind domain.OwnerKind, ownerID *string, identifier string, purpose domain.Purpose) (*domain.OTPRecord, error)
	Verify(ctx context.Context, kind domain.OwnerKind, ownerID *string, identifier string, purpose domain.Purpose, code string) (*domain.OTPRecord, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type otpStore interface {
	Create(ctx context.Context, rec *domain.OTPRecord) error
	FindMostRecent(ctx context.Context, scope string) (*domain.OTPRecord, error)
	FindPending(ctx context.Context, scope string) ([]domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, scope, otpID string) (int, error)
	UpdateStatus(ctx context.Context, scope, otpID string, status domain.OTPStatus, verifiedAt *time.Time) error
	ExpiredBefore(ctx context.Context, cutoff, now time.Time) ([]domain.OTPRecord, error)
	Delete(ctx context.Context, scope, otpID string) error
}

type archiveStore interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
}

type service struct {
	store      otpStore
	codeCipher cipher.CodeCipher
	dispatcher notification.Dispatcher
	archive    archiveStore
	policy     Policy
}

type ServiceDeps struct {
	Store      otpStore
	Cipher     cipher.CodeCipher
	Dispatcher notification.Dispatcher
	Archive    archiveStore
	Policy     Policy
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:      deps.Store,
		codeCipher: deps.Cipher,
		dispatcher: deps.Dispatcher,
		archive:    deps.Archive,
		policy:     deps.Policy,
	}
}

// Issue invalidates any still-pending code for the tuple, persists a fresh
// one, and hands the plaintext to the dispatcher. The call succeeds once the
// record is durable; delivery failures never surface here.
func (s *service) Issue(ctx context.Context, kind domain.OwnerKind, ownerID *string, identifier string, purpose domain.Purpose) (*domain.OTPRecord, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier required: %w", domain.ErrBadRequest)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown owner kind %q: %w", kind, domain.ErrBadRequest)
	}
	if !purpose.Valid() {
		return nil, fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrBadRequest)
	}

	scope := domain.OTPScope(kind, ownerID, identifier, purpose)

	// A tuple holds at most one pending record. Supersede before the new
	// record becomes visible.
	pending, err := s.store.FindPending(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("find pending records: %w", domain.ErrIssuance)
	}
	for i := range pending {
		err := s.store.UpdateStatus(ctx, scope, pending[i].OTPID, domain.OTPExpired, nil)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("supersede pending record: %w", domain.ErrIssuance)
		}
	}

	code, err := generateCode(s.policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", domain.ErrIssuance)
	}
	encrypted, err := s.codeCipher.Encrypt(code)
	if err != nil {
		return nil, fmt.Errorf("encrypt code: %w", domain.ErrIssuance)
	}

	now := time.Now().UTC()
	rec := &domain.OTPRecord{
		OTPID:       id.New(),
		Scope:       scope,
		OwnerKind:   kind,
		OwnerID:     ownerID,
		Identifier:  identifier,
		Purpose:     purpose,
		Code:        encrypted,
		Status:      domain.OTPPending,
		ExpiresAt:   now.Add(s.policy.TTL).Unix(),
		Attempts:    0,
		MaxAttempts: s.maxAttempts(purpose),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist record: %w", domain.ErrIssuance)
	}

	s.dispatcher.Dispatch(identifier, purpose, code)
	return rec, nil
}

// Verify walks the decision table in order: existence, prior success, lazy
// expiry, attempt budget, and only then the code comparison. The attempt
// counter is incremented durably before comparing so concurrent submissions
// can never share a pre-increment value.
func (s *service) Verify(ctx context.Context, kind domain.OwnerKind, ownerID *string, identifier string, purpose domain.Purpose, code string) (*domain.OTPRecord, error) {
	scope := domain.OTPScope(kind, ownerID, identifier, purpose)
	rec, err := s.store.FindMostRecent(ctx, scope)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no code issued for this request: %w", domain.ErrOTPNotFound)
		}
		return nil, err
	}

	// Owner-bound scopes key on the owner id, not the identifier, so the
	// stored identifier is the only proof of where the code was sent. A
	// submission claiming a different address never matches.
	if rec.Identifier != identifier {
		return nil, fmt.Errorf("no code issued for this identifier: %w", domain.ErrOTPNotFound)
	}

	now := time.Now().UTC()
	switch {
	case rec.Status == domain.OTPVerified:
		return nil, fmt.Errorf("code was already used: %w", domain.ErrAlreadyVerified)
	case rec.Status == domain.OTPExpired || rec.Expired(now):
		if rec.Status == domain.OTPPending {
			s.transition(ctx, rec, domain.OTPExpired, nil)
		}
		return nil, fmt.Errorf("request a new code: %w", domain.ErrOTPExpired)
	case rec.Status == domain.OTPFailed || rec.Attempts >= rec.MaxAttempts:
		if rec.Status == domain.OTPPending {
			s.transition(ctx, rec, domain.OTPFailed, nil)
		}
		return nil, fmt.Errorf("request a new code: %w", domain.ErrTooManyAttempts)
	}

	attempts, err := s.store.IncrementAttempts(ctx, scope, rec.OTPID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race: either a concurrent call exhausted the budget or
			// the record left pending. Re-read to classify.
			return nil, s.classifyConflict(ctx, scope, rec.OTPID)
		}
		return nil, err
	}
	rec.Attempts = attempts

	stored, err := s.codeCipher.Decrypt(rec.Code)
	if err != nil {
		slog.Error("stored verification code failed to decrypt", "otp_id", rec.OTPID, "err", err)
		return nil, err
	}

	if stored == code {
		verifiedAt := now
		if err := s.store.UpdateStatus(ctx, scope, rec.OTPID, domain.OTPVerified, &verifiedAt); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, s.classifyConflict(ctx, scope, rec.OTPID)
			}
			return nil, err
		}
		rec.Status = domain.OTPVerified
		rec.VerifiedAt = &verifiedAt
		return rec, nil
	}

	if attempts >= rec.MaxAttempts {
		s.transition(ctx, rec, domain.OTPFailed, nil)
		return nil, fmt.Errorf("request a new code: %w", domain.ErrTooManyAttempts)
	}
	return nil, &domain.InvalidCodeError{AttemptsRemaining: rec.MaxAttempts - attempts}
}

// PurgeExpired archives and deletes terminal or lazily-expired records older
// than the retention window, returning the number removed. It only targets
// rows no verification can still use, so it is safe alongside live traffic.
func (s *service) PurgeExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.policy.Retention)
	recs, err := s.store.ExpiredBefore(ctx, cutoff, now)
	if err != nil {
		return 0, err
	}
	purged := 0
	for i := range recs {
		rec := &recs[i]
		if s.archive != nil {
			if err := s.archive.Put(ctx, rec); err != nil {
				slog.Warn("skipping purge of record that failed to archive", "otp_id", rec.OTPID, "err", err)
				continue
			}
		}
		if err := s.store.Delete(ctx, rec.Scope, rec.OTPID); err != nil {
			slog.Warn("failed to delete purged record", "otp_id", rec.OTPID, "err", err)
			continue
		}
		purged++
	}
	return purged, nil
}

// classifyConflict re-reads a record after a lost conditional write and maps
// the outcome the winning writer produced.
func (s *service) classifyConflict(ctx context.Context, scope, otpID string) error {
	rec, err := s.store.FindMostRecent(ctx, scope)
	if err == nil && rec.OTPID == otpID && rec.Status == domain.OTPVerified {
		return fmt.Errorf("code was already used: %w", domain.ErrAlreadyVerified)
	}
	if err == nil && rec.OTPID == otpID && rec.Status == domain.OTPExpired {
		return fmt.Errorf("request a new code: %w", domain.ErrOTPExpired)
	}
	return fmt.Errorf("request a new code: %w", domain.ErrTooManyAttempts)
}

// transition is a best-effort status write for paths where losing the race
// means someone else already moved the record out of pending.
func (s *service) transition(ctx context.Context, rec *domain.OTPRecord, status domain.OTPStatus, verifiedAt *time.Time) {
	err := s.store.UpdateStatus(ctx, rec.Scope, rec.OTPID, status, verifiedAt)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		slog.Warn("failed to transition verification record", "otp_id", rec.OTPID, "status", status, "err", err)
	}
	rec.Status = status
}

func (s *service) maxAttempts(purpose domain.Purpose) int {
	if n, ok := s.policy.MaxAttempts[purpose]; ok && n > 0 {
		return n
	}
	return 3
}

// generateCode draws a zero-padded numeric code from crypto/rand. Repeats
// across issuances are permitted; each draw is independent.
func generateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
