package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/pkg/id"
	pkgtoken "github.com/care-auth-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the persisted revocable credential and a short-lived
// signed bearer for the transport layer.
type LoginResult struct {
	Bearer     string
	Credential *domain.Credential
}

// Service authenticates principals against exactly one registry per guard
// and owns the credential lifecycle. ErrInvalidCredentials and
// ErrAccessDenied stay distinct here; the transport layer renders both as a
// generic authentication failure.
type Service interface {
	Authenticate(ctx context.Context, guard domain.OwnerKind, req LoginRequest) (*LoginResult, error)
	Revoke(ctx context.Context, credentialID string) error
	RevokeAll(ctx context.Context, guard domain.OwnerKind, principalID string) error
	Check(ctx context.Context, credentialID string) (*domain.Credential, error)
	Resolve(ctx context.Context, token string) (*domain.Credential, error)
}

type principalRegistry interface {
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	FindByID(ctx context.Context, principalID string) (*domain.Principal, error)
}

type credentialStore interface {
	Create(ctx context.Context, c *domain.Credential) error
	FindByID(ctx context.Context, credentialID string) (*domain.Credential, error)
	FindActiveByToken(ctx context.Context, token string) (*domain.Credential, error)
	Revoke(ctx context.Context, credentialID string) error
	RevokeAllForPrincipal(ctx context.Context, guard domain.OwnerKind, principalID string) error
}

type jwtSigner interface {
	Sign(principalID string, guard domain.OwnerKind, credentialID string) (string, error)
}

type service struct {
	registries map[domain.OwnerKind]principalRegistry
	store      credentialStore
	signer     jwtSigner
	tokenTTL   map[domain.OwnerKind]time.Duration
}

type ServiceDeps struct {
	Registries map[domain.OwnerKind]principalRegistry
	Store      credentialStore
	Signer     jwtSigner
	TokenTTL   map[domain.OwnerKind]time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		registries: deps.Registries,
		store:      deps.Store,
		signer:     deps.Signer,
		tokenTTL:   deps.TokenTTL,
	}
}

// Registries builds the guard map from one registry per kind.
func Registries(client, worker, admin principalRegistry) map[domain.OwnerKind]principalRegistry {
	return map[domain.OwnerKind]principalRegistry{
		domain.KindClient: client,
		domain.KindWorker: worker,
		domain.KindAdmin:  admin,
	}
}

func (s *service) Authenticate(ctx context.Context, guard domain.OwnerKind, req LoginRequest) (*LoginResult, error) {
	reg, ok := s.registries[guard]
	if !ok {
		return nil, fmt.Errorf("unknown guard %q: %w", guard, domain.ErrBadRequest)
	}
	// Lookup is scoped to this guard's registry only; the same email under
	// another kind is a different principal.
	p, err := reg.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("principal lookup failed: %w", domain.ErrInvalidCredentials)
	}
	if !p.Enable || p.DeletedAt != nil {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("password mismatch: %w", domain.ErrInvalidCredentials)
	}
	if guard == domain.KindAdmin && !p.Superuser {
		slog.Warn("admin authentication without administrative privilege", "principal_id", p.PrincipalID)
		return nil, fmt.Errorf("administrative privilege required: %w", domain.ErrAccessDenied)
	}

	tok, err := pkgtoken.NewBearerToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	cred := &domain.Credential{
		CredentialID: id.New(),
		Token:        tok,
		Guard:        guard,
		PrincipalID:  p.PrincipalID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.ttl(guard)).Unix(),
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return nil, err
	}
	bearer, err := s.signer.Sign(p.PrincipalID, guard, cred.CredentialID)
	if err != nil {
		return nil, err
	}
	cred.Principal = p
	return &LoginResult{Bearer: bearer, Credential: cred}, nil
}

// Revoke marks a single credential revoked. Revoking twice is a no-op.
func (s *service) Revoke(ctx context.Context, credentialID string) error {
	return s.store.Revoke(ctx, credentialID)
}

// RevokeAll marks every live credential for a principal revoked.
func (s *service) RevokeAll(ctx context.Context, guard domain.OwnerKind, principalID string) error {
	return s.store.RevokeAllForPrincipal(ctx, guard, principalID)
}

// Check loads a credential by id and rejects it when revoked or expired.
func (s *service) Check(ctx context.Context, credentialID string) (*domain.Credential, error) {
	cred, err := s.store.FindByID(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", domain.ErrUnauthorized)
	}
	if !cred.Active(time.Now()) {
		return nil, fmt.Errorf("credential revoked or expired: %w", domain.ErrUnauthorized)
	}
	return cred, nil
}

// Resolve authenticates an opaque token directly, for callers that hold the
// credential value instead of a signed bearer.
func (s *service) Resolve(ctx context.Context, token string) (*domain.Credential, error) {
	cred, err := s.store.FindActiveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("token rejected: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return cred, nil
}

func (s *service) ttl(guard domain.OwnerKind) time.Duration {
	if d, ok := s.tokenTTL[guard]; ok && d > 0 {
		return d
	}
	return 24 * time.Hour
}
