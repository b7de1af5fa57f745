package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/care-auth-api/internal/application/credential"
	"github.com/care-auth-api/internal/application/otp"
	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type ConfirmAccountRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type ContactChangeRequest struct {
	NewEmail *string `json:"new_email" validate:"omitempty,email"`
	NewPhone *string `json:"new_phone"`
}

type ConfirmContactChangeRequest struct {
	NewEmail *string `json:"new_email" validate:"omitempty,email"`
	NewPhone *string `json:"new_phone"`
	Code     string  `json:"code" validate:"required"`
}

// Service drives the OTP-gated account flows. It never mutates a principal
// until the verification engine reports a verified transition, and each
// guard's registry is the only writer of its own rows.
type Service interface {
	Register(ctx context.Context, guard domain.OwnerKind, req domain.RegisterRequest) (*domain.Principal, error)
	ConfirmAccount(ctx context.Context, guard domain.OwnerKind, req ConfirmAccountRequest) error
	RequestPasswordReset(ctx context.Context, guard domain.OwnerKind, req PasswordResetRequest) error
	ResetPassword(ctx context.Context, guard domain.OwnerKind, req ResetPasswordRequest) error
	RequestContactChange(ctx context.Context, guard domain.OwnerKind, principalID string, req ContactChangeRequest) error
	ConfirmContactChange(ctx context.Context, guard domain.OwnerKind, principalID string, req ConfirmContactChangeRequest) error
}

type principalRegistry interface {
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	FindByID(ctx context.Context, principalID string) (*domain.Principal, error)
	Create(ctx context.Context, p *domain.Principal) error
	UpdatePassword(ctx context.Context, principalID, newHash string) error
	MarkVerified(ctx context.Context, principalID string) error
	UpdateEmail(ctx context.Context, principalID, email string) error
	UpdatePhone(ctx context.Context, principalID, phone string) error
}

type service struct {
	registries map[domain.OwnerKind]principalRegistry
	otps       otp.Service
	creds      credential.Service
}

type ServiceDeps struct {
	Registries  map[domain.OwnerKind]principalRegistry
	OTPs        otp.Service
	Credentials credential.Service
}

func NewService(deps ServiceDeps) Service {
	return &service{
		registries: deps.Registries,
		otps:       deps.OTPs,
		creds:      deps.Credentials,
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

// Register creates an unverified principal and issues its account
// verification code.
func (s *service) Register(ctx context.Context, guard domain.OwnerKind, req domain.RegisterRequest) (*domain.Principal, error) {
	reg, err := s.registry(guard)
	if err != nil {
		return nil, err
	}
	// Only a definitive miss means the email is free; a lookup failure must
	// not read as availability.
	if _, err := reg.FindByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("email lookup: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &domain.Principal{
		PrincipalID:  id.New(),
		Kind:         guard,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Verified:     false,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := reg.Create(ctx, p); err != nil {
		return nil, err
	}
	if _, err := s.otps.Issue(ctx, guard, &p.PrincipalID, p.Email, domain.PurposeAccountVerification); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfirmAccount marks the principal verified once its code checks out.
func (s *service) ConfirmAccount(ctx context.Context, guard domain.OwnerKind, req ConfirmAccountRequest) error {
	reg, err := s.registry(guard)
	if err != nil {
		return err
	}
	p, err := reg.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	if _, err := s.otps.Verify(ctx, guard, &p.PrincipalID, p.Email, domain.PurposeAccountVerification, req.Code); err != nil {
		return err
	}
	return reg.MarkVerified(ctx, p.PrincipalID)
}

func (s *service) RequestPasswordReset(ctx context.Context, guard domain.OwnerKind, req PasswordResetRequest) error {
	reg, err := s.registry(guard)
	if err != nil {
		return err
	}
	p, err := reg.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	_, err = s.otps.Issue(ctx, guard, &p.PrincipalID, p.Email, domain.PurposePasswordReset)
	return err
}

// ResetPassword rewrites the password hash after a verified transition and
// revokes every live credential for the principal.
func (s *service) ResetPassword(ctx context.Context, guard domain.OwnerKind, req ResetPasswordRequest) error {
	reg, err := s.registry(guard)
	if err != nil {
		return err
	}
	p, err := reg.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	if _, err := s.otps.Verify(ctx, guard, &p.PrincipalID, p.Email, domain.PurposePasswordReset, req.Code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := reg.UpdatePassword(ctx, p.PrincipalID, string(hash)); err != nil {
		return err
	}
	return s.creds.RevokeAll(ctx, guard, p.PrincipalID)
}

// RequestContactChange sends a code to the proposed email or phone; the
// current contact stays authoritative until the code verifies.
func (s *service) RequestContactChange(ctx context.Context, guard domain.OwnerKind, principalID string, req ContactChangeRequest) error {
	reg, err := s.registry(guard)
	if err != nil {
		return err
	}
	p, err := reg.FindByID(ctx, principalID)
	if err != nil {
		return fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	switch {
	case req.NewEmail != nil:
		if _, err := reg.FindByEmail(ctx, *req.NewEmail); err == nil {
			return fmt.Errorf("email already registered: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("email lookup: %w", err)
		}
		_, err = s.otps.Issue(ctx, guard, &p.PrincipalID, *req.NewEmail, domain.PurposeEmailUpdate)
		return err
	case req.NewPhone != nil:
		_, err = s.otps.Issue(ctx, guard, &p.PrincipalID, *req.NewPhone, domain.PurposePhoneUpdate)
		return err
	}
	return fmt.Errorf("new_email or new_phone required: %w", domain.ErrBadRequest)
}

// ConfirmContactChange applies the new contact value once the code sent to
// it verifies.
func (s *service) ConfirmContactChange(ctx context.Context, guard domain.OwnerKind, principalID string, req ConfirmContactChangeRequest) error {
	reg, err := s.registry(guard)
	if err != nil {
		return err
	}
	p, err := reg.FindByID(ctx, principalID)
	if err != nil {
		return fmt.Errorf("principal not found: %w", domain.ErrNotFound)
	}
	switch {
	case req.NewEmail != nil:
		if _, err := s.otps.Verify(ctx, guard, &p.PrincipalID, *req.NewEmail, domain.PurposeEmailUpdate, req.Code); err != nil {
			return err
		}
		return reg.UpdateEmail(ctx, p.PrincipalID, *req.NewEmail)
	case req.NewPhone != nil:
		if _, err := s.otps.Verify(ctx, guard, &p.PrincipalID, *req.NewPhone, domain.PurposePhoneUpdate, req.Code); err != nil {
			return err
		}
		return reg.UpdatePhone(ctx, p.PrincipalID, *req.NewPhone)
	}
	return fmt.Errorf("new_email or new_phone required: %w", domain.ErrBadRequest)
}

func (s *service) registry(guard domain.OwnerKind) (principalRegistry, error) {
	reg, ok := s.registries[guard]
	if !ok {
		return nil, fmt.Errorf("unknown guard %q: %w", guard, domain.ErrBadRequest)
	}
	return reg, nil
}
