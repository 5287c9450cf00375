package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
)

// Service is the read side of the account directory used by the workflow
// packages. Account creation exists for the seed command and tests.
type Service struct {
	accounts AccountRepository
	tx       db.TxRunner
}

func NewService(accounts AccountRepository, tx db.TxRunner) *Service {
	return &Service{accounts: accounts, tx: tx}
}

func (s *Service) CreateAccount(ctx context.Context, a *Account) error {
	a.Email = strings.TrimSpace(strings.ToLower(a.Email))
	a.Name = strings.TrimSpace(a.Name)
	if a.Email == "" {
		return apperr.Invalid("email is required")
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return apperr.Invalid("email is not a valid address")
	}
	if a.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !a.Role.Valid() {
		return apperr.Invalid("invalid role: %s", a.Role)
	}
	if err := a.checkProfile(); err != nil {
		return apperr.Invalid("%v", err)
	}
	if d, ok := a.Doctor(); ok && strings.TrimSpace(d.Specialty) == "" {
		return apperr.Invalid("specialty is required for doctors")
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, a); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Me returns the caller's account. A token whose role disagrees with the
// stored account is treated as unknown.
func (s *Service) Me(ctx context.Context, caller auth.Caller) (*Account, error) {
	a, err := s.GetAccount(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if a.Role != caller.Role {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// Doctor resolves id to a doctor-role account.
func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Account, *DoctorProfile, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, ErrDoctorNotFound
		}
		return nil, nil, err
	}
	d, ok := a.Doctor()
	if !ok {
		return nil, nil, ErrDoctorNotFound
	}
	return a, d, nil
}

// PatientProfileID maps a patient account to its profile id.
func (s *Service) PatientProfileID(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	p, err := s.accounts.PatientProfileByAccount(ctx, accountID)
	if err != nil {
		if db.IsNoRows(err) {
			return uuid.Nil, ErrPatientNotFound
		}
		return uuid.Nil, fmt.Errorf("get patient profile: %w", err)
	}
	return p.ID, nil
}

// PatientAccountID maps a patient profile id back to its account.
func (s *Service) PatientAccountID(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error) {
	p, err := s.accounts.PatientProfileByID(ctx, profileID)
	if err != nil {
		if db.IsNoRows(err) {
			return uuid.Nil, ErrPatientNotFound
		}
		return uuid.Nil, fmt.Errorf("get patient profile: %w", err)
	}
	return p.AccountID, nil
}

func (s *Service) ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*DoctorSummary, int, error) {
	items, total, err := s.accounts.ListDoctors(ctx, strings.TrimSpace(specialty), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	return items, total, nil
}
