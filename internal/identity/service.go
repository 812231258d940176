package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/validation"
)

// Service manages identity lifecycle.
type Service struct {
	repo        Repository
	provisioner gateway.AccountProvisioner
	defaultBVN  string
	logger      *slog.Logger
}

// NewService creates a new identity service. Registrations obtain their virtual
// account from provisioner.
func NewService(repo Repository, provisioner gateway.AccountProvisioner, defaultBVN string, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		defaultBVN:  defaultBVN,
		logger:      logging.Component(logger, "identity"),
	}
}

// Register creates the user and provisions a virtual account synchronously. If
// provisioning fails the user is removed again, so no user exists without an account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return User{}, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		ProfileImage: in.ProfileImage,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	bvn := in.BVN
	if bvn == "" {
		bvn = s.defaultBVN
	}
	account, err := s.provisioner.CreateReservedAccount(ctx, gateway.ReservedAccountRequest{
		Reference: user.ID,
		Name:      user.Name,
		Email:     user.Email,
		BVN:       bvn,
	})
	if err != nil {
		s.rollback(ctx, user.ID, err)
		return User{}, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
	if err := s.repo.SetAccount(ctx, user.ID, account.AccountNumber, account.BankName); err != nil {
		s.rollback(ctx, user.ID, err)
		return User{}, err
	}

	user.AccountNumber = account.AccountNumber
	user.BankName = account.BankName
	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("account_number", user.AccountNumber),
		slog.String("bank_name", user.BankName))
	return user, nil
}

// rollback removes a half-registered user. A failed delete is logged; the original
// error still reaches the caller.
func (s *Service) rollback(ctx context.Context, userID string, cause error) {
	s.logger.Warn("registration rolled back", slog.String("user_id", userID), slog.Any("error", cause))
	if err := s.repo.Delete(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.Error("registration rollback failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// Authenticate verifies the email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindByAccountNumber(ctx context.Context, accountNumber string) (User, error) {
	return s.repo.FindByAccountNumber(ctx, strings.TrimSpace(accountNumber))
}
