package identity

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	// ErrInvalidCredentials covers both unknown phone and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid phone or password")
	// ErrValidation indicates malformed registration input.
	ErrValidation = errors.New("invalid input")

	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
	digitPattern = regexp.MustCompile(`\d`)
)

// Service manages the viewer credential lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if err := validateRegistration(creds); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Phone:        creds.Phone,
		FirstName:    creds.FirstName,
		LastName:     creds.LastName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies credentials and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (User, error) {
	if phone == "" || password == "" {
		return User{}, ErrValidation
	}

	user, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = now

	return user, nil
}

func validateRegistration(creds Credentials) error {
	if creds.Phone == "" || creds.FirstName == "" || creds.LastName == "" || creds.Password == "" {
		return errors.Join(ErrValidation, errors.New("all fields are required"))
	}
	if !phonePattern.MatchString(creds.Phone) {
		return errors.Join(ErrValidation, errors.New("invalid phone format"))
	}
	digits := len(digitPattern.FindAllString(creds.Phone, -1))
	if digits < 9 || digits > 15 {
		return errors.Join(ErrValidation, errors.New("phone must contain 9 to 15 digits"))
	}
	if len(creds.Password) < minPasswordLength {
		return errors.Join(ErrValidation, errors.New("password must be at least 6 characters"))
	}
	return nil
}
