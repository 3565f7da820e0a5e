package patient

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound    = errors.New("patient not found")
	ErrPasswordSet = errors.New("password already set")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ContactDetails is the patient information supplied by a clinician on send.
type ContactDetails struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	YearOfBirth       int    `json:"yearOfBirth"`
	PreferredLanguage string `json:"preferredLanguage"`
}

func (d ContactDetails) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if d.YearOfBirth < 1900 || d.YearOfBirth > 2100 {
		return fmt.Errorf("invalid year of birth: %d", d.YearOfBirth)
	}
	return nil
}

// UpsertForSend creates or updates the patient bound to a care plan being
// sent. Every send rotates the PIN; a password hash, once set, survives the
// rotation untouched.
func (s *Service) UpsertForSend(ctx context.Context, tenantID uuid.UUID, details ContactDetails) (*Patient, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	pin, err := GeneratePIN()
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}

	lang := details.PreferredLanguage
	if lang == "" {
		lang = "en"
	}

	existing, err := s.repo.GetByEmail(ctx, tenantID, details.Email)
	if err == nil {
		existing.Name = details.Name
		existing.LastName = DeriveLastName(details.Name)
		existing.Phone = details.Phone
		existing.YearOfBirth = details.YearOfBirth
		existing.PreferredLanguage = lang
		existing.PIN = pin
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	p := &Patient{
		TenantID:          tenantID,
		Name:              details.Name,
		LastName:          DeriveLastName(details.Name),
		Email:             strings.ToLower(details.Email),
		Phone:             details.Phone,
		YearOfBirth:       details.YearOfBirth,
		PreferredLanguage: lang,
		PIN:               pin,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPassword hashes and stores a persistent password for the patient. The
// password can be set only once; repeat access uses it thereafter.
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if p.HasPassword() {
		return ErrPasswordSet
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.PasswordHash = string(hash)
	return s.repo.Update(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

// GeneratePIN returns a 4-digit numeric PIN from a CSPRNG.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
