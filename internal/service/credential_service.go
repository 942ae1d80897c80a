package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/drivesense-api/internal/dto"
	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/repository"
)

const tokenIssuer = "drivesense-api"

// CredentialService registers users and issues the bearer tokens that gate the API.
type CredentialService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Authenticate(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	IssueToken(userID uint) (string, error)
	VerifyToken(token string) (uint, error)
}

// CredentialConfig configures token signing and password hashing.
type CredentialConfig struct {
	Secret     string
	TTL        time.Duration
	BcryptCost int
}

type credentialService struct {
	users     repository.UserRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	secret    []byte
	ttl       time.Duration
	cost      int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewCredentialService constructs the credential service.
func NewCredentialService(users repository.UserRepository, validate *validator.Validate, cfg CredentialConfig, logger zerolog.Logger) CredentialService {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost < bcrypt.DefaultCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	if err := validate.RegisterValidation("maxbytes", maxBytes); err != nil {
		logger.Error().Err(err).Msg("failed to register maxbytes validation")
	}

	return &credentialService{
		users:     users,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		secret:    []byte(cfg.Secret),
		ttl:       cfg.TTL,
		cost:      cfg.BcryptCost,
		now:       time.Now,
		logger:    logger.With().Str("component", "credential_service").Logger(),
	}
}

func (s *credentialService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	payload.Username = s.stripMarkup(payload.Username)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.FullName = s.stripMarkup(payload.FullName)

	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, payload.Username, payload.Email)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	if exists {
		return dto.AuthResponse{}, ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), s.cost)
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: string(hash),
		FullName:     payload.FullName,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.AuthResponse{}, ErrDuplicateUser
		}
		return dto.AuthResponse{}, err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("user registered")

	return dto.AuthResponse{Success: true, Token: token, User: dto.NewUserResponse(user)}, nil
}

func (s *credentialService) Authenticate(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug().Str("reason", "user_not_found").Msg("authentication rejected")
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		s.logger.Debug().Str("reason", "password_mismatch").Uint("user_id", user.ID).Msg("authentication rejected")
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	return dto.AuthResponse{Success: true, Token: token, User: dto.NewUserResponse(user)}, nil
}

func (s *credentialService) IssueToken(userID uint) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken returns the user id bound to token. Every failure maps to ErrInvalidToken.
func (s *credentialService) VerifyToken(token string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}

	return uint(id), nil
}

// stripMarkup removes tags but keeps the text as typed; the policy's entity
// escaping is undone so "&" is stored once, not as "&amp;".
func (s *credentialService) stripMarkup(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

// maxBytes bounds a string field by its byte length. bcrypt rejects
// passwords over 72 bytes regardless of how many characters they hold.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}
