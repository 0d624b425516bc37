package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/auth"
	"github.com/armoryline/armoryline-backend/pkg/config"
	"github.com/armoryline/armoryline-backend/pkg/db"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

// Session is the result of a verified OTP exchange.
type Session struct {
	Token string
	User  *models.User
}

// VerifyInput carries the OTP exchange plus device telemetry forwarded to
// the verifier.
type VerifyInput struct {
	Email       string
	Code        string
	Fingerprint string
	IP          string
}

// Service authenticates users against the external verifier and mints
// session tokens. Unknown verified subjects get a customer account on first
// login.
type Service interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, input VerifyInput) (*Session, error)
}

type service struct {
	repo     Repository
	verifier Verifier
	limiter  RateLimiter
	jwtCfg   config.JWTConfig
	logg     *logger.Logger
}

// NewService builds the identity service. The limiter is optional; a nil
// limiter disables send throttling.
func NewService(repo Repository, verifier Verifier, limiter RateLimiter, jwtCfg config.JWTConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("identity repository required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("identity verifier required")
	}
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, verifier: verifier, limiter: limiter, jwtCfg: jwtCfg, logg: logg}, nil
}

func (s *service) SendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, email); err != nil {
			return err
		}
	}
	if err := s.verifier.IssueCode(ctx, email); err != nil {
		return err
	}
	s.logg.Info(ctx, "verification code issued")
	return nil
}

func (s *service) VerifyOTP(ctx context.Context, input VerifyInput) (*Session, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and code required")
	}

	subject, err := s.verifier.VerifyCode(ctx, email, input.Code)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.repo.CreateUser(ctx, &models.User{
			Email:    email,
			Role:     enums.RoleCustomer,
			IsActive: true,
		})
		if db.IsUniqueViolation(err, "") {
			// Concurrent first login won the insert.
			user, err = s.repo.FindUserByEmail(ctx, email)
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is deactivated")
	}

	now := time.Now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
	}
	if input.Fingerprint != "" {
		// Device history is advisory; a verifier hiccup here must not block
		// the login.
		if err := s.verifier.RecordDevice(ctx, subject, input.Fingerprint, input.IP); err != nil {
			s.logg.Warn(ctx, "record device failed: "+err.Error())
		}
	}

	payload := auth.AccessTokenPayload{UserID: user.ID, Role: user.Role}
	if user.Role == enums.RoleVendor {
		vendor, err := s.repo.FindVendorByUser(ctx, user.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}
		if vendor != nil {
			payload.VendorID = &vendor.ID
		}
	}
	token, err := auth.MintAccessToken(s.jwtCfg, now, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	logCtx := s.logg.WithUserID(ctx, user.ID.String())
	s.logg.Info(logCtx, "user session issued")
	return &Session{Token: token, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
