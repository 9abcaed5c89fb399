package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/deepscan/backend/internal/storage/models"
	"github.com/deepscan/backend/internal/storage/sqlite"
	"github.com/deepscan/backend/pkg/logger"
	"github.com/deepscan/backend/pkg/utils"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or has expired")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByResetToken(ctx context.Context, hashedToken string) (*models.User, error)
	SetResetToken(ctx context.Context, userID, hashedToken string, expires time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// Mailer delivers password-reset links. The default implementation only
// logs; wiring real delivery is a deployment concern.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

type logMailer struct{}

func (logMailer) SendPasswordReset(_ context.Context, email, token string) error {
	logger.Info("Password reset requested",
		zap.String("email", email),
		zap.String("token", token),
	)
	return nil
}

// Service implements account registration, login, and the password-reset
// flow.
type Service struct {
	store    Store
	jwt      *JWTManager
	mailer   Mailer
	resetTTL time.Duration
}

func NewService(store Store, jwt *JWTManager, mailer Mailer, resetTTL time.Duration) *Service {
	if mailer == nil {
		mailer = logMailer{}
	}
	if resetTTL == 0 {
		resetTTL = 15 * time.Minute
	}
	return &Service{
		store:    store,
		jwt:      jwt,
		mailer:   mailer,
		resetTTL: resetTTL,
	}
}

// Session is a successful authentication: the signed token plus the public
// view of the user.
type Session struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func publicUser(user *models.User) PublicUser {
	return PublicUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleUser,
		AuthProvider: "local",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	logger.Info("User registered", zap.String("user_id", user.ID))
	return s.session(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

// AdminLogin is Login restricted to locally-provisioned admin accounts. A
// valid non-admin credential is rejected the same way a bad one is, so the
// endpoint does not confirm which accounts exist.
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Role != RoleAdmin || user.AuthProvider != "local" {
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: publicUser(user)}, nil
}

// ForgotPassword issues a single-use reset token. Only its hash is stored.
// An unknown email is reported as success so the endpoint does not leak
// which addresses exist.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil
		}
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)

	expires := time.Now().UTC().Add(s.resetTTL)
	if err := s.store.SetResetToken(ctx, user.ID, utils.HashString(token), expires); err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(ctx, user.Email, token)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.store.GetUserByResetToken(ctx, utils.HashString(token))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	logger.Info("Password reset completed", zap.String("user_id", user.ID))
	return nil
}

// CurrentUser resolves a validated token's subject to its stored account.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub := publicUser(user)
	return &pub, nil
}
