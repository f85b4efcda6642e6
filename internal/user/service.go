package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"netchat/internal/identity"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", identity.ErrAuth)
	ErrTokenExpired       = fmt.Errorf("%w: token expired", identity.ErrAuth)
	ErrTokenRevoked       = fmt.Errorf("%w: token revoked", identity.ErrAuth)
)

// FieldError is one rejected registration field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every registration field that failed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	repo    Store
	revoker Revoker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// MyJWTClaims carries the user id; the embedded RegisteredClaims.ID is the jti.
type MyJWTClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var _ identity.Provider = (*Service)(nil)

func NewService(repo Store, revoker Revoker, cfg Config, logger *slog.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "go-chat-app"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, revoker: revoker, cfg: cfg, logger: logger, now: time.Now}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.CreateUser(ctx, &User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPwd),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func validateRegistration(req *RegisterRequest) error {
	verr := &ValidationError{}
	if n := len([]rune(req.Username)); n < 3 || n > 30 {
		verr.Fields = append(verr.Fields, FieldError{"username", "must be between 3 and 30 characters"})
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		verr.Fields = append(verr.Fields, FieldError{"email", "invalid email address"})
	}
	if len(req.Password) < 6 {
		verr.Fields = append(verr.Fields, FieldError{"password", "must be at least 6 characters"})
	}
	if req.Password != req.ConfirmPassword {
		verr.Fields = append(verr.Fields, FieldError{"confirmPassword", "passwords do not match"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Login checks the password, marks the user online and issues a token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.checkPassword(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetStatus(ctx, u.ID, StatusOnline, s.now()); err != nil {
		return nil, err
	}

	ss, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: ss, ID: u.ID, Username: u.Username}, nil
}

func (s *Service) checkPassword(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) issue(u *User) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	})
	return token.SignedString([]byte(s.cfg.Secret))
}

// Authenticate checks credentials without issuing a token or touching status.
func (s *Service) Authenticate(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	u, err := s.checkPassword(ctx, creds.Username, creds.Password)
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.Identity{UserID: strconv.Itoa(u.ID), Username: u.Username}, nil
}

func (s *Service) parse(tokenString string) (*MyJWTClaims, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", identity.ErrAuth, err)
	}
	return claims, nil
}

// VerifyToken resolves a bearer token, rejecting revoked ones.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (identity.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return identity.Identity{}, err
	}
	if jti := claims.RegisteredClaims.ID; s.revoker != nil && jti != "" {
		revoked, err := s.revoker.IsRevoked(ctx, jti)
		if err != nil {
			return identity.Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return identity.Identity{}, ErrTokenRevoked
		}
	}
	return identity.Identity{UserID: strconv.Itoa(claims.ID), Username: claims.Username}, nil
}

// Profile loads the account behind an identity.
func (s *Service) Profile(ctx context.Context, id identity.Identity) (*User, error) {
	userID, err := strconv.Atoi(id.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.repo.GetUserByID(ctx, userID)
}

// Logout revokes the token and marks its user offline.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if jti := claims.RegisteredClaims.ID; s.revoker != nil && jti != "" {
		if err := s.revoker.Revoke(ctx, jti, claims.ExpiresAt.Time); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if err := s.repo.SetStatus(ctx, claims.ID, StatusOffline, s.now()); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", claims.ID, "username", claims.Username)
	return nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, strings.TrimSpace(query))
}
