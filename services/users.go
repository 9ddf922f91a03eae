package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"socialgraph/db"
	"socialgraph/models"
	apperr "socialgraph/pkg/errors"
	"socialgraph/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// AuthService registers users and turns credentials into tokens and tokens
// back into users.
type AuthService struct {
	users  IdentityStore
	tokens *TokenIssuer
}

func NewAuthService(users IdentityStore, tokens *TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.BadRequest("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("user with this email already exists")
	} else if apperr.TypeOf(err) != apperr.ErrorTypeNotFound {
		return nil, asAppError(err, "failed to register user")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, apperr.Internal("failed to register user", err)
	}

	user := &models.User{
		Email:    email,
		Name:     strings.TrimSpace(name),
		Password: hash,
	}
	if err := db.GetWriteDB(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Conflict("user with this email already exists")
		}
		return nil, apperr.Internal("failed to register user", err)
	}

	logger.Get().Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login checks credentials and issues a token recorded in user_tokens
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.TypeOf(err) == apperr.ErrorTypeNotFound {
			return "", apperr.Unauthorized("invalid credentials")
		}
		return "", asAppError(err, "failed to log in")
	}
	ok, err := verifyPassword(user.Password, password)
	if err != nil {
		logger.Get().Warn("stored password hash is malformed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if !ok {
		return "", apperr.Unauthorized("invalid credentials")
	}

	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", apperr.Internal("failed to log in", err)
	}
	err = db.GetWriteDB(ctx).Create(&models.UserTokens{
		UserID:    user.ID,
		Token:     issued.ID,
		ExpiresAt: issued.ExpiresAt,
	}).Error
	if err != nil {
		return "", apperr.Internal("failed to log in", err)
	}
	return issued.Token, nil
}

// Logout revokes every token of userID
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	err := db.GetWriteDB(ctx).Where("user_id = ?", userID).Delete(&models.UserTokens{}).Error
	if err != nil {
		return apperr.Internal("failed to log out", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user. Forged, expired and
// revoked tokens are all Unauthorized.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	userID, tokenID, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}

	var record models.UserTokens
	err = db.GetReadOnlyDB(ctx).
		Where("user_id = ? AND token = ?", userID, tokenID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid token")
		}
		return nil, apperr.Internal("failed to authenticate", err)
	}
	if !record.ExpiresAt.After(s.tokens.now()) {
		return nil, apperr.Unauthorized("invalid token")
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if apperr.TypeOf(err) == apperr.ErrorTypeNotFound {
			return nil, apperr.Unauthorized("invalid token")
		}
		return nil, asAppError(err, "failed to authenticate")
	}
	return user, nil
}

// hashPassword returns "salt$hash", both hex, argon2id
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

func verifyPassword(stored, password string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false, errors.New("invalid password format")
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false, err
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
