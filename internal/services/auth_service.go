package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/thereayou/campus-chat/internal/database"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/models"
	"github.com/thereayou/campus-chat/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	db         Database
	jwtManager *auth.JWTManager
	blacklist  Blacklist
}

func NewAuthService(db Database, jwtManager *auth.JWTManager, blacklist Blacklist) *AuthService {
	return &AuthService{db: db, jwtManager: jwtManager, blacklist: blacklist}
}

func (s *AuthService) Register(req dto.RegisterRequest) (*dto.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.SaveUser(user); err != nil {
		if errors.Is(err, database.ErrDuplicated) {
			return nil, ErrTaken
		}
		return nil, err
	}
	return s.issue(user)
}

// Login выдаёт JWT и обновляет last_seen
func (s *AuthService) Login(req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.db.FindUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidLogin
	}
	if err := s.db.UpdateLastSeen(user.ID); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Logout ставит токен в черный список до истечения
func (s *AuthService) Logout(ctx context.Context, token string) error {
	exp, err := s.jwtManager.Expiry(token)
	if err != nil {
		return ErrInvalidLogin
	}
	return s.blacklist.Revoke(ctx, token, time.Until(exp))
}

func (s *AuthService) issue(user *models.User) (*dto.AuthResponse, error) {
	token, err := s.jwtManager.Generate(user.ID.String())
	if err != nil {
		return nil, err
	}
	exp, err := s.jwtManager.Expiry(token)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{
		Uid:            user.ID.String(),
		Username:       user.Username,
		Token:          token,
		TokenExpiresAt: exp.UTC().Format(time.RFC3339),
	}, nil
}
