package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/media"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

const minPasswordLength = 8

type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

type AuthService struct {
	db    *gorm.DB
	log   *logger.Logger
	cfg   AuthConfig
	media *media.Store
}

func NewAuthService(db *gorm.DB, log *logger.Logger, cfg AuthConfig, mediaStore *media.Store) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		db:    db,
		log:   log.With("service", "AuthService"),
		cfg:   cfg,
		media: mediaStore,
	}
}

type claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"password_confirm"`
	Role            models.Role `json:"role"`
}

// Register creates a customer account and signs it in. Other roles are
// handed out by an admin through UserService.Create.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	fields := map[string]string{}
	if in.Username == "" {
		fields["username"] = "this field is required"
	} else if len(in.Username) > 150 {
		fields["username"] = "at most 150 characters"
	}
	if in.Email != "" && !utils.IsValidEmail(in.Email) {
		fields["email"] = "enter a valid email address"
	}
	if msg := checkPassword(in.Password, in.Username); msg != "" {
		fields["password"] = msg
	} else if in.Password != in.PasswordConfirm {
		fields["password_confirm"] = "passwords do not match"
	}
	if in.Role == "" {
		in.Role = models.RoleCustomer
	}
	if in.Role != models.RoleCustomer {
		fields["role"] = "only customer accounts can be registered"
	}
	if len(fields) > 0 {
		return nil, "", apierr.Validation("registration data is invalid", fields)
	}

	taken, err := usernameTaken(ctx, s.db, in.Username)
	if err != nil {
		return nil, "", err
	}
	if taken {
		return nil, "", apierr.Conflict("username already taken")
	}
	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, "", err
	}
	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleCustomer,
	}

	var token string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		t, err := s.issueToken(ctx, tx, user)
		token = t
		return err
	})
	if store.IsUniqueViolation(err) {
		return nil, "", apierr.Conflict("username already taken")
	}
	if err != nil {
		return nil, "", fmt.Errorf("register %s: %w", in.Username, err)
	}
	s.log.Info("User registered", "user_id", user.ID, "username", user.Username)
	return user, token, nil
}

// Login never tells which of username or password was wrong, nor that the
// account is disabled.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, "", apierr.Validation("username and password are required", map[string]string{
			"username": "this field is required",
			"password": "this field is required",
		})
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if store.IsNotFound(err) {
		return nil, "", apierr.Unauthenticated()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil || !user.IsActive {
		return nil, "", apierr.Unauthenticated()
	}

	token, err := s.issueToken(ctx, s.db.WithContext(ctx), &user)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("User logged in", "user_id", user.ID)
	return &user, token, nil
}

// Logout revokes the token identified by tokenID.
func (s *AuthService) Logout(ctx context.Context, tokenID string) error {
	res := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Delete(&models.AuthToken{})
	if res.Error != nil {
		return fmt.Errorf("delete token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.New(http.StatusBadRequest, "logout_failed", errors.New("logout failed"))
	}
	return nil
}

// Authenticate resolves a bearer token to its active user and the token id.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*models.User, string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || c.ID == "" {
		return nil, "", apierr.Unauthenticated()
	}
	userID, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return nil, "", apierr.Unauthenticated()
	}

	var row models.AuthToken
	err = s.db.WithContext(ctx).
		Where("token_id = ? AND user_id = ? AND expires_at > ?", c.ID, userID, utils.Now()).
		Take(&row).Error
	if store.IsNotFound(err) {
		return nil, "", apierr.Unauthenticated()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load token: %w", err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).Take(&user).Error
	if store.IsNotFound(err) {
		return nil, "", apierr.Unauthenticated()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	return &user, c.ID, nil
}

func (s *AuthService) issueToken(ctx context.Context, db *gorm.DB, user *models.User) (string, error) {
	now := utils.Now()
	row := models.AuthToken{
		UserID:    user.ID,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        row.TokenID,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Profile returns the caller's profile.
func (s *AuthService) Profile(ctx context.Context, user *models.User) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).Take(&p).Error; err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}

type ProfileInput struct {
	FullName *string `json:"full_name"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
}

// UpdateProfile creates the caller's profile on first use.
func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, in ProfileInput) (*models.Profile, error) {
	fields := map[string]string{}
	if in.Phone != nil && *in.Phone != "" && !utils.IsValidPhone(*in.Phone) {
		fields["phone"] = "enter a valid phone number"
	}
	if in.Email != nil && *in.Email != "" && !utils.IsValidEmail(*in.Email) {
		fields["email"] = "enter a valid email address"
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("profile data is invalid", fields)
	}

	var p models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", user.ID).Take(&p).Error
		if err != nil && !store.IsNotFound(err) {
			return err
		}
		p.UserID = user.ID
		if in.FullName != nil {
			p.FullName = strings.TrimSpace(*in.FullName)
		}
		if in.Address != nil {
			p.Address = *in.Address
		}
		if in.Phone != nil {
			p.Phone = utils.SanitizePhone(*in.Phone)
		}
		if in.Email != nil {
			p.Email = strings.TrimSpace(*in.Email)
		}
		return tx.Save(&p).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return &p, nil
}

// SetProfilePhoto stores a recompressed copy of the upload and replaces the
// previous photo.
func (s *AuthService) SetProfilePhoto(ctx context.Context, user *models.User, r io.Reader) (*models.Profile, error) {
	rel, err := savePhoto(s.media, "profiles", r)
	if err != nil {
		return nil, err
	}

	var p models.Profile
	var old string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", user.ID).Take(&p).Error
		if err != nil && !store.IsNotFound(err) {
			return err
		}
		old = p.Photo
		p.UserID = user.ID
		p.Photo = rel
		return tx.Save(&p).Error
	})
	if err != nil {
		_ = s.media.Remove(rel)
		return nil, fmt.Errorf("save profile photo: %w", err)
	}
	if err := s.media.Remove(old); err != nil {
		s.log.Warn("Could not remove old profile photo", "path", old, "error", err)
	}
	return &p, nil
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword returns a message describing why password is too weak, or ""
// when it is acceptable.
func checkPassword(password, username string) string {
	if len(password) < minPasswordLength {
		return fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	numeric := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		return "must not be entirely numeric"
	}
	if username != "" && strings.EqualFold(password, username) {
		return "too similar to the username"
	}
	return ""
}

func savePhoto(ms *media.Store, folder string, r io.Reader) (string, error) {
	rel, err := ms.Save(folder, r)
	switch {
	case errors.Is(err, media.ErrInvalidImage), errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrTooManyPixels):
		return "", apierr.Validation(err.Error(), map[string]string{"photo": err.Error()})
	case err != nil:
		return "", err
	}
	return rel, nil
}
