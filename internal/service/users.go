package service

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/access"
	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

type UserService struct {
	db         *gorm.DB
	log        *logger.Logger
	bcryptCost int
}

func NewUserService(db *gorm.DB, log *logger.Logger, bcryptCost int) *UserService {
	return &UserService{
		db:         db,
		log:        log.With("service", "UserService"),
		bcryptCost: bcryptCost,
	}
}

type UserFilter struct {
	Role     string
	IsActive *bool
	Page
}

// List is admin only. Inactive accounts are included unless filtered out.
func (s *UserService) List(ctx context.Context, actor *models.User, f UserFilter) ([]models.User, int64, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	var users []models.User
	if err := q.Preload("Profile").Scopes(f.scope()).Order("id").Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

type CreateUserInput struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Create lets an admin add staff, courier and admin accounts.
func (s *UserService) Create(ctx context.Context, actor *models.User, in CreateUserInput) (*models.User, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	fields := map[string]string{}
	if in.Username == "" {
		fields["username"] = "this field is required"
	}
	if in.Email != "" && !utils.IsValidEmail(in.Email) {
		fields["email"] = "enter a valid email address"
	}
	if msg := checkPassword(in.Password, in.Username); msg != "" {
		fields["password"] = msg
	}
	if !in.Role.Valid() {
		fields["role"] = "must be one of admin, staff, courier, customer"
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("user data is invalid", fields)
	}
	return s.create(ctx, in)
}

func (s *UserService) create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	taken, err := usernameTaken(ctx, s.db, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apierr.Conflict("username already taken")
	}
	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	err = s.db.WithContext(ctx).Create(user).Error
	if store.IsUniqueViolation(err) {
		return nil, apierr.Conflict("username already taken")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("User created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Get returns a user to an admin or to the user themself. Missing users are
// reported before permission so ids cannot be probed with 403s alone.
func (s *UserService) Get(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Profile").Take(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	if !access.CanSeeUser(actor, user.ID) {
		return nil, apierr.Forbidden()
	}
	return &user, nil
}

type UpdateUserInput struct {
	Email    *string      `json:"email"`
	Password *string      `json:"password"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}

// Update lets users change their own email and password. Role and activation
// are admin only.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, in UpdateUserInput) (*models.User, error) {
	user, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if (in.Role != nil || in.IsActive != nil) && !hasRole(actor, models.RoleAdmin) {
		return nil, apierr.Forbidden()
	}

	updates := map[string]interface{}{}
	fields := map[string]string{}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" && !utils.IsValidEmail(email) {
			fields["email"] = "enter a valid email address"
		}
		updates["email"] = email
	}
	if in.Password != nil {
		if msg := checkPassword(*in.Password, user.Username); msg != "" {
			fields["password"] = msg
		} else {
			hash, err := HashPassword(*in.Password, s.bcryptCost)
			if err != nil {
				return nil, err
			}
			updates["password_hash"] = hash
		}
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			fields["role"] = "must be one of admin, staff, courier, customer"
		}
		updates["role"] = *in.Role
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("user data is invalid", fields)
	}
	if len(updates) == 0 {
		return user, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Updates(updates).Error; err != nil {
			return err
		}
		if _, pw := updates["password_hash"]; pw || (in.IsActive != nil && !*in.IsActive) {
			return tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	return s.Get(ctx, actor, id)
}

// Delete deactivates the account and revokes its tokens.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id uint) error {
	user, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error
	})
	if err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	s.log.Info("User deactivated", "user_id", user.ID, "by", actor.ID)
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	taken, err := usernameTaken(ctx, s.db, username)
	if err != nil || taken {
		return false, err
	}
	if msg := checkPassword(password, username); msg != "" {
		return false, fmt.Errorf("admin password %s", msg)
	}
	if _, err := s.create(ctx, CreateUserInput{Username: username, Password: password, Role: models.RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}

func usernameTaken(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return n > 0, nil
}
