// Package identity manages accounts: registration, credentials, profile
// fields and the privileged accounts ensured at startup.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsername = 2
	maxUsername = 32
	minPassword = 6
	maxPassword = 72 // bcrypt input limit
)

// Profile carries the editable profile fields.
type Profile struct {
	FullName string `json:"full_name"`
	Bio      string `json:"bio"`
	Location string `json:"location"`
}

// Service is the identity store.
type Service struct {
	db     *gorm.DB
	cost   int
	logger *zap.Logger
}

// NewService creates an identity Service hashing passwords at the given
// bcrypt cost. A cost outside bcrypt's range falls back to the default.
func NewService(db *gorm.DB, cost int, logger *zap.Logger) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{db: db, cost: cost, logger: logger}
}

// Register creates a user with role user.
func (svc *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	return svc.create(ctx, username, password, model.RoleUser)
}

func (svc *Service) create(ctx context.Context, username, password, role string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), svc.cost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, PasswordHash: string(hash), Role: role}
	if err := svc.db.WithContext(ctx).Create(u).Error; err != nil {
		if social.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %q", social.ErrAlreadyExists, username)
		}
		return nil, err
	}
	svc.logger.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", role))
	return u, nil
}

func validateCredentials(username, password string) error {
	if n := utf8.RuneCountInString(username); n < minUsername || n > maxUsername {
		return fmt.Errorf("%w: username must be %d-%d characters", social.ErrInvalidArgument, minUsername, maxUsername)
	}
	if len(password) < minPassword || len(password) > maxPassword {
		return fmt.Errorf("%w: password must be %d-%d bytes", social.ErrInvalidArgument, minPassword, maxPassword)
	}
	return nil
}

// Authenticate checks credentials and stamps the login time. Unknown users
// and wrong passwords both return ErrNotAuthorized; banned accounts are
// refused even with a correct password.
func (svc *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	var u model.User
	err := svc.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", social.ErrNotAuthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", social.ErrNotAuthorized)
	}
	if u.Banned {
		return nil, fmt.Errorf("%w: account banned", social.ErrNotAuthorized)
	}
	now := time.Now()
	if err := svc.db.WithContext(ctx).Model(&u).Update("last_login_at", now).Error; err != nil {
		svc.logger.Warn("last login update failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	u.LastLoginAt = &now
	return &u, nil
}

// Get loads a user by id.
func (svc *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	return social.FindUser(svc.db.WithContext(ctx), id)
}

// GetMany loads the users with the given ids, ordered by username. Unknown
// ids are skipped.
func (svc *Service) GetMany(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	var users []model.User
	err := svc.db.WithContext(ctx).Where("id IN ?", ids).Order("username").Find(&users).Error
	return users, err
}

// Exists reports whether a user with id exists.
func (svc *Service) Exists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// IsBanned reports the ban flag of id.
func (svc *Service) IsBanned(ctx context.Context, id int64) (bool, error) {
	u, err := svc.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return u.Banned, nil
}

// RoleOf returns the site role of id.
func (svc *Service) RoleOf(ctx context.Context, id int64) (string, error) {
	u, err := svc.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// RequireActive returns the user if it exists and is not banned.
func (svc *Service) RequireActive(ctx context.Context, id int64) (*model.User, error) {
	return social.ActiveUser(svc.db.WithContext(ctx), id)
}

// Bootstrap ensures each configured privileged account exists with its role.
// Existing accounts keep their password; only the role is corrected.
func (svc *Service) Bootstrap(ctx context.Context, accounts []config.BootstrapAccount) error {
	for _, acc := range accounts {
		if !model.ValidRole(acc.Role) {
			return fmt.Errorf("%w: bootstrap role %q", social.ErrInvalidArgument, acc.Role)
		}
		var u model.User
		err := svc.db.WithContext(ctx).Where("username = ?", acc.Username).First(&u).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := validateCredentials(acc.Username, acc.Password); err != nil {
				return fmt.Errorf("bootstrap %s: %w", acc.Username, err)
			}
			if _, err := svc.create(ctx, acc.Username, acc.Password, acc.Role); err != nil {
				return fmt.Errorf("bootstrap %s: %w", acc.Username, err)
			}
		case err != nil:
			return err
		case u.Role != acc.Role:
			if err := svc.db.WithContext(ctx).Model(&u).Update("role", acc.Role).Error; err != nil {
				return err
			}
			svc.logger.Info("bootstrap role corrected",
				zap.String("username", acc.Username), zap.String("role", acc.Role))
		}
	}
	return nil
}

// Search finds users whose username contains query, excluding the viewer
// and banned accounts.
func (svc *Service) Search(ctx context.Context, viewer int64, query string, limit int) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search", social.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	// MySQL already treats backslash as the LIKE escape and rejects '\'
	// as an unterminated literal.
	like := "username LIKE ? ESCAPE '\\'"
	if svc.db.Dialector.Name() == "mysql" {
		like = "username LIKE ?"
	}
	var users []model.User
	err := svc.db.WithContext(ctx).
		Where(like, "%"+escapeLike(query)+"%").
		Where("id <> ? AND banned = ?", viewer, false).
		Order("username").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// UpdateProfile overwrites the profile fields of userID.
func (svc *Service) UpdateProfile(ctx context.Context, userID int64, p Profile) (*model.User, error) {
	if utf8.RuneCountInString(p.FullName) > 64 || utf8.RuneCountInString(p.Location) > 64 {
		return nil, fmt.Errorf("%w: full_name and location are limited to 64 characters", social.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(p.Bio) > 2000 {
		return nil, fmt.Errorf("%w: bio is limited to 2000 characters", social.ErrInvalidArgument)
	}
	db := svc.db.WithContext(ctx)
	u, err := social.ActiveUser(db, userID)
	if err != nil {
		return nil, err
	}
	err = db.Model(u).Updates(map[string]interface{}{
		"full_name": strings.TrimSpace(p.FullName),
		"bio":       strings.TrimSpace(p.Bio),
		"location":  strings.TrimSpace(p.Location),
	}).Error
	if err != nil {
		return nil, err
	}
	return social.FindUser(db, userID)
}
