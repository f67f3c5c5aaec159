package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = errors.New("user already exists")
)

// UserRepository provides access to user storage.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create saves a new user.
func (r *UserRepository) Create(ctx context.Context, user *UserRecord) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*UserRecord, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*UserRecord, error) {
	var user UserRecord
	if err := r.db.WithContext(ctx).First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// Exists reports whether the username or email is already registered.
func (r *UserRepository) Exists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserRecord{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

// UsernameTaken reports whether another account already uses username.
func (r *UserRepository) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserRecord{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// UpdateProfile applies column updates to a user and returns the stored row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, updates map[string]any) (*UserRecord, error) {
	result := r.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", id).Updates(updates)
	if err := result.Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return r.FindByID(ctx, id)
}

// TouchLastSeen records the last time a user was seen.
func (r *UserRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", id).Update("last_seen", at)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns users ordered by username, excluding excludeID. A non-empty
// search keeps usernames containing it.
func (r *UserRepository) List(ctx context.Context, excludeID, search string, limit int) ([]*UserRecord, error) {
	tx := r.db.WithContext(ctx).Where("id <> ?", excludeID)
	if search != "" {
		escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search)
		tx = tx.Where("username LIKE ? ESCAPE '\\'", "%"+escaped+"%")
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var users []*UserRecord
	if err := tx.Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
