package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/campus-chat/internal/models"
)

func (d *Database) SaveUser(user *models.User) error {
	return translate(d.db.Create(user).Error)
}

func (d *Database) GetUser(id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(email string) (*models.User, error) {
	user := models.User{}
	if err := d.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// SearchUsersByUsername returns users whose name starts with prefix.
func (d *Database) SearchUsersByUsername(prefix string, limit int) ([]models.User, error) {
	var users []models.User
	err := d.db.
		Where("LOWER(username) LIKE LOWER(?)", prefix+"%").
		Order("username").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (d *Database) SetDmBlocked(id uuid.UUID, blocked bool) error {
	return d.db.Model(&models.User{}).Where("id = ?", id).Update("dm_blocked", blocked).Error
}

func (d *Database) UpdateLastSeen(id uuid.UUID) error {
	return d.db.Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now().UTC()).Error
}
