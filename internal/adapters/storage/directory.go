package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"gorm.io/gorm"
)

// Directory reads users and rooms. Their CRUD lives elsewhere; Create* exist for
// seeding and tests.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var m UserModel
	if err := d.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("user %s not found", id)
		}
		return nil, domain.Transient("find user", err)
	}
	return m.toDomain(), nil
}

func (d *Directory) FindRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var m RoomModel
	if err := d.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("room %s not found", id)
		}
		return nil, domain.Transient("find room", err)
	}
	return m.toDomain(), nil
}

func (d *Directory) CreateUser(ctx context.Context, u *domain.User) error {
	m := UserModel{ID: string(u.ID), FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
	if err := d.db.WithContext(ctx).Save(&m).Error; err != nil {
		return domain.Transient("create user", err)
	}
	return nil
}

func (d *Directory) CreateRoom(ctx context.Context, r *domain.Room) error {
	m := RoomModel{ID: string(r.ID), Name: r.Name, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt, IsActive: r.IsActive}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Save(&m).Error; err != nil {
		return domain.Transient("create room", err)
	}
	r.CreatedAt = m.CreatedAt
	return nil
}
