package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// UserType classifies admin API accounts.
type UserType string

const (
	UserTypeAdmin    UserType = "admin"
	UserTypeOperator UserType = "operator"
)

// User is an admin API account, not a subscriber.
type User struct {
	ID           uint     `gorm:"column:id;primaryKey" json:"id"`
	Username     string   `gorm:"column:username;size:50;not null;uniqueIndex" json:"username"`
	PasswordHash string   `gorm:"column:password_hash;size:255;not null" json:"-"`
	UserType     UserType `gorm:"column:user_type;size:20;default:operator" json:"user_type"`
	IsActive     bool     `gorm:"column:is_active;default:true" json:"is_active"`

	LastLogin *time.Time `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// SetPassword hashes and stores the password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
