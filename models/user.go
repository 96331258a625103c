package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole decides which library operations an account may run. Every role
// may author study and library item changes.
type UserRole string

const (
	RoleAuthor UserRole = "author"
	RoleAdmin  UserRole = "admin"
)

// CanManageLibraries reports whether the role may create libraries.
func (r UserRole) CanManageLibraries() bool {
	return r == RoleAdmin
}

// User is an account that may sign library and study changes. The username
// is recorded as author on every version it writes.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	Username  string         `json:"username" gorm:"uniqueIndex;not null"`
	Email     string         `json:"email" gorm:"uniqueIndex;not null"`
	Password  string         `json:"-" gorm:"not null"`
	Role      UserRole       `json:"role" gorm:"default:'author'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// AuthorName is the value stored as author_username on the versions and
// study actions the user writes.
func (u User) AuthorName() string {
	return u.Username
}

// UserProfile is the account of the caller together with the identity its
// writes are recorded under.
type UserProfile struct {
	User
	AuthorUsername     string `json:"author_username"`
	CanManageLibraries bool   `json:"can_manage_libraries"`
}

func NewUserProfile(u User) UserProfile {
	return UserProfile{
		User:               u,
		AuthorUsername:     u.AuthorName(),
		CanManageLibraries: u.Role.CanManageLibraries(),
	}
}
