// Package model defines database models
package model

import "time"

type User struct {
	ID       string  `gorm:"primaryKey;size:16" json:"id"`
	Email    string  `gorm:"uniqueIndex;not null" json:"email"`
	FullName *string `json:"full_name"`
	// Nil for accounts that only ever signed in through an OAuth provider
	PasswordHash *string `json:"-"`

	IsActive    bool `gorm:"not null" json:"is_active"`
	IsSuperuser bool `gorm:"not null" json:"is_superuser"`
	IsVerified  bool `gorm:"not null" json:"is_verified"`

	CreatedAt time.Time `gorm:"autoCreateTime;<-:create" json:"time_created"`
}
