package model

import "time"

// User is an account identified by phone number.
type User struct {
	ID           string    `gorm:"primaryKey;size:64"`
	PasswordHash string    `gorm:"size:256;not null"`
	Credits      int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}
