package models

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a locally registered account. It is the ownership root for
// gmail credentials and workflows.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	Username     string    `gorm:"column:username"`
	Email        *string   `gorm:"column:email"`
	PasswordHash string    `gorm:"column:password_hash"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "user_accounts"
}
