package models

import "time"

// Person is a lending counterparty. Contract dates optionally mirror an
// external directory and feed the contract-expiry-vs-due-date warning when a
// loan is created.
type Person struct {
	ID        uint   `gorm:"primaryKey;column:id;autoIncrement"`
	Email     string `gorm:"column:email;uniqueIndex:idx_person_email;not null"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`

	ContractStartDate *time.Time `gorm:"column:contract_start_date"`
	ContractEndDate   *time.Time `gorm:"column:contract_end_date"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Person) TableName() string { return "persons" }

// ContractExpiresBefore returns true if the person has a contract end date
// earlier than t.
func (p *Person) ContractExpiresBefore(t time.Time) bool {
	return p.ContractEndDate != nil && p.ContractEndDate.Before(t)
}

// User is an acting operator, resolved by username for batch operations.
type User struct {
	ID       uint   `gorm:"primaryKey;column:id;autoIncrement"`
	Username string `gorm:"column:username;uniqueIndex:idx_user_username;not null"`
	IsActive bool   `gorm:"column:is_active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (User) TableName() string { return "users" }
