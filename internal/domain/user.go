package domain

import "time"

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

type UserStatus string

const (
	UserPending  UserStatus = "PENDING"
	UserApproved UserStatus = "APPROVED"
	UserRejected UserStatus = "REJECTED"
)

type User struct {
	ID           uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string     `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	FirstName    string     `json:"firstName" gorm:"size:100"`
	LastName     string     `json:"lastName" gorm:"size:100"`
	Phone        string     `json:"phone" gorm:"size:32"`
	Role         Role       `json:"role" gorm:"type:varchar(16);not null;default:'BUYER'"`
	Status       UserStatus `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

type Product struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	SellerID    uint64    `json:"sellerId" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Category    string    `json:"category" gorm:"size:100;index"`
	Price       int64     `json:"price" gorm:"not null"`
	Stock       int64     `json:"stock" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}
