package models

import "time"

type Place struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"not null"                 json:"name"`
	Address    string    `gorm:"not null"                 json:"address"`
	City       string    `gorm:"not null"                 json:"city"`
	PostalCode string    `gorm:"not null"                 json:"postal_code"`
	Country    string    `gorm:"not null"                 json:"country"`
	Capacity   uint      `gorm:"not null"                 json:"capacity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Event struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	StartDate   string    `gorm:"not null"                 json:"start_date"`
	StartTime   string    `gorm:"not null"                 json:"start_time"`
	EndDate     string    `gorm:"not null"                 json:"end_date"`
	EndTime     string    `gorm:"not null"                 json:"end_time"`
	PlaceID     uint      `gorm:"index;not null"           json:"place_id"`
	Place       *Place    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Price       float64   `gorm:"not null"                 json:"price"`
	MaxTickets  uint      `gorm:"not null"                 json:"max_tickets"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Ticket struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      uint      `gorm:"index;not null"           json:"event_id"`
	Event        *Event    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID       uint      `gorm:"index;not null"           json:"user_id"`
	Status       string    `gorm:"not null;default:active"  json:"status"`
	PurchaseDate string    `gorm:"not null"                 json:"purchase_date"`
	SeatNumber   string    `json:"seat_number"`
	Price        float64   `gorm:"not null"                 json:"price"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func All() []any {
	return []any{&User{}, &TokenSession{}, &Place{}, &Event{}, &Ticket{}}
}
