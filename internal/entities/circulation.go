package entities

import "time"

// BookCollection tracks the copies of one book held by one hall.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type BookCollection struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	BookID          uint      `gorm:"not null;uniqueIndex:idx_collection_book_hall" json:"book_id"`
	HallID          uint      `gorm:"not null;uniqueIndex:idx_collection_book_hall;index" json:"hall_id"`
	TotalCopies     int       `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:0" json:"available_copies"`
	Book            *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Hall            *Hall     `gorm:"foreignKey:HallID" json:"hall,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusCancelled
}

// Request records a reader's intent to borrow a book from a hall.
// Creating one does not reserve inventory.
type Request struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ReaderID    uint          `gorm:"index;not null" json:"reader_id"`
	BookID      uint          `gorm:"index:idx_request_book_hall;not null" json:"book_id"`
	HallID      uint          `gorm:"index:idx_request_book_hall;not null" json:"hall_id"`
	RequestDate time.Time     `gorm:"not null" json:"request_date"`
	Status      RequestStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	LendingID   *uint         `json:"lending_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type LendingStatus string

const (
	LendingStatusPending  LendingStatus = "pending"
	LendingStatusReturned LendingStatus = "returned"
	LendingStatusLost     LendingStatus = "lost"
)

// Terminal reports whether no further transition is allowed.
func (s LendingStatus) Terminal() bool {
	return s == LendingStatusReturned || s == LendingStatusLost
}

// Lending records a physical copy handed to a reader by a volunteer.
// It is created only by fulfilling a request.
type Lending struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	VolunteerID uint          `gorm:"index;not null" json:"volunteer_id"`
	ReqID       uint          `gorm:"uniqueIndex;not null" json:"req_id"`
	IssueDate   time.Time     `gorm:"not null" json:"issue_date"`
	ReturnDate  *time.Time    `json:"return_date,omitempty"`
	Status      LendingStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	Request     *Request      `gorm:"foreignKey:ReqID" json:"request,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
