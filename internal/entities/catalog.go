package entities

import (
	"strings"
	"time"

	"github.com/hallshelf/hallshelf/internal/apperr"
)

// Record is implemented by every catalog table managed through the generic
// catalog store.
type Record interface {
	GetID() uint
	SetID(id uint)
	Validate() error
}

type Author struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index;size:256;not null" json:"name"`
	Bio       string    `gorm:"type:text" json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Author) GetID() uint { return a.ID }
func (a *Author) SetID(id uint) { a.ID = id }

func (a *Author) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return apperr.Validation("name", "is required")
	}
	return nil
}

type Publisher struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:256;not null" json:"name"`
	Country   string    `gorm:"size:100" json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Publisher) GetID() uint { return p.ID }
func (p *Publisher) SetID(id uint) { p.ID = id }

func (p *Publisher) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("name", "is required")
	}
	return nil
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Category) GetID() uint { return c.ID }
func (c *Category) SetID(id uint) { c.ID = id }

func (c *Category) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return apperr.Validation("name", "is required")
	}
	return nil
}

type Department struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Department) GetID() uint { return d.ID }
func (d *Department) SetID(id uint) { d.ID = id }

func (d *Department) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return apperr.Validation("name", "is required")
	}
	return nil
}

// Hall is a residential unit running its own book inventory.
type Hall struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Location     string    `gorm:"size:255" json:"location,omitempty"`
	DepartmentID *uint     `gorm:"index" json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (h *Hall) GetID() uint { return h.ID }
func (h *Hall) SetID(id uint) { h.ID = id }

func (h *Hall) Validate() error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return apperr.Validation("name", "is required")
	}
	return nil
}

type Book struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"index;size:512;not null" json:"title"`
	ISBN          *string   `gorm:"uniqueIndex;size:20" json:"isbn,omitempty"`
	AuthorID      uint      `gorm:"index;not null" json:"author_id"`
	PublisherID   *uint     `gorm:"index" json:"publisher_id,omitempty"`
	CategoryID    *uint     `gorm:"index" json:"category_id,omitempty"`
	PublishedYear int       `json:"published_year,omitempty"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (b *Book) GetID() uint { return b.ID }
func (b *Book) SetID(id uint) { b.ID = id }

func (b *Book) Validate() error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return apperr.Validation("title", "is required")
	}
	if b.AuthorID == 0 {
		return apperr.Validation("author_id", "is required")
	}
	if b.ISBN != nil {
		isbn := strings.ReplaceAll(strings.TrimSpace(*b.ISBN), "-", "")
		if isbn == "" {
			b.ISBN = nil
		} else if len(isbn) != 10 && len(isbn) != 13 {
			return apperr.Validation("isbn", "must have 10 or 13 characters")
		} else {
			b.ISBN = &isbn
		}
	}
	if b.PublishedYear < 0 {
		return apperr.Validation("published_year", "must not be negative")
	}
	return nil
}
