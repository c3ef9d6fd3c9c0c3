// Package catalog maps places, events and tickets straight onto their tables.
package catalog

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrSoldOut  = errors.New("no tickets left for this event")
)

const TicketStatusCancelled = "cancelled"

type Store struct {
	DB *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) ListPlaces(ctx context.Context, offset, limit int) ([]models.Place, error) {
	out := []models.Place{}
	err := s.DB.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) GetPlace(ctx context.Context, id uint) (*models.Place, error) {
	var p models.Place
	if err := s.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreatePlace(ctx context.Context, p *models.Place) error {
	return s.DB.WithContext(ctx).Create(p).Error
}

func (s *Store) SavePlace(ctx context.Context, p *models.Place) error {
	return s.DB.WithContext(ctx).Save(p).Error
}

// DeletePlace also removes the place's events and their tickets.
func (s *Store) DeletePlace(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Place{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		sub := tx.Model(&models.Event{}).Select("id").Where("place_id = ?", id)
		if err := tx.Where("event_id IN (?)", sub).Delete(&models.Ticket{}).Error; err != nil {
			return err
		}
		return tx.Where("place_id = ?", id).Delete(&models.Event{}).Error
	})
}

func (s *Store) ListEvents(ctx context.Context, offset, limit int) ([]models.Event, error) {
	out := []models.Event{}
	err := s.DB.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) EventsByPlace(ctx context.Context, placeID uint) ([]models.Event, error) {
	out := []models.Event{}
	err := s.DB.WithContext(ctx).Where("place_id = ?", placeID).Order("start_date ASC, start_time ASC").Find(&out).Error
	return out, err
}

func (s *Store) GetEvent(ctx context.Context, id uint) (*models.Event, error) {
	var ev models.Event
	if err := s.DB.WithContext(ctx).First(&ev, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *models.Event) error {
	return s.DB.WithContext(ctx).Create(ev).Error
}

func (s *Store) SaveEvent(ctx context.Context, ev *models.Event) error {
	return s.DB.WithContext(ctx).Save(ev).Error
}

func (s *Store) DeleteEvent(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Event{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("event_id = ?", id).Delete(&models.Ticket{}).Error
	})
}

// SearchEvents is the database fallback when no search cluster is configured.
func (s *Store) SearchEvents(ctx context.Context, q string, offset, limit int) (int64, []models.Event, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	tx := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern).
		Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, nil, err
	}
	out := []models.Event{}
	if err := tx.Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return 0, nil, err
	}
	return total, out, nil
}

func (s *Store) ListTickets(ctx context.Context, offset, limit int) ([]models.Ticket, error) {
	out := []models.Ticket{}
	err := s.DB.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) TicketsByUser(ctx context.Context, userID uint) ([]models.Ticket, error) {
	out := []models.Ticket{}
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&out).Error
	return out, err
}

func (s *Store) GetTicket(ctx context.Context, id uint) (*models.Ticket, error) {
	var t models.Ticket
	if err := s.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// TicketCount counts tickets that still hold a seat.
func (s *Store) TicketCount(ctx context.Context, eventID uint) (int64, error) {
	return countTickets(s.DB.WithContext(ctx), eventID)
}

func countTickets(tx *gorm.DB, eventID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Ticket{}).
		Where("event_id = ? AND status <> ?", eventID, TicketStatusCancelled).
		Count(&n).Error
	return n, err
}

// forUpdate locks the selected rows on postgres. SQLite has no FOR UPDATE and
// serialises writers anyway.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// BuyTicket inserts t unless the event's max_tickets is reached. On postgres
// the event row is locked so concurrent purchases are counted one at a time.
func (s *Store) BuyTicket(ctx context.Context, t *models.Ticket) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev models.Event
		if err := forUpdate(tx).First(&ev, t.EventID).Error; err != nil {
			return notFound(err)
		}

		sold, err := countTickets(tx, ev.ID)
		if err != nil {
			return err
		}
		if sold >= int64(ev.MaxTickets) {
			return ErrSoldOut
		}
		if t.Price == 0 {
			t.Price = ev.Price
		}
		return tx.Create(t).Error
	})
}

// UpdateTicket saves t. A cancelled ticket that becomes active again takes a
// seat, so it goes through the same capacity check as BuyTicket.
func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.Ticket
		if err := forUpdate(tx).First(&stored, t.ID).Error; err != nil {
			return notFound(err)
		}

		if stored.Status == TicketStatusCancelled && t.Status != TicketStatusCancelled {
			var ev models.Event
			if err := forUpdate(tx).First(&ev, stored.EventID).Error; err != nil {
				return notFound(err)
			}
			sold, err := countTickets(tx, ev.ID)
			if err != nil {
				return err
			}
			if sold >= int64(ev.MaxTickets) {
				return ErrSoldOut
			}
		}
		return tx.Save(t).Error
	})
}

func (s *Store) DeleteTicket(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Delete(&models.Ticket{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
