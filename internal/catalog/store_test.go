package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/testdb"
)

func seedEvent(t *testing.T, s *Store, maxTickets uint) (*models.Place, *models.Event) {
	t.Helper()
	ctx := context.Background()
	p := &models.Place{Name: "Žalgirio arena", Address: "Karaliaus Mindaugo pr. 50", City: "Kaunas", PostalCode: "44334", Country: "LT", Capacity: 15000}
	require.NoError(t, s.CreatePlace(ctx, p))
	ev := &models.Event{
		Name: "Jazz vakaras", StartDate: "2025-05-01", StartTime: "19:00", EndDate: "2025-05-01", EndTime: "22:00",
		PlaceID: p.ID, Price: 25, MaxTickets: maxTickets, Description: "Live jazz",
	}
	require.NoError(t, s.CreateEvent(ctx, ev))
	return p, ev
}

func TestBuyTicket_Capacity(t *testing.T) {
	s := &Store{DB: testdb.New(t)}
	ctx := context.Background()
	_, ev := seedEvent(t, s, 2)

	first := &models.Ticket{EventID: ev.ID, UserID: 1, Status: "active", PurchaseDate: "2025-04-01"}
	require.NoError(t, s.BuyTicket(ctx, first))
	assert.Equal(t, 25.0, first.Price, "price defaults to the event price")

	require.NoError(t, s.BuyTicket(ctx, &models.Ticket{EventID: ev.ID, UserID: 2, Status: "active", PurchaseDate: "2025-04-01"}))
	err := s.BuyTicket(ctx, &models.Ticket{EventID: ev.ID, UserID: 3, Status: "active", PurchaseDate: "2025-04-01"})
	assert.ErrorIs(t, err, ErrSoldOut)

	first.Status = TicketStatusCancelled
	require.NoError(t, s.UpdateTicket(ctx, first))
	n, err := s.TicketCount(ctx, ev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.NoError(t, s.BuyTicket(ctx, &models.Ticket{EventID: ev.ID, UserID: 3, Status: "active", PurchaseDate: "2025-04-01"}))

	err = s.BuyTicket(ctx, &models.Ticket{EventID: 999, UserID: 3, Status: "active", PurchaseDate: "2025-04-01"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTicket_ReactivationRespectsCapacity(t *testing.T) {
	s := &Store{DB: testdb.New(t)}
	ctx := context.Background()
	_, ev := seedEvent(t, s, 1)

	first := &models.Ticket{EventID: ev.ID, UserID: 1, Status: "active", PurchaseDate: "2025-04-01"}
	require.NoError(t, s.BuyTicket(ctx, first))
	first.Status = TicketStatusCancelled
	require.NoError(t, s.UpdateTicket(ctx, first))

	require.NoError(t, s.BuyTicket(ctx, &models.Ticket{EventID: ev.ID, UserID: 2, Status: "active", PurchaseDate: "2025-04-01"}))

	first.Status = "active"
	assert.ErrorIs(t, s.UpdateTicket(ctx, first), ErrSoldOut)

	stored, err := s.GetTicket(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, TicketStatusCancelled, stored.Status)

	n, err := s.TicketCount(ctx, ev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	first.Status = TicketStatusCancelled
	first.SeatNumber = "B2"
	assert.NoError(t, s.UpdateTicket(ctx, first), "edits that keep the ticket cancelled need no seat")

	assert.ErrorIs(t, s.UpdateTicket(ctx, &models.Ticket{ID: 999, Status: "active"}), ErrNotFound)
}

func TestDeletePlace_RemovesEventsAndTickets(t *testing.T) {
	s := &Store{DB: testdb.New(t)}
	ctx := context.Background()
	p, ev := seedEvent(t, s, 10)
	require.NoError(t, s.BuyTicket(ctx, &models.Ticket{EventID: ev.ID, UserID: 1, Status: "active", PurchaseDate: "2025-04-01"}))

	require.NoError(t, s.DeletePlace(ctx, p.ID))

	_, err := s.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	tickets, err := s.TicketsByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	assert.ErrorIs(t, s.DeletePlace(ctx, p.ID), ErrNotFound)
}

func TestSearchEvents_Fallback(t *testing.T) {
	s := &Store{DB: testdb.New(t)}
	ctx := context.Background()
	seedEvent(t, s, 10)

	total, events, err := s.SearchEvents(ctx, "JAZZ", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, "Jazz vakaras", events[0].Name)

	total, events, err = s.SearchEvents(ctx, "opera", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
}
