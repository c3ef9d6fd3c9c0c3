package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ticket_reservation/internal/middleware/auth"
	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/util"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
	"github.com/Skotchmaster/ticket_reservation/pkg/validate"
)

const (
	DefaultEventTopic   = "catalog_events"
	TicketStatusActive  = "active"
	maxNameLen          = 191
	maxPostalCodeLen    = 20
	maxStatusLen        = 50
	maxSeatNumberLen    = 10
	eventPublishTimeout = 5 * time.Second
)

// EventIndex mirrors events into a full-text index. *search.Client implements it.
type EventIndex interface {
	IndexEvent(ctx context.Context, ev *models.Event) error
	DeleteEvent(ctx context.Context, id uint) error
	SearchEvents(ctx context.Context, query string, from, size int) (int64, []models.Event, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Handler struct {
	Store  *Store
	Index  EventIndex
	Events Publisher
	Topic  string
	Now    func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) publish(c echo.Context, key string, event map[string]any) {
	if h.Events == nil {
		return
	}
	topic := h.Topic
	if topic == "" {
		topic = DefaultEventTopic
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), eventPublishTimeout)
	defer cancel()
	if err := h.Events.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("event_publish_error", "type", event["type"], "error", err)
	}
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid id.")
	}
	return uint(id), nil
}

func page(c echo.Context) (int, int) {
	return util.Page(util.Atoi(c.QueryParam("page"), 1), util.Atoi(c.QueryParam("size"), util.MaxPageSize))
}

func storeError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found.")
	case errors.Is(err, ErrSoldOut):
		return echo.NewHTTPError(http.StatusConflict, "No tickets left for this event.")
	default:
		return err
	}
}

// places

type placeRequest struct {
	Name       *string `json:"name"`
	Address    *string `json:"address"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
	Capacity   *int    `json:"capacity"`
}

// apply copies present fields into p. With create set every field is required.
func (r *placeRequest) apply(p *models.Place, create bool) error {
	v := validate.Errors{}
	text := func(field string, val *string, max int, dst *string) {
		if val == nil {
			if create {
				v.Add(field, "The %s field is required.", field)
			}
			return
		}
		if v.Required(field, *val) {
			v.MaxLen(field, *val, max)
			*dst = strings.TrimSpace(*val)
		}
	}
	text("name", r.Name, maxNameLen, &p.Name)
	text("address", r.Address, maxNameLen, &p.Address)
	text("city", r.City, maxNameLen, &p.City)
	text("postal_code", r.PostalCode, maxPostalCodeLen, &p.PostalCode)
	text("country", r.Country, maxNameLen, &p.Country)

	switch {
	case r.Capacity == nil:
		if create {
			v.Add("capacity", "The capacity field is required.")
		}
	case *r.Capacity < 1:
		v.Add("capacity", "The capacity field must be at least 1.")
	default:
		p.Capacity = uint(*r.Capacity)
	}
	return v.Err()
}

func (h *Handler) ListPlaces(c echo.Context) error {
	offset, limit := page(c)
	places, err := h.Store.ListPlaces(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, places)
}

func (h *Handler) GetPlace(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Store.GetPlace(c.Request().Context(), id)
	if err != nil {
		return storeError(err, "Place")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePlace(c echo.Context) error {
	var req placeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}
	var p models.Place
	if err := req.apply(&p, true); err != nil {
		return err
	}
	if err := h.Store.CreatePlace(c.Request().Context(), &p); err != nil {
		return err
	}
	h.publish(c, strconv.FormatUint(uint64(p.ID), 10), map[string]any{"type": "place_created", "place_id": p.ID})
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePlace(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req placeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}

	ctx := c.Request().Context()
	p, err := h.Store.GetPlace(ctx, id)
	if err != nil {
		return storeError(err, "Place")
	}
	if err := req.apply(p, false); err != nil {
		return err
	}
	if err := h.Store.SavePlace(ctx, p); err != nil {
		return err
	}
	h.publish(c, strconv.FormatUint(uint64(p.ID), 10), map[string]any{"type": "place_updated", "place_id": p.ID})
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePlace(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Store.DeletePlace(c.Request().Context(), id); err != nil {
		return storeError(err, "Place")
	}
	h.publish(c, strconv.FormatUint(uint64(id), 10), map[string]any{"type": "place_deleted", "place_id": id})
	return c.NoContent(http.StatusNoContent)
}

// events

type eventRequest struct {
	Name        *string  `json:"name"`
	StartDate   *string  `json:"start_date"`
	StartTime   *string  `json:"start_time"`
	EndDate     *string  `json:"end_date"`
	EndTime     *string  `json:"end_time"`
	PlaceID     *uint    `json:"place_id"`
	Price       *float64 `json:"price"`
	MaxTickets  *int     `json:"max_tickets"`
	Description *string  `json:"description"`
}

func (r *eventRequest) apply(ev *models.Event, create bool) error {
	v := validate.Errors{}
	required := func(field string, present bool) bool {
		if !present && create {
			v.Add(field, "The %s field is required.", field)
		}
		return present
	}

	if required("name", r.Name != nil) && v.Required("name", *r.Name) {
		v.MaxLen("name", *r.Name, maxNameLen)
		ev.Name = strings.TrimSpace(*r.Name)
	}
	if required("start_date", r.StartDate != nil) {
		v.Date("start_date", *r.StartDate)
		ev.StartDate = *r.StartDate
	}
	if required("start_time", r.StartTime != nil) {
		v.Clock("start_time", *r.StartTime)
		ev.StartTime = *r.StartTime
	}
	if required("end_date", r.EndDate != nil) {
		v.Date("end_date", *r.EndDate)
		ev.EndDate = *r.EndDate
	}
	if required("end_time", r.EndTime != nil) {
		v.Clock("end_time", *r.EndTime)
		ev.EndTime = *r.EndTime
	}
	if required("place_id", r.PlaceID != nil) {
		ev.PlaceID = *r.PlaceID
	}
	if required("price", r.Price != nil) {
		v.NonNegative("price", *r.Price)
		ev.Price = *r.Price
	}
	if required("max_tickets", r.MaxTickets != nil) {
		if *r.MaxTickets < 0 {
			v.Add("max_tickets", "The max_tickets field must be at least 0.")
		} else {
			ev.MaxTickets = uint(*r.MaxTickets)
		}
	}
	if r.Description != nil {
		ev.Description = *r.Description
	}

	// dates are YYYY-MM-DD and times HH:MM, so string order is time order
	if len(v) == 0 && ev.EndDate+ev.EndTime < ev.StartDate+ev.StartTime {
		v.Add("end_date", "The end must be after the start.")
	}
	return v.Err()
}

// checkPlace reports a missing place as a validation error on place_id.
func (h *Handler) checkPlace(ctx context.Context, id uint) error {
	if _, err := h.Store.GetPlace(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			v := validate.Errors{}
			v.Add("place_id", "The selected place_id is invalid.")
			return v
		}
		return err
	}
	return nil
}

func (h *Handler) reindex(c echo.Context, ev *models.Event) {
	if h.Index == nil {
		return
	}
	if err := h.Index.IndexEvent(c.Request().Context(), ev); err != nil {
		logging.FromContext(c.Request().Context()).Error("search_index_error", "event_id", ev.ID, "error", err)
	}
}

func (h *Handler) ListEvents(c echo.Context) error {
	offset, limit := page(c)
	events, err := h.Store.ListEvents(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) GetEvent(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ev, err := h.Store.GetEvent(c.Request().Context(), id)
	if err != nil {
		return storeError(err, "Event")
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) EventsByPlace(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	events, err := h.Store.EventsByPlace(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "No events found for this place.")
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) SearchEvents(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		v := validate.Errors{}
		v.Add("q", "The q field is required.")
		return v
	}
	offset, limit := util.Page(util.Atoi(c.QueryParam("page"), 1), util.Atoi(c.QueryParam("size"), util.DefaultPageSize))

	ctx := c.Request().Context()
	var (
		total  int64
		events []models.Event
		err    error
	)
	if h.Index != nil {
		total, events, err = h.Index.SearchEvents(ctx, q, offset, limit)
		if err != nil {
			logging.FromContext(ctx).Error("search_error", "error", err)
			return echo.NewHTTPError(http.StatusBadGateway, "Search is unavailable.")
		}
	} else {
		total, events, err = h.Store.SearchEvents(ctx, q, offset, limit)
		if err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "events": events})
}

func (h *Handler) CreateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}
	var ev models.Event
	if err := req.apply(&ev, true); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.checkPlace(ctx, ev.PlaceID); err != nil {
		return err
	}
	if err := h.Store.CreateEvent(ctx, &ev); err != nil {
		return err
	}
	h.reindex(c, &ev)
	h.publish(c, strconv.FormatUint(uint64(ev.ID), 10), map[string]any{"type": "event_created", "event_id": ev.ID})
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) UpdateEvent(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}

	ctx := c.Request().Context()
	ev, err := h.Store.GetEvent(ctx, id)
	if err != nil {
		return storeError(err, "Event")
	}
	if err := req.apply(ev, false); err != nil {
		return err
	}
	if req.PlaceID != nil {
		if err := h.checkPlace(ctx, ev.PlaceID); err != nil {
			return err
		}
	}
	if err := h.Store.SaveEvent(ctx, ev); err != nil {
		return err
	}
	h.reindex(c, ev)
	h.publish(c, strconv.FormatUint(uint64(ev.ID), 10), map[string]any{"type": "event_updated", "event_id": ev.ID})
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.Store.DeleteEvent(ctx, id); err != nil {
		return storeError(err, "Event")
	}
	if h.Index != nil {
		if err := h.Index.DeleteEvent(ctx, id); err != nil {
			logging.FromContext(ctx).Error("search_index_error", "event_id", id, "error", err)
		}
	}
	h.publish(c, strconv.FormatUint(uint64(id), 10), map[string]any{"type": "event_deleted", "event_id": id})
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TicketCount(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ev, err := h.Store.GetEvent(ctx, id)
	if err != nil {
		return storeError(err, "Event")
	}
	sold, err := h.Store.TicketCount(ctx, id)
	if err != nil {
		return err
	}
	available := int64(ev.MaxTickets) - sold
	if available < 0 {
		available = 0
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":    ev.ID,
		"count":       sold,
		"max_tickets": ev.MaxTickets,
		"available":   available,
	})
}

// tickets

type ticketRequest struct {
	EventID    *uint    `json:"event_id"`
	Status     *string  `json:"status"`
	SeatNumber *string  `json:"seat_number"`
	Price      *float64 `json:"price"`
}

func (r *ticketRequest) applyUpdate(t *models.Ticket) error {
	v := validate.Errors{}
	if r.Status != nil && v.Required("status", *r.Status) {
		v.MaxLen("status", *r.Status, maxStatusLen)
		t.Status = *r.Status
	}
	if r.SeatNumber != nil {
		v.MaxLen("seat_number", *r.SeatNumber, maxSeatNumberLen)
		t.SeatNumber = *r.SeatNumber
	}
	if r.Price != nil {
		v.NonNegative("price", *r.Price)
		t.Price = *r.Price
	}
	return v.Err()
}

func (h *Handler) ListTickets(c echo.Context) error {
	offset, limit := page(c)
	tickets, err := h.Store.ListTickets(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tickets)
}

func (h *Handler) MyTickets(c echo.Context) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	tickets, err := h.Store.TicketsByUser(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tickets)
}

func (h *Handler) GetTicket(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.Store.GetTicket(c.Request().Context(), id)
	if err != nil {
		return storeError(err, "Ticket")
	}
	return c.JSON(http.StatusOK, t)
}

// BuyTicket issues a ticket to the calling user at the event's price.
func (h *Handler) BuyTicket(c echo.Context) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	var req ticketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}

	v := validate.Errors{}
	if req.EventID == nil || *req.EventID == 0 {
		v.Add("event_id", "The event_id field is required.")
	}
	if req.SeatNumber != nil {
		v.MaxLen("seat_number", *req.SeatNumber, maxSeatNumberLen)
	}
	if err := v.Err(); err != nil {
		return err
	}

	t := models.Ticket{
		EventID:      *req.EventID,
		UserID:       user.ID,
		Status:       TicketStatusActive,
		PurchaseDate: h.now().UTC().Format(time.DateOnly),
	}
	if req.SeatNumber != nil {
		t.SeatNumber = *req.SeatNumber
	}
	if err := h.Store.BuyTicket(c.Request().Context(), &t); err != nil {
		return storeError(err, "Event")
	}

	h.publish(c, strconv.FormatUint(uint64(user.ID), 10), map[string]any{
		"type":      "ticket_purchased",
		"ticket_id": t.ID,
		"event_id":  t.EventID,
		"user_id":   user.ID,
	})
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateTicket(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req ticketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad Request.")
	}

	ctx := c.Request().Context()
	t, err := h.Store.GetTicket(ctx, id)
	if err != nil {
		return storeError(err, "Ticket")
	}
	if err := req.applyUpdate(t); err != nil {
		return err
	}
	if err := h.Store.UpdateTicket(ctx, t); err != nil {
		return storeError(err, "Ticket")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTicket(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Store.DeleteTicket(c.Request().Context(), id); err != nil {
		return storeError(err, "Ticket")
	}
	return c.NoContent(http.StatusNoContent)
}
