package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/ticket_reservation/internal/catalog"
	"github.com/Skotchmaster/ticket_reservation/internal/metrics"
	"github.com/Skotchmaster/ticket_reservation/internal/middleware/auth"
	"github.com/Skotchmaster/ticket_reservation/internal/models"
	loggingmw "github.com/Skotchmaster/ticket_reservation/pkg/middleware/logging"
)

type Deps struct {
	Logger  *slog.Logger
	Auth    *AuthHandler
	Catalog *catalog.Handler
	Gate    *auth.Gate
	Metrics *metrics.Metrics
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
	// TrustedProxies are the only peers whose X-Forwarded-For is believed.
	// Empty means the client address is the TCP peer.
	TrustedProxies []*net.IPNet
}

func ipExtractor(proxies []*net.IPNet) echo.IPExtractor {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range proxies {
		opts = append(opts, echo.TrustIPRange(p))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// New builds the echo instance with the shared middleware stack and routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.IPExtractor = ipExtractor(d.TrustedProxies)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	api := e.Group("/api")

	api.POST("/register", d.Auth.Register)
	api.POST("/login", d.Auth.Login)
	api.POST("/refresh", d.Auth.Refresh)
	api.POST("/logout", d.Auth.LogOut)

	user := d.Gate.Require(models.RoleUser)
	organizer := d.Gate.Require(models.RoleOrganizer)
	admin := d.Gate.Require(models.RoleAdmin)

	api.GET("/me", d.Auth.Me, user)
	api.GET("/sessions", d.Auth.Sessions, user)
	api.POST("/logout-all", d.Auth.LogOutAll, user)

	if d.Catalog == nil {
		return
	}
	h := d.Catalog

	api.GET("/vietos", h.ListPlaces)
	api.GET("/vieta/:id", h.GetPlace)
	api.POST("/vieta", h.CreatePlace, organizer)
	api.PUT("/vieta/:id", h.UpdatePlace, organizer)
	api.DELETE("/vieta/:id", h.DeletePlace, admin)
	api.GET("/vieta/:id/renginiai", h.EventsByPlace)

	api.GET("/renginiai", h.ListEvents)
	api.GET("/renginiai/search", h.SearchEvents)
	api.GET("/renginys/:id", h.GetEvent)
	api.GET("/renginys/:id/ticket-count", h.TicketCount)
	api.POST("/renginys", h.CreateEvent, organizer)
	api.PUT("/renginys/:id", h.UpdateEvent, organizer)
	api.DELETE("/renginys/:id", h.DeleteEvent, organizer)

	api.GET("/bilietai", h.ListTickets, organizer)
	api.GET("/bilietas/:id", h.GetTicket, organizer)
	api.GET("/my-tickets", h.MyTickets, user)
	api.POST("/bilietas", h.BuyTicket, user)
	api.PUT("/bilietas/:id", h.UpdateTicket, organizer)
	api.DELETE("/bilietas/:id", h.DeleteTicket, organizer)
}
