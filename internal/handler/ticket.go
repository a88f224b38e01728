// Package handler contains the HTTP handlers for the public ticket board
// and the admin reservation desk.
package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/model"
	"github.com/iliyamo/raffle-ledger/internal/repository"
	"github.com/iliyamo/raffle-ledger/internal/service"
)

// TicketHandler exposes the ledger over HTTP.  Admin endpoints carry no
// authentication; deployments are expected to restrict /api/admin at the
// proxy.
type TicketHandler struct {
	Ledger *service.Ledger
	Log    log.FieldLogger
}

// NewTicketHandler constructs a TicketHandler.  ledger must be non-nil.
func NewTicketHandler(ledger *service.Ledger, logger log.FieldLogger) *TicketHandler {
	if ledger == nil {
		panic("nil ledger passed to NewTicketHandler")
	}
	return &TicketHandler{Ledger: ledger, Log: logger.WithField("component", "handler")}
}

type reserveBody struct {
	Numbers   []int  `json:"numbers"`
	Selection string `json:"selection"`
	Name      string `json:"name"`
	Contact   string `json:"contact"`
}

type numbersBody struct {
	Numbers []int `json:"numbers"`
}

// ListTickets handles GET /api/tickets and returns the status of all
// 10,000 tickets ordered by number.
func (h *TicketHandler) ListTickets(c echo.Context) error {
	all, err := h.Ledger.ListAll(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, all)
}

// Summary handles GET /api/tickets/summary.
func (h *TicketHandler) Summary(c echo.Context) error {
	s, err := h.Ledger.Summary(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// ListReservations handles GET /api/admin/reservations: every reserved or
// sold ticket with holder data, newest reservation first.
func (h *TicketHandler) ListReservations(c echo.Context) error {
	active, err := h.Ledger.ListActive(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if active == nil {
		active = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, active)
}

// ListReservationGroups handles GET /api/admin/reservation-groups.  The
// optional status query parameter narrows the result to reserved or sold
// groups.
func (h *TicketHandler) ListReservationGroups(c echo.Context) error {
	groups, err := h.Ledger.Groups(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return h.fail(c, err)
	}
	if groups == nil {
		groups = []model.ReservationGroup{}
	}
	return c.JSON(http.StatusOK, groups)
}

// Reserve handles POST /api/reserve.  On success it returns 201 with the
// reserved numbers; when any ticket was taken it returns 409 listing the
// unavailable numbers and reserves nothing.
func (h *TicketHandler) Reserve(c echo.Context) error {
	var body reserveBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Ledger.Reserve(c.Request().Context(), service.ReserveRequest{
		Numbers:   body.Numbers,
		Selection: body.Selection,
		Name:      body.Name,
		Contact:   body.Contact,
	})
	if err != nil {
		return h.fail(c, err)
	}
	resp := echo.Map{
		"success": true,
		"message": fmt.Sprintf("Reserved %s. A confirmation will be sent to your contact.", tickets(len(res.Numbers))),
		"numbers": model.FormatNumbers(res.Numbers),
	}
	if res.AmountDue != "" {
		resp["amount_due"] = res.AmountDue
	}
	return c.JSON(http.StatusCreated, resp)
}

// Approve handles POST /api/admin/approve.
func (h *TicketHandler) Approve(c echo.Context) error {
	var body numbersBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	changed, err := h.Ledger.Approve(c.Request().Context(), body.Numbers)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("Approved %s.", tickets(changed)),
		"changed": changed,
	})
}

// Release handles POST /api/admin/release.
func (h *TicketHandler) Release(c echo.Context) error {
	var body numbersBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	changed, err := h.Ledger.Release(c.Request().Context(), body.Numbers)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("Released %s.", tickets(int(changed))),
		"changed": changed,
	})
}

func tickets(n int) string {
	if n == 1 {
		return "1 ticket"
	}
	return fmt.Sprintf("%d tickets", n)
}

// fail maps ledger errors onto HTTP responses.  Storage details are logged
// and never echoed to the client.
func (h *TicketHandler) fail(c echo.Context, err error) error {
	var conflict *repository.ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       conflict.Error(),
			"unavailable": conflict.Labels(),
		})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		h.Log.WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
