package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-ledger/internal/database"
	"github.com/iliyamo/raffle-ledger/internal/handler"
	"github.com/iliyamo/raffle-ledger/internal/logging"
	"github.com/iliyamo/raffle-ledger/internal/repository"
	"github.com/iliyamo/raffle-ledger/internal/service"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "raffle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.Init(context.Background(), db, database.SQLite)
	require.NoError(t, err)

	logger := logging.Discard()
	ledger := service.NewLedger(repository.NewTicketRepo(db, database.SQLite), nil,
		service.LedgerConfig{ReservationTTL: time.Hour}, logger)

	e := echo.New()
	d := Deps{Tickets: handler.NewTicketHandler(ledger, logger), DB: db, Log: logger}
	RegisterRoutes(e, d)
	RegisterTickets(e, d)
	return e
}

func TestRoutesAreWired(t *testing.T) {
	e := newServer(t)
	for _, tc := range []struct {
		method, path, body string
		code               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/tickets", "", http.StatusOK},
		{http.MethodGet, "/api/tickets/summary", "", http.StatusOK},
		{http.MethodPost, "/api/reserve", `{"numbers":[9],"name":"Ana","contact":"a@x.com"}`, http.StatusCreated},
		{http.MethodGet, "/api/admin/reservations", "", http.StatusOK},
		{http.MethodGet, "/api/admin/reservation-groups?status=reserved", "", http.StatusOK},
		{http.MethodPost, "/api/admin/approve", `{"numbers":[9]}`, http.StatusOK},
		{http.MethodPost, "/api/admin/release", `{"numbers":[9]}`, http.StatusOK},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equalf(t, tc.code, rec.Code, "%s %s", tc.method, tc.path)
	}
}
