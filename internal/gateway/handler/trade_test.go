package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
	"github.com/alanyoungcy/tradecore/internal/gateway/middleware"
)

// stubUsers fails balance operations with a configurable error.
type stubUsers struct {
	debitErr error
	credits  int
}

func (s *stubUsers) Create(context.Context, string, string, fixed.Money) (domain.User, error) {
	return domain.User{}, nil
}

func (s *stubUsers) GetByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}

func (s *stubUsers) GetByID(context.Context, string) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}

func (s *stubUsers) DebitBalance(context.Context, string, fixed.Money) error {
	return s.debitErr
}

func (s *stubUsers) CreditBalance(context.Context, string, fixed.Money) error {
	s.credits++
	return nil
}

type stubLog struct {
	appends int
}

func (l *stubLog) Append(context.Context, string, string, []byte) (string, error) {
	l.appends++
	return "1-0", nil
}

func (l *stubLog) Read(context.Context, string, string, int64, time.Duration) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (l *stubLog) LastID(context.Context, string) (string, error) {
	return "0", nil
}

// stubWaiter hands back a canned reply, or times out when none is set.
type stubWaiter struct {
	reply *domain.Reply
}

func (w *stubWaiter) Register(string) (<-chan domain.Reply, func()) {
	ch := make(chan domain.Reply, 1)
	if w.reply != nil {
		ch <- *w.reply
	}
	return ch, func() {}
}

func (w *stubWaiter) Await(ctx context.Context, ch <-chan domain.Reply, timeout time.Duration) (domain.Reply, error) {
	select {
	case r := <-ch:
		return r, nil
	default:
		return domain.Reply{}, domain.ErrReplyTimeout
	}
}

type stubArchive struct{}

func (stubArchive) ArchiveClose(context.Context, domain.ClosedOrder, fixed.Money) error {
	return nil
}

func (stubArchive) ListByUser(context.Context, string, time.Time) ([]domain.ClosedOrder, error) {
	return nil, nil
}

func newTradeHandler(users *stubUsers, waiter *stubWaiter) (*TradeHandler, *stubLog) {
	log := &stubLog{}
	h := NewTradeHandler(log, waiter, users, stubArchive{}, "engine-stream",
		time.Second, slog.New(slog.DiscardHandler))
	return h, log
}

func placeReq(t *testing.T, userID string) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"asset": "BTC", "side": "long", "margin": "100.00", "leverage": 10,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trade", bytes.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestPlaceInsufficientBalance(t *testing.T) {
	users := &stubUsers{debitErr: domain.ErrInsufficient}
	h, log := newTradeHandler(users, &stubWaiter{})

	rec := httptest.NewRecorder()
	h.Place(rec, placeReq(t, "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient balance")
	assert.Equal(t, 0, log.appends)
}

func TestPlaceDeletedAccountIsNotFound(t *testing.T) {
	// A valid token whose account row no longer exists must not read as
	// an insufficient balance.
	users := &stubUsers{debitErr: domain.ErrNotFound}
	h, log := newTradeHandler(users, &stubWaiter{})

	rec := httptest.NewRecorder()
	h.Place(rec, placeReq(t, "gone"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
	assert.Equal(t, 0, log.appends)
}

func TestPlaceTimeoutReportsPending(t *testing.T) {
	users := &stubUsers{}
	h, log := newTradeHandler(users, &stubWaiter{})

	rec := httptest.NewRecorder()
	h.Place(rec, placeReq(t, "u1"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, log.appends)
	// The command may still apply; the margin stays debited.
	assert.Equal(t, 0, users.credits)
}

func TestPlaceRejectionRefundsMargin(t *testing.T) {
	users := &stubUsers{}
	h, _ := newTradeHandler(users, &stubWaiter{
		reply: &domain.Reply{Status: domain.StatusPriceNotAvailable},
	})

	rec := httptest.NewRecorder()
	h.Place(rec, placeReq(t, "u1"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, users.credits)
}
