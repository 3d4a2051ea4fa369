package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
	"github.com/alanyoungcy/tradecore/internal/gateway/middleware"
)

// ReplyWaiter correlates engine replies to in-flight requests. It is
// implemented by gateway.Waiter.
type ReplyWaiter interface {
	Register(orderID string) (<-chan domain.Reply, func())
	Await(ctx context.Context, ch <-chan domain.Reply, timeout time.Duration) (domain.Reply, error)
}

// TradeHandler serves trade placement, closing, history, and balance.
type TradeHandler struct {
	log          domain.EventLog
	waiter       ReplyWaiter
	users        domain.UserStore
	archive      domain.OrderArchive
	stream       string
	replyTimeout time.Duration
	logger       *slog.Logger
}

// NewTradeHandler creates a TradeHandler submitting commands to the given
// engine stream and waiting up to replyTimeout for each reply.
func NewTradeHandler(
	log domain.EventLog,
	waiter ReplyWaiter,
	users domain.UserStore,
	archive domain.OrderArchive,
	stream string,
	replyTimeout time.Duration,
	logger *slog.Logger,
) *TradeHandler {
	return &TradeHandler{
		log:          log,
		waiter:       waiter,
		users:        users,
		archive:      archive,
		stream:       stream,
		replyTimeout: replyTimeout,
		logger:       logHandler(logger, "trade"),
	}
}

type placeRequest struct {
	Asset      string `json:"asset"`
	Side       string `json:"side"`
	Margin     string `json:"margin"`
	Leverage   int64  `json:"leverage"`
	TakeProfit string `json:"takeProfit,omitempty"`
	StopLoss   string `json:"stopLoss,omitempty"`
}

// Place handles POST /api/v1/trade. The margin is debited up front; if the
// engine rejects the command the margin is credited back.
func (h *TradeHandler) Place(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req placeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input format")
		return
	}

	cmd, msg := h.buildPlace(userID, req)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.users.DebitBalance(r.Context(), userID, cmd.Margin); err != nil {
		if errors.Is(err, domain.ErrInsufficient) {
			writeError(w, http.StatusBadRequest, "insufficient balance")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			// Valid token for an account that no longer exists.
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "debit balance", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ch, cleanup := h.waiter.Register(cmd.OrderID)
	defer cleanup()

	if err := h.submit(r, domain.Command(cmd)); err != nil {
		// Nothing reached the engine; the debit is safe to undo.
		h.refund(r, userID, cmd.Margin)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	reply, err := h.waiter.Await(r.Context(), ch, h.replyTimeout)
	if err != nil {
		// The command is on the stream and may still be applied; report
		// pending rather than refunding.
		writeJSON(w, http.StatusAccepted, map[string]string{
			"msg":     "trade request sent to engine",
			"orderId": cmd.OrderID,
		})
		return
	}

	switch reply.Status {
	case domain.StatusOpened:
		writeJSON(w, http.StatusOK, map[string]any{
			"msg":       "trade opened",
			"orderId":   cmd.OrderID,
			"openPrice": reply.OpenPrice,
		})
	case domain.StatusPriceNotAvailable:
		h.refund(r, userID, cmd.Margin)
		writeError(w, http.StatusServiceUnavailable, "price not available for asset")
	default:
		h.refund(r, userID, cmd.Margin)
		writeError(w, http.StatusBadRequest, "trade rejected: "+string(reply.Status))
	}
}

type closeRequest struct {
	OrderID string `json:"orderId"`
}

// Close handles POST /api/v1/trade/close.
func (h *TradeHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req closeRequest
	if err := decodeBody(r, &req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	ch, cleanup := h.waiter.Register(req.OrderID)
	defer cleanup()

	cmd := domain.CloseCommand{OrderID: req.OrderID, UserID: userID}
	if err := h.submit(r, cmd); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	reply, err := h.waiter.Await(r.Context(), ch, h.replyTimeout)
	if err != nil {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"msg":     "close request sent to engine",
			"orderId": req.OrderID,
		})
		return
	}

	switch reply.Status {
	case domain.StatusClosed:
		writeJSON(w, http.StatusOK, map[string]any{
			"msg":        "trade closed",
			"orderId":    req.OrderID,
			"closePrice": reply.ClosePrice,
			"pnl":        reply.Pnl,
		})
	case domain.StatusInvalidOrder:
		writeError(w, http.StatusBadRequest, "no open trade with that orderId")
	case domain.StatusPriceNotAvailable:
		writeError(w, http.StatusServiceUnavailable, "price not available for asset")
	default:
		writeError(w, http.StatusBadRequest, "close rejected: "+string(reply.Status))
	}
}

// ListClosed handles GET /api/v1/trade. It returns the user's trades closed
// since the start of the current UTC day, or since ?since=RFC3339.
func (h *TradeHandler) ListClosed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	since := time.Now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	trades, err := h.archive.ListByUser(r.Context(), userID, since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list closed trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if trades == nil {
		trades = []domain.ClosedOrder{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Balance handles GET /api/v1/balance.
func (h *TradeHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance":          user.Balance,
		"balanceFormatted": user.Balance.String(),
	})
}

// buildPlace validates the request and assembles the engine command. A
// non-empty message describes the first rejection.
func (h *TradeHandler) buildPlace(userID string, req placeRequest) (domain.PlaceCommand, string) {
	var cmd domain.PlaceCommand

	if req.Asset == "" {
		return cmd, "asset is required"
	}
	side := domain.Side(req.Side)
	if side != domain.SideLong && side != domain.SideShort {
		return cmd, "side must be long or short"
	}
	margin, err := fixed.ParseMoney(req.Margin)
	if err != nil || margin <= 0 {
		return cmd, "margin must be a positive decimal amount"
	}
	if !domain.ValidLeverage(req.Leverage) {
		return cmd, "unsupported leverage"
	}

	cmd = domain.PlaceCommand{
		OrderID:  uuid.NewString(),
		UserID:   userID,
		Asset:    req.Asset,
		Side:     side,
		Margin:   margin,
		Leverage: req.Leverage,
	}

	if req.TakeProfit != "" {
		tp, err := fixed.ParsePrice(req.TakeProfit)
		if err != nil || tp <= 0 {
			return cmd, "takeProfit must be a positive decimal price"
		}
		cmd.TakeProfit = &tp
	}
	if req.StopLoss != "" {
		sl, err := fixed.ParsePrice(req.StopLoss)
		if err != nil || sl <= 0 {
			return cmd, "stopLoss must be a positive decimal price"
		}
		cmd.StopLoss = &sl
	}
	return cmd, ""
}

// submit encodes the command and appends it to the engine stream.
func (h *TradeHandler) submit(r *http.Request, cmd domain.Command) error {
	kind, payload, err := domain.EncodeCommand(cmd)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "encode command", slog.String("error", err.Error()))
		return err
	}
	if _, err := h.log.Append(r.Context(), h.stream, kind, payload); err != nil {
		h.logger.ErrorContext(r.Context(), "append command", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// refund credits a debited margin back after a rejected place. Failures are
// logged; there is no reasonable recovery inside the request.
func (h *TradeHandler) refund(r *http.Request, userID string, margin fixed.Money) {
	if err := h.users.CreditBalance(r.Context(), userID, margin); err != nil {
		h.logger.ErrorContext(r.Context(), "refund margin",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
