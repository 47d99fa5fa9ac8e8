// Package httpapi exposes a read-only JSON API over rates, history and exchangers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
	"uah-rates-bot/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the JSON API.
type Server struct {
	rates  *service.Rates
	health Pinger
	logger zerolog.Logger
	router chi.Router
}

// New builds the router.
func New(rates *service.Rates, health Pinger, logger zerolog.Logger) *Server {
	s := &Server{
		rates:  rates,
		health: health,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", s.handleRates)
		r.Get("/history/{currency}", s.handleHistory)
		r.Get("/exchangers", s.handleExchangers)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
		return ctx.Err()
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type errorResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

type quoteJSON struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

type currencyJSON struct {
	NBU        *decimal.Decimal `json:"nbu"`
	Monobank   *quoteJSON       `json:"monobank"`
	PrivatBank *quoteJSON       `json:"privatbank"`
}

type ratesResponse struct {
	Timestamp time.Time                       `json:"timestamp"`
	Rates     map[model.Currency]currencyJSON `json:"rates"`
}

type historyPoint struct {
	ObservedAt time.Time       `json:"observed_at"`
	Buy        decimal.Decimal `json:"buy"`
	Sell       decimal.Decimal `json:"sell"`
}

type historyResponse struct {
	Currency model.Currency `json:"currency"`
	Source   model.Source   `json:"source"`
	Hours    int            `json:"hours"`
	Points   []historyPoint `json:"points"`
}

type exchangerRateJSON struct {
	Buy       decimal.Decimal `json:"buy"`
	Sell      decimal.Decimal `json:"sell"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type exchangerJSON struct {
	ID       int64                                `json:"id"`
	Name     string                               `json:"name"`
	Address  string                               `json:"address"`
	District string                               `json:"district"`
	Phone    string                               `json:"phone,omitempty"`
	Lat      float64                              `json:"lat"`
	Lon      float64                              `json:"lon"`
	Rates    map[model.Currency]exchangerRateJSON `json:"rates"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	agg := s.rates.FetchAllRates(r.Context())
	resp := ratesResponse{Timestamp: agg.Timestamp, Rates: make(map[model.Currency]currencyJSON, len(model.Currencies))}
	for _, currency := range model.Currencies {
		rates := agg.For(currency)
		var out currencyJSON
		if rates.NBU.Valid {
			nbu := rates.NBU.Decimal
			out.NBU = &nbu
		}
		if q := rates.Monobank; q != nil {
			out.Monobank = &quoteJSON{Buy: q.Buy, Sell: q.Sell}
		}
		if q := rates.PrivatBank; q != nil {
			out.PrivatBank = &quoteJSON{Buy: q.Buy, Sell: q.Sell}
		}
		resp.Rates[currency] = out
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	currency, err := model.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_CURRENCY", err.Error())
		return
	}
	source := model.SourceMonobank
	if raw := r.URL.Query().Get("source"); raw != "" {
		if source, err = model.ParseSource(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_SOURCE", err.Error())
			return
		}
	}
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 0 {
			s.writeError(w, http.StatusBadRequest, "INVALID_HOURS", "hours must be a non-negative integer")
			return
		}
	}

	quotes, err := s.rates.GetHistory(r.Context(), currency, source, hours)
	if err != nil {
		s.logger.Error().Err(err).Str("currency", string(currency)).Msg("query history")
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "history unavailable")
		return
	}

	resp := historyResponse{Currency: currency, Source: source, Hours: hours, Points: make([]historyPoint, 0, len(quotes))}
	for _, q := range quotes {
		resp.Points = append(resp.Points, historyPoint{ObservedAt: q.ObservedAt, Buy: q.Buy, Sell: q.Sell})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExchangers(w http.ResponseWriter, r *http.Request) {
	list, err := s.rates.ListExchangers(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list exchangers")
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "exchangers unavailable")
		return
	}
	out := make([]exchangerJSON, 0, len(list))
	for _, ex := range list {
		item := exchangerJSON{
			ID: ex.ID, Name: ex.Name, Address: ex.Address, District: ex.District,
			Phone: ex.Phone, Lat: ex.Lat, Lon: ex.Lon,
			Rates: make(map[model.Currency]exchangerRateJSON, len(ex.Rates)),
		}
		for currency, rate := range ex.Rates {
			item.Rates[currency] = exchangerRateJSON{Buy: rate.Buy, Sell: rate.Sell, UpdatedAt: rate.UpdatedAt}
		}
		out = append(out, item)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, description string) {
	s.writeJSON(w, status, errorResponse{ID: uuid.New(), Code: code, Description: description})
}
