package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"firmledger/internal/audit"
	"firmledger/internal/auth"
	"firmledger/internal/catalog"
	"firmledger/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	log     *slog.Logger
	admin   *auth.AdminGuard
	game    *game.Service
	catalog catalog.Catalog
	audit   *audit.SettlementLog
	schemas schemas
	mux     *chi.Mux
}

// New builds the HTTP API. auditLog may be nil to skip the settlement trail.
func New(logger *slog.Logger, admin *auth.AdminGuard, gameSvc *game.Service, cat catalog.Catalog, auditLog *audit.SettlementLog) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:     logger,
		admin:   admin,
		game:    gameSvc,
		catalog: cat,
		audit:   auditLog,
		schemas: sc,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/month", s.handleMonth)
		r.Get("/months/{month}/cycles", s.handleMonthCycles)
		r.Get("/players", s.handlePlayersList)
		r.Get("/players/{id}/balance", s.handlePlayerBalance)
		r.Get("/players/{id}/exchanges", s.handlePlayerExchanges)
		r.Get("/firm-types", s.handleFirmTypesList)
		r.Get("/firms", s.handleFirmsList)
		r.Post("/firms", s.handleCreateFirm)
		r.Post("/firms/upgrade", s.handleUpgradeFirm)
		r.Post("/exchanges/transfer", s.handleTransfer)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.admin.Middleware)
			r.Post("/init", s.handleInit)
			r.Post("/initial-exchange", s.handleInitialExchange)
			r.Post("/next-month", s.handleNextMonth)
			r.Post("/players", s.handleCreatePlayer)
			r.Get("/env-config", s.handleEnvConfigList)
			r.Put("/env-config/{key}", s.handleSetEnvConfig)
		})
	})
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	month, err := s.game.Month(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month})
}

func (s *Server) handleMonthCycles(w http.ResponseWriter, r *http.Request) {
	month, err := strconv.ParseInt(chi.URLParam(r, "month"), 10, 64)
	if err != nil || month < 0 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}
	out, err := s.game.MonthCycles(r.Context(), month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out.Cycles = nonNil(out.Cycles)
	out.Fails = nonNil(out.Fails)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlayersList(w http.ResponseWriter, r *http.Request) {
	players, err := s.game.ListPlayers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": nonNil(players)})
}

func (s *Server) handlePlayerBalance(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	balance, err := s.game.Balance(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": playerID, "balance_micros": balance})
}

func (s *Server) handlePlayerExchanges(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	var month *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		m, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = &m
	}
	exchanges, err := s.game.PlayerExchanges(r.Context(), playerID, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": nonNil(exchanges)})
}

func (s *Server) handleFirmTypesList(w http.ResponseWriter, r *http.Request) {
	types, err := s.game.ListFirmTypes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"firm_types": nonNil(types)})
}

func (s *Server) handleFirmsList(w http.ResponseWriter, r *http.Request) {
	firms, err := s.game.ListFirms(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"firms": nonNil(firms)})
}

type unitAmounts struct {
	Coin   int64 `json:"coin"`
	Food   int64 `json:"food"`
	Lumber int64 `json:"lumber"`
	Iron   int64 `json:"iron"`
}

func (u unitAmounts) micros() game.Amounts {
	return game.UnitAmounts(u.Coin, u.Food, u.Lumber, u.Iron)
}

func (s *Server) handleCreateFirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Auth []game.PlayerAuth `json:"auth"`
		Data struct {
			TypeID     int64 `json:"type_id"`
			Ownerships []struct {
				PlayerID      int64       `json:"player_id"`
				OwnershipPerc float64     `json:"ownership_perc"`
				MonthlyCost   unitAmounts `json:"monthly_cost"`
				Payed         unitAmounts `json:"payed"`
			} `json:"ownerships"`
		} `json:"data"`
	}
	if err := s.schemas.decodeValidated(r, "create_firm.schema.json", &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	affected := make([]int64, 0, len(in.Data.Ownerships))
	ownerships := make([]game.OwnershipInput, 0, len(in.Data.Ownerships))
	for _, o := range in.Data.Ownerships {
		affected = append(affected, o.PlayerID)
		ownerships = append(ownerships, game.OwnershipInput{
			PlayerID:      o.PlayerID,
			OwnershipPerc: o.OwnershipPerc,
			MonthlyCost:   o.MonthlyCost.micros(),
			Payed:         o.Payed.micros(),
		})
	}
	if err := s.game.RequireAuth(r.Context(), in.Auth, affected, "playerIds of ownerships"); err != nil {
		writeDomainError(w, err)
		return
	}
	firm, err := s.game.CreateFirm(r.Context(), game.CreateFirmInput{
		TypeID:         in.Data.TypeID,
		Ownerships:     ownerships,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"firm": firm})
}

func (s *Server) handleUpgradeFirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Auth []game.PlayerAuth `json:"auth"`
		Data struct {
			FirmID     int64 `json:"firm_id"`
			Ownerships []struct {
				PlayerID    int64       `json:"player_id"`
				MonthlyCost unitAmounts `json:"monthly_cost"`
				Payed       unitAmounts `json:"payed"`
			} `json:"ownerships"`
		} `json:"data"`
	}
	if err := s.schemas.decodeValidated(r, "upgrade_firm.schema.json", &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	affected := make([]int64, 0, len(in.Data.Ownerships))
	ownerships := make([]game.UpgradeOwnershipInput, 0, len(in.Data.Ownerships))
	for _, o := range in.Data.Ownerships {
		affected = append(affected, o.PlayerID)
		ownerships = append(ownerships, game.UpgradeOwnershipInput{
			PlayerID:    o.PlayerID,
			MonthlyCost: o.MonthlyCost.micros(),
			Payed:       o.Payed.micros(),
		})
	}
	if err := s.game.RequireAuth(r.Context(), in.Auth, affected, "playerIds of ownerships"); err != nil {
		writeDomainError(w, err)
		return
	}
	firm, err := s.game.UpgradeFirm(r.Context(), game.UpgradeFirmInput{
		FirmID:         in.Data.FirmID,
		Ownerships:     ownerships,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"firm": firm})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Auth []game.PlayerAuth `json:"auth"`
		Data struct {
			SenderID   int64       `json:"sender_id"`
			ReceiverID int64       `json:"receiver_id"`
			Received   unitAmounts `json:"received"`
		} `json:"data"`
	}
	if err := s.schemas.decodeValidated(r, "transfer.schema.json", &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	affected := []int64{in.Data.SenderID, in.Data.ReceiverID}
	if err := s.game.RequireAuth(r.Context(), in.Auth, affected, "senderId and receiverId"); err != nil {
		writeDomainError(w, err)
		return
	}
	exchange, err := s.game.CreateTransfer(r.Context(), game.TransferInput{
		SenderID:       in.Data.SenderID,
		ReceiverID:     in.Data.ReceiverID,
		Received:       in.Data.Received.micros(),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exchange": exchange})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	seed, err := s.catalog.Seed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := s.game.Init(r.Context(), seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleInitialExchange(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Balance *unitAmounts `json:"balance"`
	}
	if err := s.schemas.decodeValidated(r, "initial_exchange.schema.json", &in, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var amounts game.Amounts
	if in.Balance != nil {
		amounts = in.Balance.micros()
	} else {
		var err error
		amounts, err = s.catalog.InitialAmounts()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	credited, err := s.game.InitialExchange(r.Context(), amounts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players_credited": credited, "balance_micros": amounts})
}

func (s *Server) handleNextMonth(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExpectedMonth *int64 `json:"expected_month"`
	}
	if err := s.schemas.decodeValidated(r, "next_month.schema.json", &in, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.game.NextMonth(r.Context(), game.NextMonthInput{ExpectedMonth: in.ExpectedMonth})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.audit != nil {
		if err := s.audit.Record(report); err != nil {
			s.log.Error("settlement audit write failed", "month", report.Month, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := s.schemas.decodeValidated(r, "create_player.schema.json", &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	player, err := s.game.CreatePlayer(r.Context(), in.Name, in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"player": player})
}

func (s *Server) handleEnvConfigList(w http.ResponseWriter, r *http.Request) {
	values, err := s.game.EnvConfigSnapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"env_config": values})
}

func (s *Server) handleSetEnvConfig(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Value string `json:"value"`
	}
	if err := s.schemas.decodeValidated(r, "set_env_config.schema.json", &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.game.SetEnvConfig(r.Context(), chi.URLParam(r, "key"), in.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"env_config": cfg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrValidationMismatch), errors.Is(err, game.ErrInsufficientBalance), errors.Is(err, game.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrAuthFailure):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrStateConflict), errors.Is(err, game.ErrTxConflict), errors.Is(err, game.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
