package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"stock-analyst/agents"
	"stock-analyst/charts"
	"stock-analyst/config"
	"stock-analyst/internal/app"
	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/services"

	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 50
	maxRunsLimit     = 200

	msgNoStockData = "Stock data not available for this ticker."
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.^=-]+$`)

// Handler handles HTTP API requests
type Handler struct {
	app      *app.App
	cfg      *config.Config
	validate *validator.Validate
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return ValidateSymbol(strings.ToUpper(strings.TrimSpace(fl.Field().String()))) == nil
	})
	return &Handler{app: application, cfg: cfg, validate: v}
}

// RegisterRequest is the body of POST /api/register
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// CredentialsRequest is the body of POST /api/login and DELETE /api/user
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Query  string `json:"query" validate:"required,max=2000"`
	Ticker string `json:"ticker" validate:"required,ticker"`
}

// QueryResponse combines the workflow answer with the ticker's charts
type QueryResponse struct {
	Response        string                          `json:"response"`
	Figures         map[string]models.Figure        `json:"figures"`
	AnalysisSummary models.AnalysisSummary          `json:"analysis_summary"`
	TrendingStocks  map[string]models.TrendingEntry `json:"trending_stocks"`
	AIInsights      map[string]any                  `json:"aiInsights"`
	Sentiment       any                             `json:"sentiment"`
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.app.Repo() != nil {
		ctx := r.Context()
		if err := h.app.Repo().Health(ctx); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	if wf := h.app.Workflow(); wf != nil {
		status["mode"] = wf.Mode()
		stages := wf.Health(r.Context())
		status["stages"] = stages
		for _, ok := range stages {
			if !ok {
				status["status"] = "degraded"
				break
			}
		}
	}

	breakers := services.GetGlobalRegistry()
	status["circuit_breakers"] = breakers.Status()
	if open := breakers.OpenBreakers(); len(open) > 0 {
		status["status"] = "degraded"
		status["open_breakers"] = open
	}

	h.jsonResponse(w, status)
}

// HandleRegister creates an account
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.app.Register(r.Context(), req.Name, req.Email, req.Password)
	switch {
	case errors.Is(err, app.ErrEmailRegistered):
		h.jsonError(w, "Email already registered", http.StatusBadRequest)
		return
	case err != nil:
		h.serverError(w, r, "register", err)
		return
	}

	h.jsonStatus(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"user_id": user.ID.String(),
	})
}

// HandleLogin exchanges credentials for a bearer token
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.app.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, app.ErrUserNotFound):
		h.jsonError(w, "User not found", http.StatusNotFound)
		return
	case errors.Is(err, app.ErrIncorrectPassword):
		h.jsonError(w, "Invalid Password", http.StatusUnauthorized)
		return
	case err != nil:
		h.serverError(w, r, "login", err)
		return
	}

	h.jsonResponse(w, map[string]string{
		"message":      "Login successful",
		"access_token": token,
		"token_type":   "bearer",
	})
}

// HandleDeleteUser deletes the caller's own account
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.jsonError(w, msgUnauthorized, http.StatusUnauthorized)
		return
	}

	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.app.DeleteAccount(r.Context(), userID, req.Email, req.Password)
	switch {
	case errors.Is(err, app.ErrNotAccountOwner):
		h.jsonError(w, "Not authorized to delete this account", http.StatusForbidden)
		return
	case errors.Is(err, app.ErrIncorrectPassword):
		h.jsonError(w, "Incorrect password", http.StatusUnauthorized)
		return
	case err != nil:
		h.serverError(w, r, "delete user", err)
		return
	}

	h.jsonResponse(w, map[string]string{"message": "User deleted successfully"})
}

// HandleQuery runs the analyst workflow for a ticker and returns the answer with its charts
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.jsonError(w, msgUnauthorized, http.StatusUnauthorized)
		return
	}

	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	res, err := h.app.Query(r.Context(), &userID, ticker, req.Query)
	switch {
	case errors.Is(err, charts.ErrNoPriceData):
		observability.WithContext(r.Context()).Warn("chart data unavailable", "symbol", ticker, "error", err)
		h.jsonResponse(w, map[string]string{"error": msgNoStockData})
		return
	case errors.Is(err, app.ErrQueueFull):
		h.jsonError(w, err.Error(), http.StatusTooManyRequests)
		return
	case errors.Is(err, app.ErrWorkflowNotReady):
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.jsonError(w, "analysis timed out", http.StatusGatewayTimeout)
		return
	case err != nil:
		h.serverError(w, r, "query", err)
		return
	}

	h.jsonResponse(w, buildQueryResponse(res))
}

// HandleGetRuns returns the caller's recent query runs
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.jsonError(w, msgUnauthorized, http.StatusUnauthorized)
		return
	}

	limit := h.ParseLimitParam(r, defaultRunsLimit)
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := h.app.RecentRuns(r.Context(), userID, limit)
	if errors.Is(err, app.ErrDatabaseNotReady) {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.serverError(w, r, "list runs", err)
		return
	}
	if runs == nil {
		runs = []models.QueryRun{}
	}

	h.jsonResponse(w, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func buildQueryResponse(res *app.QueryResult) QueryResponse {
	state := res.State
	out := QueryResponse{
		Response:        state.LastTurn(),
		Figures:         res.Charts.Figures,
		AnalysisSummary: res.Charts.AnalysisSummary,
		TrendingStocks:  state.Trending,
		AIInsights:      insights(state),
		Sentiment:       map[string]any{},
	}
	if out.TrendingStocks == nil {
		out.TrendingStocks = map[string]models.TrendingEntry{}
	}
	if out.Figures == nil {
		out.Figures = map[string]models.Figure{}
	}
	if state.Sentiment != nil {
		out.Sentiment = state.Sentiment
	}
	return out
}

// insights flattens the structured narrative, or the plain one, into a JSON object
// and adds the price levels.
func insights(state *agents.WorkflowState) map[string]any {
	var source any
	switch {
	case state.Structured != nil:
		source = state.Structured
	case state.Narrative != nil:
		source = state.Narrative
	}

	out := map[string]any{}
	if source != nil {
		if raw, err := json.Marshal(source); err == nil {
			_ = json.Unmarshal(raw, &out)
		}
	}
	out["targetPrice"] = state.TargetPrice
	out["stopLoss"] = state.StopLoss
	return out
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.jsonError(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email is not a valid address"
	case "ticker":
		return "invalid ticker format (letters, digits, dots, dashes, ^ and = only, max 20 characters)"
	case "max":
		return fmt.Sprintf("%s is too long (max %s)", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// ValidateSymbol validates a stock symbol such as AAPL, RELIANCE.NS or ^NSEI
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long (max 20 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format")
	}

	return nil
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observability.WithContext(r.Context()).Error("request failed", "op", op, "error", err)
	h.jsonError(w, err.Error(), http.StatusInternalServerError)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
