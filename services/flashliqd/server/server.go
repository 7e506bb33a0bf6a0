package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flashliq/native/flash"
	"flashliq/observability/logging"
	"flashliq/observability/metrics"
)

// FlashLender is the borrow surface the execution endpoint drives. The
// rehearsal pool implements it in-process; a live deployment would satisfy it
// with a transaction submitter.
type FlashLender interface {
	FlashBorrow(initiator common.Address, quoteAmount *big.Int, payload []byte) (*flash.SettlementResult, error)
}

// PairAdmin is the registry surface behind the admin endpoints.
type PairAdmin interface {
	Configure(caller common.Address, pair flash.ReservePair, ledger flash.LiquidationLedger) error
	RegisterPair(caller common.Address, id string, pair flash.ReservePair) error
	PairByID(id string) (flash.ReservePair, bool)
}

// PairFactory builds a reserve-pair view from an admin registration request.
type PairFactory func(address, baseToken, quoteToken common.Address, baseReserve, quoteReserve *big.Int) (flash.ReservePair, error)

// Config captures the dependencies required to construct the server.
type Config struct {
	Lender   FlashLender
	Registry PairAdmin
	Ledger   flash.LiquidationLedger
	Archive  *flash.Archive
	Admin    common.Address
	Auth     *Authenticator
	NewPair  PairFactory
	Log      *slog.Logger
	Audit    *slog.Logger
}

// Server hosts the HTTP API over the settlement engine.
type Server struct {
	lender   FlashLender
	registry PairAdmin
	ledger   flash.LiquidationLedger
	archive  *flash.Archive
	admin    common.Address
	auth     *Authenticator
	newPair  PairFactory
	log      *slog.Logger
	audit    *slog.Logger
	now      func() time.Time

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	audit := cfg.Audit
	if audit == nil {
		audit = log
	}
	srv := &Server{
		lender:   cfg.Lender,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		archive:  cfg.Archive,
		admin:    cfg.Admin,
		auth:     cfg.Auth,
		newPair:  cfg.NewPair,
		log:      log,
		audit:    audit,
		now:      time.Now,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if s.auth != nil {
			api.Use(s.auth.Middleware)
		}
		api.Post("/flash/executions", s.ExecuteFlashLiquidation)
		api.Get("/settlements", s.ListSettlements)
		api.Get("/settlements/{seq}", s.GetSettlement)
		api.Post("/admin/pairs", s.RegisterPair)
		api.Put("/admin/config", s.UpdateConfig)
	})

	return r
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type executionRequest struct {
	Initiator string `json:"initiator"`
	Amount    string `json:"amount"`
	DebtToken string `json:"debt_token"`
	Borrower  string `json:"borrower"`
	MinProfit string `json:"min_profit"`
}

type settlementResponse struct {
	Sequence      *uint64 `json:"sequence,omitempty"`
	Initiator     string  `json:"initiator"`
	Borrower      string  `json:"borrower"`
	DebtToken     string  `json:"debt_token"`
	Pool          string  `json:"pool"`
	BorrowedQuote string  `json:"borrowed_quote"`
	MintedProxy   string  `json:"minted_proxy"`
	Collateral    string  `json:"collateral"`
	Repayment     string  `json:"repayment"`
	Profit        string  `json:"profit"`
}

func newSettlementResponse(result *flash.SettlementResult) settlementResponse {
	amount := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		return v.String()
	}
	return settlementResponse{
		Initiator:     result.Initiator.Hex(),
		Borrower:      result.Borrower.Hex(),
		DebtToken:     result.DebtToken.Hex(),
		Pool:          result.Pool.Hex(),
		BorrowedQuote: amount(result.BorrowedQuote),
		MintedProxy:   amount(result.MintedProxy),
		Collateral:    amount(result.Collateral),
		Repayment:     amount(result.Repayment),
		Profit:        amount(result.Profit),
	}
}

// ExecuteFlashLiquidation runs one flash-funded liquidation end to end and
// archives the committed settlement.
func (s *Server) ExecuteFlashLiquidation(w http.ResponseWriter, r *http.Request) {
	if s.lender == nil {
		http.Error(w, "executor unavailable", http.StatusServiceUnavailable)
		return
	}
	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	initiator, ok := parseAddressField(w, "initiator", req.Initiator)
	if !ok {
		return
	}
	debtToken, ok := parseAddressField(w, "debt_token", req.DebtToken)
	if !ok {
		return
	}
	borrower, ok := parseAddressField(w, "borrower", req.Borrower)
	if !ok {
		return
	}
	amount, ok := parseAmountField(w, "amount", req.Amount)
	if !ok {
		return
	}
	if amount.Sign() <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	minProfit := big.NewInt(0)
	if strings.TrimSpace(req.MinProfit) != "" {
		if minProfit, ok = parseAmountField(w, "min_profit", req.MinProfit); !ok {
			return
		}
		if minProfit.Sign() < 0 {
			http.Error(w, "min_profit must be non-negative", http.StatusBadRequest)
			return
		}
	}

	payload, err := flash.EncodeLoanPayload(debtToken, borrower, minProfit)
	if err != nil {
		http.Error(w, "invalid payload parameters", http.StatusBadRequest)
		return
	}

	started := s.now()
	result, err := s.lender.FlashBorrow(initiator, amount, payload)
	elapsed := s.now().Sub(started).Seconds()
	if err != nil {
		reason := reasonForError(err)
		metrics.Flash().ObserveSettlement("aborted", reason, elapsed)
		s.log.Warn("flash settlement aborted",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	metrics.Flash().ObserveSettlement("committed", "none", elapsed)
	if result.Profit != nil {
		profit, _ := new(big.Float).SetInt(result.Profit).Float64()
		metrics.Flash().AddProfit(result.DebtToken.Hex(), profit)
	}

	response := newSettlementResponse(result)
	if s.archive != nil {
		seq, archiveErr := s.archive.Append(result)
		if archiveErr != nil {
			s.log.Error("failed to archive settlement", slog.String("error", archiveErr.Error()))
		} else {
			response.Sequence = &seq
			if depth, lenErr := s.archive.Len(); lenErr == nil {
				metrics.Flash().SetArchiveDepth(float64(depth))
			}
		}
	}

	// Party identities go through the redaction policy; only allowlisted
	// keys reach the audit trail in the clear.
	s.audit.Info("flash settlement committed",
		logging.MaskField("outcome", "committed"),
		logging.MaskField("auth_method", authMethod(r)),
		logging.MaskField("pool", response.Pool),
		logging.MaskField("debt_token", response.DebtToken),
		logging.MaskField("borrower", response.Borrower),
		logging.MaskField("initiator", response.Initiator),
		logging.MaskField("borrowed_quote", response.BorrowedQuote),
		logging.MaskField("repayment", response.Repayment),
		logging.MaskField("profit", response.Profit),
	)
	s.writeJSON(w, http.StatusCreated, response)
}

type pairRequest struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	BaseToken    string `json:"base_token"`
	QuoteToken   string `json:"quote_token"`
	BaseReserve  string `json:"base_reserve"`
	QuoteReserve string `json:"quote_reserve"`
}

// RegisterPair adds a trusted pool to the executor's registry.
func (s *Server) RegisterPair(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil || s.newPair == nil {
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	address, ok := parseAddressField(w, "address", req.Address)
	if !ok {
		return
	}
	baseToken, ok := parseAddressField(w, "base_token", req.BaseToken)
	if !ok {
		return
	}
	quoteToken, ok := parseAddressField(w, "quote_token", req.QuoteToken)
	if !ok {
		return
	}
	baseReserve, ok := parseAmountField(w, "base_reserve", req.BaseReserve)
	if !ok {
		return
	}
	quoteReserve, ok := parseAmountField(w, "quote_reserve", req.QuoteReserve)
	if !ok {
		return
	}

	pair, err := s.newPair(address, baseToken, quoteToken, baseReserve, quoteReserve)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.registry.RegisterPair(s.admin, req.ID, pair); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	metrics.Flash().SetReserveRatio(address.Hex(), reserveRatio(baseReserve, quoteReserve))
	s.audit.Info("pool registered",
		logging.MaskField("auth_method", authMethod(r)),
		logging.MaskField("pool", address.Hex()),
		logging.MaskField("id", req.ID),
	)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "address": address.Hex()})
}

// UpdateConfig replaces the executor's default trusted pool, keeping the
// active liquidation ledger.
func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil || s.newPair == nil || s.ledger == nil {
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	address, ok := parseAddressField(w, "address", req.Address)
	if !ok {
		return
	}
	baseToken, ok := parseAddressField(w, "base_token", req.BaseToken)
	if !ok {
		return
	}
	quoteToken, ok := parseAddressField(w, "quote_token", req.QuoteToken)
	if !ok {
		return
	}
	baseReserve, ok := parseAmountField(w, "base_reserve", req.BaseReserve)
	if !ok {
		return
	}
	quoteReserve, ok := parseAmountField(w, "quote_reserve", req.QuoteReserve)
	if !ok {
		return
	}

	pair, err := s.newPair(address, baseToken, quoteToken, baseReserve, quoteReserve)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.registry.Configure(s.admin, pair, s.ledger); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	metrics.Flash().SetReserveRatio(address.Hex(), reserveRatio(baseReserve, quoteReserve))
	s.audit.Info("default pool reconfigured",
		logging.MaskField("auth_method", authMethod(r)),
		logging.MaskField("pool", address.Hex()),
	)
	s.writeJSON(w, http.StatusOK, map[string]string{"address": address.Hex()})
}

// ListSettlements returns a page of archived settlements in append order.
func (s *Server) ListSettlements(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		return
	}
	start := uint64(0)
	count := uint64(50)
	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid start", http.StatusBadRequest)
			return
		}
		start = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("count")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 || parsed > 500 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = parsed
	}

	results, err := s.archive.List(start, count)
	if err != nil {
		http.Error(w, "failed to list settlements", http.StatusInternalServerError)
		return
	}
	out := make([]settlementResponse, 0, len(results))
	for i, result := range results {
		response := newSettlementResponse(result)
		seq := start + uint64(i)
		response.Sequence = &seq
		out = append(out, response)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetSettlement returns one archived settlement by sequence number.
func (s *Server) GetSettlement(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		return
	}
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		http.Error(w, "invalid sequence", http.StatusBadRequest)
		return
	}
	result, _, err := s.archive.Get(seq)
	if err != nil {
		if statusForError(err) == http.StatusNotFound {
			http.Error(w, "settlement not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load settlement", http.StatusInternalServerError)
		return
	}
	response := newSettlementResponse(result)
	response.Sequence = &seq
	s.writeJSON(w, http.StatusOK, response)
}

func authMethod(r *http.Request) string {
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		return principal.Method
	}
	return "none"
}

func reserveRatio(base, quote *big.Int) float64 {
	if base == nil || quote == nil || quote.Sign() == 0 {
		return 0
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(base), new(big.Float).SetInt(quote)).Float64()
	return ratio
}

func parseAddressField(w http.ResponseWriter, field, value string) (common.Address, bool) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		http.Error(w, field+" must be a hex address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func parseAmountField(w http.ResponseWriter, field, value string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		http.Error(w, field+" must be a decimal integer", http.StatusBadRequest)
		return nil, false
	}
	return amount, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
