package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/auth"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/book"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/router"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/vault"
	"github.com/gin-gonic/gin"
)

type OrderRouter interface {
	CreateLimitOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req router.OrderRequest) (router.OrderResult, error)
	CreateMarketOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req router.OrderRequest) (router.OrderResult, error)
	Estimate(ctx context.Context, bm domain.BalanceManager, wallet domain.Wallet, req router.OrderRequest) (router.Estimate, error)
	CancelOrderAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID, orderID string) (domain.Coin, error)
	CancelOrdersAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID string, orderIDs []string) ([]domain.Coin, error)
	CancelAllOrdersAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID string) ([]domain.Coin, error)
	ClaimSettledFees(ctx context.Context, key domain.OrderKey) (domain.Coin, bool, error)
	BatchClaim(ctx context.Context, keys []domain.OrderKey) (router.ClaimSummary, error)
	UnsettledFees(ctx context.Context, balanceManagerID string) ([]unsettled.Entry, error)
	UnsettledFee(ctx context.Context, key domain.OrderKey) (unsettled.Entry, bool, error)
}

// Accounts resolves custody objects. In production these are on-chain
// objects; the in-process registry stands in for them.
type Accounts interface {
	Open(owner string) (*custody.BalanceManager, error)
	BalanceManager(id string) (*custody.BalanceManager, error)
	OwnedBy(owner string) []*custody.BalanceManager
	Wallet(owner string) *custody.Wallet
}

type PoolLister interface {
	Pools() []book.PoolSpec
}

type Handler struct {
	Router   OrderRouter
	Accounts Accounts
	Vault    *vault.Vault
	Pools    PoolLister
	Admin    AdminService
	Logger   *slog.Logger
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	AbortCode uint16 `json:"abort_code,omitempty"`
}

func New(r OrderRouter, accounts Accounts, v *vault.Vault, pools PoolLister, admin AdminService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Router: r, Accounts: accounts, Vault: v, Pools: pools, Admin: admin, Logger: logger}
}

// Register mounts public queries, owner routes behind the JWT middleware, and
// admin routes authorized by multisig signatures.
func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	r.GET("/pools", h.ListPools)
	r.GET("/vault", h.GetVault)
	r.GET("/unsettled/:bm", h.ListUnsettled)
	r.GET("/unsettled/:bm/:pool/:order", h.GetUnsettled)
	r.POST("/claims", h.Claim)
	r.POST("/claims/batch", h.BatchClaim)
	r.POST("/estimate", h.Estimate)

	owner := r.Group("/", auth.Middleware(jwtSecret))
	owner.POST("/balance-managers", h.OpenBalanceManager)
	owner.GET("/balance-managers", h.ListBalanceManagers)
	owner.POST("/balance-managers/:bm/deposit", h.Deposit)
	owner.POST("/balance-managers/:bm/orders", h.CreateOrder)
	owner.DELETE("/balance-managers/:bm/orders/:pool/:order", h.CancelOrder)
	owner.POST("/balance-managers/:bm/orders/:pool/cancel", h.CancelOrders)
	owner.DELETE("/balance-managers/:bm/orders/:pool", h.CancelAllOrders)
	owner.GET("/wallet", h.GetWallet)
	owner.POST("/vault/reserve", h.DonateReserve)

	if h.Admin != nil {
		h.registerAdmin(r)
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps an abort to a response. Errors outside the taxonomy
// are logged and hidden.
func (h *Handler) writeDomainError(c *gin.Context, op string, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.Logger.Error(op+" failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch de.Kind {
	case domain.KindValidation:
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case domain.KindInsufficient:
		status, code = http.StatusBadRequest, "INSUFFICIENT_BALANCE"
	case domain.KindSlippage:
		status, code = http.StatusConflict, "SLIPPAGE_EXCEEDED"
	case domain.KindOracle:
		status, code = http.StatusServiceUnavailable, "ORACLE_UNAVAILABLE"
	case domain.KindLedger:
		status, code = http.StatusConflict, "LEDGER_CONFLICT"
	case domain.KindAuth:
		status, code = http.StatusForbidden, "FORBIDDEN"
	case domain.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error(op+" failed", "error", err, "abort_code", de.Code)
	}
	c.JSON(status, errorResponse{Code: code, Message: de.Message, AbortCode: de.Code})
}

func ownerFromContext(c *gin.Context) (string, bool) {
	owner, ok := auth.Owner(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing owner")
	}
	return owner, ok
}

// ownedManager loads the path balance manager and checks the caller owns it.
func (h *Handler) ownedManager(c *gin.Context, owner string) (*custody.BalanceManager, bool) {
	bm, err := h.Accounts.BalanceManager(c.Param("bm"))
	if err != nil {
		h.writeDomainError(c, "load balance manager", err)
		return nil, false
	}
	if err := custody.CheckOwner(bm, owner); err != nil {
		h.writeDomainError(c, "load balance manager", err)
		return nil, false
	}
	return bm, true
}

func parseAmount(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func coinsMap(in map[domain.CoinType]uint64) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[string(k)] = strconv.FormatUint(v, 10)
	}
	return out
}
