package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
	"github.com/gin-gonic/gin"
)

const maxBatchClaim = 500

type unsettledItem struct {
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
	Coin             string `json:"coin"`
	Balance          string `json:"balance"`
	OrderQuantity    string `json:"order_quantity"`
	MakerQuantity    string `json:"maker_quantity"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type orderKeyRequest struct {
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
}

func (k orderKeyRequest) key() (domain.OrderKey, bool) {
	key := domain.OrderKey{
		PoolID:           strings.TrimSpace(k.PoolID),
		BalanceManagerID: strings.TrimSpace(k.BalanceManagerID),
		OrderID:          strings.TrimSpace(k.OrderID),
	}
	return key, key.PoolID != "" && key.BalanceManagerID != "" && key.OrderID != ""
}

type batchClaimRequest struct {
	Orders []orderKeyRequest `json:"orders"`
}

type coinRequest struct {
	Coin   string `json:"coin"`
	Amount string `json:"amount"`
}

func (r coinRequest) parse() (domain.CoinType, uint64, bool) {
	coin := domain.CoinType(strings.TrimSpace(r.Coin))
	amount, err := parseAmount(r.Amount)
	if coin == "" || err != nil || amount == 0 {
		return "", 0, false
	}
	return coin, amount, true
}

func (h *Handler) ListPools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pools": h.Pools.Pools()})
}

func (h *Handler) GetVault(c *gin.Context) {
	snap := h.Vault.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"deep_type":         string(h.Vault.DeepType()),
		"deep_reserves":     strconv.FormatUint(snap.DeepReserves, 10),
		"coverage_fees":     coinsMap(snap.Coverage),
		"protocol_fees":     coinsMap(snap.Protocol),
		"allowed_versions":  snap.Allowed,
		"disabled_versions": snap.Disabled,
	})
}

func (h *Handler) ListUnsettled(c *gin.Context) {
	entries, err := h.Router.UnsettledFees(c.Request.Context(), c.Param("bm"))
	if err != nil {
		h.writeDomainError(c, "list unsettled fees", err)
		return
	}
	items := make([]unsettledItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toUnsettledItem(e))
	}
	c.JSON(http.StatusOK, gin.H{"unsettled": items})
}

func (h *Handler) GetUnsettled(c *gin.Context) {
	key := domain.OrderKey{PoolID: c.Param("pool"), BalanceManagerID: c.Param("bm"), OrderID: c.Param("order")}
	entry, ok, err := h.Router.UnsettledFee(c.Request.Context(), key)
	if err != nil {
		h.writeDomainError(c, "get unsettled fee", err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "no unsettled fee for order")
		return
	}
	c.JSON(http.StatusOK, toUnsettledItem(entry))
}

func (h *Handler) Claim(c *gin.Context) {
	var body orderKeyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	key, ok := body.key()
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "pool_id, balance_manager_id and order_id are required")
		return
	}
	coin, claimed, err := h.Router.ClaimSettledFees(c.Request.Context(), key)
	if err != nil {
		h.writeDomainError(c, "claim", err)
		return
	}
	resp := gin.H{"claimed": claimed}
	if claimed {
		resp["coin"] = string(coin.Type)
		resp["amount"] = strconv.FormatUint(coin.Value, 10)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) BatchClaim(c *gin.Context) {
	var body batchClaimRequest
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Orders) == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "orders required")
		return
	}
	if len(body.Orders) > maxBatchClaim {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "too many orders")
		return
	}
	keys := make([]domain.OrderKey, 0, len(body.Orders))
	for _, o := range body.Orders {
		key, ok := o.key()
		if !ok {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "every order needs pool_id, balance_manager_id and order_id")
			return
		}
		keys = append(keys, key)
	}

	summary, err := h.Router.BatchClaim(c.Request.Context(), keys)
	if err != nil {
		h.Logger.Warn("batch claim partially failed", "failed", summary.Failed, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"requested": summary.Requested,
		"claimed":   summary.Claimed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"totals":    coinsMap(summary.Totals),
	})
}

func (h *Handler) OpenBalanceManager(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	bm, err := h.Accounts.Open(owner)
	if err != nil {
		h.writeDomainError(c, "open balance manager", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"balance_manager_id": bm.ID(), "owner": bm.Owner()})
}

func (h *Handler) ListBalanceManagers(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	managers := h.Accounts.OwnedBy(owner)
	out := make([]gin.H, 0, len(managers))
	for _, bm := range managers {
		out = append(out, gin.H{"balance_manager_id": bm.ID(), "balances": coinsMap(bm.Snapshot())})
	}
	c.JSON(http.StatusOK, gin.H{"balance_managers": out})
}

// Deposit moves a coin from the caller's wallet into their balance manager.
func (h *Handler) Deposit(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	var body coinRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	coin, amount, valid := body.parse()
	if !valid {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "coin and positive amount required")
		return
	}
	bm, ok := h.ownedManager(c, owner)
	if !ok {
		return
	}
	wallet := h.Accounts.Wallet(owner)
	funds, err := wallet.Withdraw(coin, amount)
	if err != nil {
		h.writeDomainError(c, "deposit", err)
		return
	}
	if err := bm.Deposit(funds); err != nil {
		_ = wallet.Deposit(funds)
		h.writeDomainError(c, "deposit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance_manager_id": bm.ID(), "balances": coinsMap(bm.Snapshot())})
}

func (h *Handler) GetWallet(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "balances": coinsMap(h.Accounts.Wallet(owner).Snapshot())})
}

// DonateReserve moves DEEP from the caller's wallet into the reserve.
func (h *Handler) DonateReserve(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	var body coinRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	if strings.TrimSpace(body.Coin) == "" {
		body.Coin = string(h.Vault.DeepType())
	}
	coin, amount, valid := body.parse()
	if !valid {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "positive amount required")
		return
	}
	if coin != h.Vault.DeepType() {
		h.writeDomainError(c, "donate reserve", domain.ErrCoinTypeMismatch)
		return
	}
	wallet := h.Accounts.Wallet(owner)
	funds, err := wallet.Withdraw(coin, amount)
	if err != nil {
		h.writeDomainError(c, "donate reserve", err)
		return
	}
	if err := h.Vault.DepositReserve(funds); err != nil {
		_ = wallet.Deposit(funds)
		h.writeDomainError(c, "donate reserve", err)
		return
	}
	h.Logger.Info("reserve donation", "owner", owner, "amount", amount)
	c.JSON(http.StatusOK, gin.H{"deep_reserves": strconv.FormatUint(h.Vault.DeepReserves(), 10)})
}

func toUnsettledItem(e unsettled.Entry) unsettledItem {
	return unsettledItem{
		PoolID:           e.Key.PoolID,
		BalanceManagerID: e.Key.BalanceManagerID,
		OrderID:          e.Key.OrderID,
		Coin:             string(e.Balance.Type),
		Balance:          strconv.FormatUint(e.Balance.Value, 10),
		OrderQuantity:    strconv.FormatUint(e.OrderQuantity, 10),
		MakerQuantity:    strconv.FormatUint(e.MakerQuantity, 10),
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
