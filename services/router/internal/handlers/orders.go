package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/router"
	"github.com/gin-gonic/gin"
)

type orderRequest struct {
	FeeType       string `json:"fee_type"`
	PoolID        string `json:"pool_id"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	TimeInForce   string `json:"time_in_force"`
	SelfMatching  string `json:"self_matching"`

	EstimatedDeepRequired string `json:"estimated_deep_required"`
	DeepRequiredSlippage  string `json:"deep_required_slippage"`
	EstimatedCoverageFee  string `json:"estimated_coverage_fee"`
	CoverageFeeSlippage   string `json:"coverage_fee_slippage"`
}

type estimateRequest struct {
	orderRequest
	BalanceManagerID string `json:"balance_manager_id"`
	Owner            string `json:"owner"`
}

type orderResponse struct {
	OrderID          string `json:"order_id"`
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	Status           string `json:"status"`
	Quantity         string `json:"quantity"`
	ExecutedQuantity string `json:"executed_quantity"`
	FeeType          string `json:"fee_type"`
	FeeCoin          string `json:"fee_coin"`
	TakerFee         string `json:"taker_fee"`
	MakerFee         string `json:"maker_fee"`
	Discount         string `json:"discount"`
	DeepRequired     string `json:"deep_required"`
	DeepFromReserves string `json:"deep_from_reserves"`
	CoverageFee      string `json:"coverage_fee"`
	Refunded         string `json:"refunded"`
	Warning          string `json:"warning,omitempty"`
}

type cancelManyRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type refundItem struct {
	Coin   string `json:"coin"`
	Amount string `json:"amount"`
}

func (r orderRequest) toRouter() (router.OrderRequest, string) {
	var out router.OrderRequest
	feeType := protocolfee.FeeType(strings.ToLower(strings.TrimSpace(r.FeeType)))
	if feeType == "" {
		feeType = protocolfee.FeeTypeCoverage
	}
	if !feeType.Valid() {
		return out, "invalid fee_type"
	}
	out.FeeType = feeType
	out.PoolID = strings.TrimSpace(r.PoolID)
	if out.PoolID == "" {
		return out, "pool_id is required"
	}

	switch strings.ToLower(strings.TrimSpace(r.Side)) {
	case "buy", "bid":
		out.IsBid = true
	case "sell", "ask":
	default:
		return out, "side must be buy or sell"
	}

	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "", "limit":
	case "market":
		out.Market = true
	default:
		return out, "type must be limit or market"
	}

	switch strings.ToUpper(strings.TrimSpace(r.TimeInForce)) {
	case "", "GTC":
		out.OrderType = domain.NoRestriction
	case "IOC":
		out.OrderType = domain.ImmediateOrCancel
	case "FOK":
		out.OrderType = domain.FillOrKill
	case "POST_ONLY":
		out.OrderType = domain.PostOnly
	default:
		return out, "invalid time_in_force"
	}

	switch strings.ToLower(strings.TrimSpace(r.SelfMatching)) {
	case "", "allowed":
		out.SelfMatching = domain.SelfMatchingAllowed
	case "cancel_taker":
		out.SelfMatching = domain.CancelTaker
	case "cancel_maker":
		out.SelfMatching = domain.CancelMaker
	default:
		return out, "invalid self_matching"
	}

	var err error
	if out.ClientOrderID, err = parseAmount(r.ClientOrderID); err != nil {
		return out, "invalid client_order_id"
	}
	if out.Quantity, err = parseAmount(r.Quantity); err != nil || out.Quantity == 0 {
		return out, "invalid quantity"
	}
	if !out.Market {
		if out.Price, err = parseAmount(r.Price); err != nil || out.Price == 0 {
			return out, "invalid price"
		}
	}
	if out.EstimatedDeepRequired, err = parseAmount(r.EstimatedDeepRequired); err != nil {
		return out, "invalid estimated_deep_required"
	}
	if out.EstimatedCoverageFee, err = parseAmount(r.EstimatedCoverageFee); err != nil {
		return out, "invalid estimated_coverage_fee"
	}
	if out.DeepRequiredSlippage, err = fixedmath.ParseFraction(r.DeepRequiredSlippage); err != nil {
		return out, "invalid deep_required_slippage"
	}
	if out.CoverageFeeSlippage, err = fixedmath.ParseFraction(r.CoverageFeeSlippage); err != nil {
		return out, "invalid coverage_fee_slippage"
	}
	out.ExpireTimestamp = domain.MaxTimestamp
	return out, ""
}

func (h *Handler) CreateOrder(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	var body orderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	req, msg := body.toRouter()
	if msg != "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}
	bm, ok := h.ownedManager(c, owner)
	if !ok {
		return
	}
	wallet := h.Accounts.Wallet(owner)

	var (
		res router.OrderResult
		err error
	)
	if req.Market {
		res, err = h.Router.CreateMarketOrder(c.Request.Context(), owner, bm, wallet, req)
	} else {
		res, err = h.Router.CreateLimitOrder(c.Request.Context(), owner, bm, wallet, req)
	}
	if err != nil && res.Order.OrderID == "" {
		h.writeDomainError(c, "create order", err)
		return
	}

	resp := toOrderResponse(res)
	if err != nil {
		// The order is on the book; only post-trade fee handling failed.
		resp.Warning = "fee settlement incomplete"
		h.Logger.Error("order placed with fee error", "order_id", res.Order.OrderID, "error", err)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Estimate(c *gin.Context) {
	var body estimateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	req, msg := body.toRouter()
	if msg != "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}

	var (
		bm     domain.BalanceManager
		wallet domain.Wallet
	)
	if id := strings.TrimSpace(body.BalanceManagerID); id != "" {
		m, err := h.Accounts.BalanceManager(id)
		if err != nil {
			h.writeDomainError(c, "estimate", err)
			return
		}
		bm = m
	}
	if owner := strings.TrimSpace(body.Owner); owner != "" {
		wallet = h.Accounts.Wallet(owner)
	}

	est, err := h.Router.Estimate(c.Request.Context(), bm, wallet, req)
	if err != nil {
		h.writeDomainError(c, "estimate", err)
		return
	}
	c.JSON(http.StatusOK, est)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	bm, ok := h.ownedManager(c, owner)
	if !ok {
		return
	}
	refund, err := h.Router.CancelOrderAndSettleFees(c.Request.Context(), owner, bm, h.Accounts.Wallet(owner), c.Param("pool"), c.Param("order"))
	if err != nil {
		h.writeDomainError(c, "cancel order", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": c.Param("order"),
		"refund":   toRefund(refund),
	})
}

func (h *Handler) CancelOrders(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	var body cancelManyRequest
	if err := c.ShouldBindJSON(&body); err != nil || len(body.OrderIDs) == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "order_ids required")
		return
	}
	bm, ok := h.ownedManager(c, owner)
	if !ok {
		return
	}
	refunds, err := h.Router.CancelOrdersAndSettleFees(c.Request.Context(), owner, bm, h.Accounts.Wallet(owner), c.Param("pool"), body.OrderIDs)
	if err != nil {
		h.writeDomainError(c, "cancel orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": toRefunds(refunds)})
}

func (h *Handler) CancelAllOrders(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	bm, ok := h.ownedManager(c, owner)
	if !ok {
		return
	}
	refunds, err := h.Router.CancelAllOrdersAndSettleFees(c.Request.Context(), owner, bm, h.Accounts.Wallet(owner), c.Param("pool"))
	if err != nil {
		h.writeDomainError(c, "cancel all orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": toRefunds(refunds)})
}

func toOrderResponse(res router.OrderResult) orderResponse {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return orderResponse{
		OrderID:          res.Order.OrderID,
		PoolID:           res.Order.PoolID,
		BalanceManagerID: res.Order.BalanceManagerID,
		Status:           res.Order.Status.String(),
		Quantity:         u(res.Order.OriginalQuantity),
		ExecutedQuantity: u(res.Order.ExecutedQuantity),
		FeeType:          string(res.FeeType),
		FeeCoin:          string(res.FeeCoin),
		TakerFee:         u(res.ProtocolFees.Taker),
		MakerFee:         u(res.ProtocolFees.Maker),
		Discount:         fixedmath.FormatFraction(res.Discount),
		DeepRequired:     u(res.DeepRequired),
		DeepFromReserves: u(res.DeepFromReserves),
		CoverageFee:      u(res.CoverageFee),
		Refunded:         u(res.Refunded),
	}
}

func toRefund(c domain.Coin) refundItem {
	return refundItem{Coin: string(c.Type), Amount: strconv.FormatUint(c.Value, 10)}
}

func toRefunds(coins []domain.Coin) []refundItem {
	out := make([]refundItem, 0, len(coins))
	for _, c := range coins {
		out = append(out, toRefund(c))
	}
	return out
}
