package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/admin"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/multisig"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/oracle"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/timelock"
	"github.com/gin-gonic/gin"
)

type AdminService interface {
	PolicyAddress() string
	Nonce() uint64
	PendingTickets() []timelock.Ticket
	CreateTicket(action timelock.Action, signatures [][]byte) (timelock.Ticket, error)
	CancelTicket(ticketID string, signatures [][]byte) error
	WithdrawReserve(approval admin.Approval, amount uint64) (domain.Coin, error)
	WithdrawCoverageFee(approval admin.Approval, coin domain.CoinType, amount uint64) (domain.Coin, error)
	WithdrawProtocolFee(approval admin.Approval, coin domain.CoinType, amount uint64) (domain.Coin, error)
	UpdateDefaultFeeConfig(approval admin.Approval, feeType protocolfee.FeeType, rates protocolfee.Rates) error
	UpdatePoolFeeConfig(approval admin.Approval, feeType protocolfee.FeeType, poolID string, rates protocolfee.Rates) error
	UpdateOracleConfig(approval admin.Approval, cfg oracle.Config) error
	EnableVersion(approval admin.Approval, version uint64) error
	DisableVersion(approval admin.Approval, version uint64) error
	PermanentlyDisableVersion(approval admin.Approval, version uint64) error
}

type signedRequest struct {
	TicketID   string   `json:"ticket_id"`
	Signatures []string `json:"signatures"`
}

func (r signedRequest) approval() (admin.Approval, error) {
	sigs, err := multisig.DecodeSignatures(r.Signatures)
	if err != nil {
		return admin.Approval{}, err
	}
	return admin.Approval{TicketID: strings.TrimSpace(r.TicketID), Signatures: sigs}, nil
}

type ticketRequest struct {
	Action     string   `json:"action"`
	Signatures []string `json:"signatures"`
}

type withdrawRequest struct {
	signedRequest
	Coin   string `json:"coin"`
	Amount string `json:"amount"`
}

type feeConfigRequest struct {
	signedRequest
	FeeType     string `json:"fee_type"`
	PoolID      string `json:"pool_id"`
	TakerRate   string `json:"taker_rate"`
	MakerRate   string `json:"maker_rate"`
	MaxDiscount string `json:"max_discount"`
}

type oracleConfigRequest struct {
	signedRequest
	oracle.Config
}

type versionRequest struct {
	signedRequest
	Version string `json:"version"`
}

func (h *Handler) registerAdmin(r *gin.Engine) {
	group := r.Group("/admin")
	group.GET("/policy", h.GetPolicy)
	group.POST("/tickets", h.CreateTicket)
	group.DELETE("/tickets/:id", h.CancelTicket)
	group.POST("/withdraw/reserve", h.WithdrawReserve)
	group.POST("/withdraw/coverage-fees", h.WithdrawCoverageFee)
	group.POST("/withdraw/protocol-fees", h.WithdrawProtocolFee)
	group.PUT("/fee-config", h.UpdateFeeConfig)
	group.PUT("/oracle-config", h.UpdateOracleConfig)
	group.POST("/versions/:op", h.UpdateVersion)
}

func (h *Handler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"address": h.Admin.PolicyAddress(),
		"nonce":   strconv.FormatUint(h.Admin.Nonce(), 10),
		"tickets": h.Admin.PendingTickets(),
	})
}

func (h *Handler) CreateTicket(c *gin.Context) {
	var body ticketRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	action := timelock.Action(strings.TrimSpace(body.Action))
	if !action.Valid() {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown action")
		return
	}
	sigs, err := multisig.DecodeSignatures(body.Signatures)
	if err != nil {
		h.writeDomainError(c, "create ticket", err)
		return
	}
	ticket, err := h.Admin.CreateTicket(action, sigs)
	if err != nil {
		h.writeDomainError(c, "create ticket", err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *Handler) CancelTicket(c *gin.Context) {
	var body signedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	sigs, err := multisig.DecodeSignatures(body.Signatures)
	if err != nil {
		h.writeDomainError(c, "cancel ticket", err)
		return
	}
	if err := h.Admin.CancelTicket(c.Param("id"), sigs); err != nil {
		h.writeDomainError(c, "cancel ticket", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) WithdrawReserve(c *gin.Context) {
	_, approval, amount, ok := h.bindWithdraw(c)
	if !ok {
		return
	}
	coin, err := h.Admin.WithdrawReserve(approval, amount)
	h.writeWithdrawal(c, "withdraw reserve", coin, err)
}

func (h *Handler) WithdrawCoverageFee(c *gin.Context) {
	body, approval, amount, ok := h.bindWithdraw(c)
	if !ok {
		return
	}
	coin, err := h.Admin.WithdrawCoverageFee(approval, domain.CoinType(strings.TrimSpace(body.Coin)), amount)
	h.writeWithdrawal(c, "withdraw coverage fee", coin, err)
}

func (h *Handler) WithdrawProtocolFee(c *gin.Context) {
	body, approval, amount, ok := h.bindWithdraw(c)
	if !ok {
		return
	}
	coin, err := h.Admin.WithdrawProtocolFee(approval, domain.CoinType(strings.TrimSpace(body.Coin)), amount)
	h.writeWithdrawal(c, "withdraw protocol fee", coin, err)
}

func (h *Handler) bindWithdraw(c *gin.Context) (withdrawRequest, admin.Approval, uint64, bool) {
	var body withdrawRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return body, admin.Approval{}, 0, false
	}
	amount, err := parseAmount(body.Amount)
	if err != nil || amount == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "positive amount required")
		return body, admin.Approval{}, 0, false
	}
	approval, err := body.approval()
	if err != nil {
		h.writeDomainError(c, "withdraw", err)
		return body, admin.Approval{}, 0, false
	}
	return body, approval, amount, true
}

func (h *Handler) writeWithdrawal(c *gin.Context, op string, coin domain.Coin, err error) {
	if err != nil {
		h.writeDomainError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coin": string(coin.Type), "amount": strconv.FormatUint(coin.Value, 10)})
}

func (h *Handler) UpdateFeeConfig(c *gin.Context) {
	var body feeConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	feeType := protocolfee.FeeType(strings.ToLower(strings.TrimSpace(body.FeeType)))
	if !feeType.Valid() {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid fee_type")
		return
	}
	var rates protocolfee.Rates
	var err error
	if rates.TakerRate, err = fixedmath.ParseFraction(body.TakerRate); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid taker_rate")
		return
	}
	if rates.MakerRate, err = fixedmath.ParseFraction(body.MakerRate); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid maker_rate")
		return
	}
	if rates.MaxDiscount, err = fixedmath.ParseFraction(body.MaxDiscount); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid max_discount")
		return
	}
	approval, err := body.approval()
	if err != nil {
		h.writeDomainError(c, "update fee config", err)
		return
	}

	poolID := strings.TrimSpace(body.PoolID)
	if poolID == "" {
		err = h.Admin.UpdateDefaultFeeConfig(approval, feeType, rates)
	} else {
		err = h.Admin.UpdatePoolFeeConfig(approval, feeType, poolID, rates)
	}
	if err != nil {
		h.writeDomainError(c, "update fee config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fee_type":     feeType,
		"pool_id":      poolID,
		"taker_rate":   fixedmath.FormatFraction(rates.TakerRate),
		"maker_rate":   fixedmath.FormatFraction(rates.MakerRate),
		"max_discount": fixedmath.FormatFraction(rates.MaxDiscount),
	})
}

func (h *Handler) UpdateOracleConfig(c *gin.Context) {
	var body oracleConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	if err := body.Config.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	approval, err := body.approval()
	if err != nil {
		h.writeDomainError(c, "update oracle config", err)
		return
	}
	if err := h.Admin.UpdateOracleConfig(approval, body.Config); err != nil {
		h.writeDomainError(c, "update oracle config", err)
		return
	}
	c.JSON(http.StatusOK, body.Config)
}

// UpdateVersion handles enable, disable and permanently-disable.
func (h *Handler) UpdateVersion(c *gin.Context) {
	var body versionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	version, err := parseAmount(body.Version)
	if err != nil || version == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid version")
		return
	}
	approval, err := body.approval()
	if err != nil {
		h.writeDomainError(c, "update version", err)
		return
	}
	switch c.Param("op") {
	case "enable":
		err = h.Admin.EnableVersion(approval, version)
	case "disable":
		err = h.Admin.DisableVersion(approval, version)
	case "permanently-disable":
		err = h.Admin.PermanentlyDisableVersion(approval, version)
	default:
		writeError(c, http.StatusNotFound, "NOT_FOUND", "unknown version operation")
		return
	}
	if err != nil {
		h.writeDomainError(c, "update version", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": strconv.FormatUint(version, 10), "op": c.Param("op")})
}
