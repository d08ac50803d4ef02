// Package admin runs privileged vault and configuration changes. Each change
// needs a policy-approved signature set and a ready timelock ticket for the
// same action; the ticket is consumed only when the change succeeds.
package admin

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/multisig"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/oracle"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/timelock"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/vault"
)

// CreateTicketAction is the digest action for opening a ticket.
const CreateTicketAction = "create_ticket"

type OracleConfigurer interface {
	Config() oracle.Config
	SetConfig(cfg oracle.Config) error
}

// Approval carries the ticket being consumed and the policy signatures over
// the action digest.
type Approval struct {
	TicketID   string
	Signatures [][]byte
}

type Service struct {
	mu      sync.Mutex
	policy  *multisig.Policy
	tickets *timelock.Manager
	vault   *vault.Vault
	fees    *protocolfee.Config
	oracle  OracleConfigurer
	logger  *slog.Logger
	nonce   uint64
}

func NewService(policy *multisig.Policy, tickets *timelock.Manager, v *vault.Vault, fees *protocolfee.Config, oracleCfg OracleConfigurer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		policy:  policy,
		tickets: tickets,
		vault:   v,
		fees:    fees,
		oracle:  oracleCfg,
		logger:  logger,
	}
}

func (s *Service) PolicyAddress() string {
	return s.policy.Address().Hex()
}

// Nonce is the value the next CreateTicket digest must commit to.
func (s *Service) Nonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// CreateTicketDigest is what signers approve to open a ticket for action.
func CreateTicketDigest(action timelock.Action, nonce uint64) []byte {
	return multisig.Digest(CreateTicketAction, strconv.FormatUint(nonce, 10), string(action))
}

func (s *Service) CreateTicket(action timelock.Action, signatures [][]byte) (timelock.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.policy.Verify(CreateTicketDigest(action, s.nonce), signatures); err != nil {
		return timelock.Ticket{}, err
	}
	ticket, err := s.tickets.Create(action)
	if err != nil {
		return timelock.Ticket{}, err
	}
	s.nonce++
	return ticket, nil
}

// CancelTicketDigest is what signers approve to drop a ticket.
func CancelTicketDigest(ticketID string) []byte {
	return multisig.Digest("cancel_ticket", ticketID, "")
}

func (s *Service) CancelTicket(ticketID string, signatures [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.policy.Verify(CancelTicketDigest(ticketID), signatures); err != nil {
		return err
	}
	return s.tickets.Cancel(ticketID)
}

func (s *Service) PendingTickets() []timelock.Ticket {
	return s.tickets.Pending()
}

// ActionDigest is what signers approve to run action with params using
// ticketID.
func ActionDigest(action timelock.Action, ticketID, params string) []byte {
	return multisig.Digest(string(action), ticketID, params)
}

// run authorizes and executes fn, consuming the ticket only on success.
func (s *Service) run(action timelock.Action, approval Approval, params string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.policy.Verify(ActionDigest(action, approval.TicketID, params), approval.Signatures); err != nil {
		s.logger.Warn("admin action rejected", "action", action, "ticket_id", approval.TicketID, "error", err)
		return err
	}
	if err := s.tickets.Check(approval.TicketID, action); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	if err := s.tickets.Consume(approval.TicketID, action); err != nil {
		return fmt.Errorf("consume ticket after %s: %w", action, err)
	}
	s.logger.Info("admin action executed", "action", action, "ticket_id", approval.TicketID, "params", params)
	return nil
}

func WithdrawReserveParams(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func (s *Service) WithdrawReserve(approval Approval, amount uint64) (domain.Coin, error) {
	var out domain.Coin
	err := s.run(timelock.WithdrawReserve, approval, WithdrawReserveParams(amount), func() error {
		coin, err := s.vault.WithdrawReserve(amount)
		out = coin
		return err
	})
	return out, err
}

func WithdrawFeeParams(coin domain.CoinType, amount uint64) string {
	return string(coin) + ":" + strconv.FormatUint(amount, 10)
}

func (s *Service) WithdrawCoverageFee(approval Approval, coin domain.CoinType, amount uint64) (domain.Coin, error) {
	var out domain.Coin
	err := s.run(timelock.WithdrawCoverageFee, approval, WithdrawFeeParams(coin, amount), func() error {
		c, err := s.vault.WithdrawCoverageFee(coin, amount)
		out = c
		return err
	})
	return out, err
}

func (s *Service) WithdrawProtocolFee(approval Approval, coin domain.CoinType, amount uint64) (domain.Coin, error) {
	var out domain.Coin
	err := s.run(timelock.WithdrawProtocolFee, approval, WithdrawFeeParams(coin, amount), func() error {
		c, err := s.vault.WithdrawProtocolFee(coin, amount)
		out = c
		return err
	})
	return out, err
}

func FeeConfigParams(feeType protocolfee.FeeType, poolID string, rates protocolfee.Rates) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", feeType, poolID, rates.TakerRate, rates.MakerRate, rates.MaxDiscount)
}

func (s *Service) UpdateDefaultFeeConfig(approval Approval, feeType protocolfee.FeeType, rates protocolfee.Rates) error {
	return s.run(timelock.UpdateDefaultFeeConfig, approval, FeeConfigParams(feeType, "", rates), func() error {
		return s.fees.SetDefault(feeType, rates)
	})
}

func (s *Service) UpdatePoolFeeConfig(approval Approval, feeType protocolfee.FeeType, poolID string, rates protocolfee.Rates) error {
	return s.run(timelock.UpdatePoolFeeConfig, approval, FeeConfigParams(feeType, poolID, rates), func() error {
		return s.fees.SetPool(feeType, poolID, rates)
	})
}

func OracleConfigParams(cfg oracle.Config) string {
	return cfg.DeepUSDFeedID + ":" + cfg.ReferenceUSDFeedID + ":" + cfg.ReferencePoolID
}

func (s *Service) UpdateOracleConfig(approval Approval, cfg oracle.Config) error {
	return s.run(timelock.UpdateOracleConfig, approval, OracleConfigParams(cfg), func() error {
		return s.oracle.SetConfig(cfg)
	})
}

func VersionParams(version uint64) string {
	return strconv.FormatUint(version, 10)
}

func (s *Service) EnableVersion(approval Approval, version uint64) error {
	return s.run(timelock.EnableVersion, approval, VersionParams(version), func() error {
		return s.vault.EnableVersion(version)
	})
}

func (s *Service) DisableVersion(approval Approval, version uint64) error {
	return s.run(timelock.DisableVersion, approval, VersionParams(version), func() error {
		return s.vault.DisableVersion(version)
	})
}

func (s *Service) PermanentlyDisableVersion(approval Approval, version uint64) error {
	return s.run(timelock.PermanentlyDisableVersion, approval, VersionParams(version), func() error {
		return s.vault.PermanentlyDisableVersion(version)
	})
}
