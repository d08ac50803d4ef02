// Package timelock issues one-time admin tickets that become usable after a
// delay and expire after an active window.
package timelock

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/google/uuid"
)

type Action string

const (
	WithdrawReserve           Action = "withdraw_reserve"
	WithdrawCoverageFee       Action = "withdraw_coverage_fee"
	WithdrawProtocolFee       Action = "withdraw_protocol_fee"
	UpdateDefaultFeeConfig    Action = "update_default_fee_config"
	UpdatePoolFeeConfig       Action = "update_pool_fee_config"
	UpdateOracleConfig        Action = "update_oracle_config"
	EnableVersion             Action = "enable_version"
	DisableVersion            Action = "disable_version"
	PermanentlyDisableVersion Action = "permanently_disable_version"
)

var knownActions = map[Action]struct{}{
	WithdrawReserve:           {},
	WithdrawCoverageFee:       {},
	WithdrawProtocolFee:       {},
	UpdateDefaultFeeConfig:    {},
	UpdatePoolFeeConfig:       {},
	UpdateOracleConfig:        {},
	EnableVersion:             {},
	DisableVersion:            {},
	PermanentlyDisableVersion: {},
}

func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Default delay and window.
const (
	DefaultDelay  = 48 * time.Hour
	DefaultWindow = 7 * 24 * time.Hour
)

type Ticket struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadyAt is the first instant the ticket may be consumed.
func (t Ticket) ReadyAt(delay time.Duration) time.Time {
	return t.CreatedAt.Add(delay)
}

// ExpiresAt is the last instant the ticket may be consumed.
func (t Ticket) ExpiresAt(delay, window time.Duration) time.Time {
	return t.CreatedAt.Add(delay + window)
}

type Manager struct {
	mu      sync.Mutex
	delay   time.Duration
	window  time.Duration
	tickets map[string]Ticket
	now     func() time.Time
	logger  *slog.Logger
}

func NewManager(delay, window time.Duration, logger *slog.Logger) *Manager {
	if delay < 0 {
		delay = DefaultDelay
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		delay:   delay,
		window:  window,
		tickets: make(map[string]Ticket),
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Delay() time.Duration  { return m.delay }
func (m *Manager) Window() time.Duration { return m.window }

func (m *Manager) Create(action Action) (Ticket, error) {
	if !action.Valid() {
		return Ticket{}, domain.Wrapf(domain.ErrTicketTypeMismatch, "unknown action %q", action)
	}
	ticket := Ticket{ID: uuid.NewString(), Action: action, CreatedAt: m.now().UTC()}
	m.mu.Lock()
	m.tickets[ticket.ID] = ticket
	m.mu.Unlock()
	m.logger.Info("admin ticket created", "ticket_id", ticket.ID, "action", action, "ready_at", ticket.ReadyAt(m.delay))
	return ticket, nil
}

// Check reports whether id can be consumed for action right now. It does
// not consume the ticket.
func (m *Manager) Check(id string, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.checkLocked(id, action)
	return err
}

func (m *Manager) checkLocked(id string, action Action) (Ticket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return Ticket{}, domain.Wrapf(domain.ErrTicketNotFound, "%s", id)
	}
	if ticket.Action != action {
		return Ticket{}, domain.Wrapf(domain.ErrTicketTypeMismatch, "ticket is for %s, not %s", ticket.Action, action)
	}
	now := m.now()
	if now.Before(ticket.ReadyAt(m.delay)) {
		return Ticket{}, domain.Wrapf(domain.ErrTicketNotReady, "ready at %s", ticket.ReadyAt(m.delay).Format(time.RFC3339))
	}
	if now.After(ticket.ExpiresAt(m.delay, m.window)) {
		return Ticket{}, domain.Wrapf(domain.ErrTicketExpired, "expired at %s", ticket.ExpiresAt(m.delay, m.window).Format(time.RFC3339))
	}
	return ticket, nil
}

// Consume validates and removes the ticket.
func (m *Manager) Consume(id string, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.checkLocked(id, action); err != nil {
		return err
	}
	delete(m.tickets, id)
	return nil
}

func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[id]; !ok {
		return domain.Wrapf(domain.ErrTicketNotFound, "%s", id)
	}
	delete(m.tickets, id)
	return nil
}

// Pending lists outstanding tickets, oldest first.
func (m *Manager) Pending() []Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PruneExpired drops tickets past their window and returns how many.
func (m *Manager) PruneExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, t := range m.tickets {
		if now.After(t.ExpiresAt(m.delay, m.window)) {
			delete(m.tickets, id)
			removed++
		}
	}
	return removed
}
