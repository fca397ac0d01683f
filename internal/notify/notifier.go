// Package notify delivers committed events to the operator's channels.
// Events are rendered into short human-readable messages and fanned out to
// every configured sender, filtered by event kind. Delivery is best effort;
// the unit that produced the event has already committed.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/journal"
	"github.com/apexarb/arbengine/internal/token"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs (e.g. "telegram").
	Name() string
}

// Notifier renders events and dispatches them to all senders. Only event
// kinds in the configured set are forwarded; an empty set forwards
// everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	tokens  *token.Registry
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, tokens *token.Registry, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		tokens:  tokens,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent renders one committed event and dispatches it when its kind
// passes the filter. Sender failures are logged, never returned; the journal
// fanout must not stall on a slow webhook.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) {
	kind := ev.EventKind()
	if len(n.events) > 0 && !n.events[kind] {
		n.logger.Debug("event filtered out", slog.String("kind", kind))
		return
	}

	title, message := n.render(ev)
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.Error("notification delivery incomplete",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// Announce sends a message to all senders regardless of the event filter.
// Used for daemon lifecycle announcements.
func (n *Notifier) Announce(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender, collecting failures so one bad channel
// does not block the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// render produces the title and body for one event kind.
func (n *Notifier) render(ev domain.Event) (string, string) {
	switch e := ev.(type) {
	case domain.LoanExecutedEvent:
		return "Loan executed", fmt.Sprintf("Borrowed %s, profit %s",
			n.amount(e.Asset, e.Amount), n.amount(e.Asset, e.Profit))
	case domain.ArbitrageFailedEvent:
		return "Arbitrage failed", fmt.Sprintf("Attempt borrowing %s settled from fallback: %s",
			n.amount(e.Asset, e.Amount), e.Reason)
	case domain.HopSwappedEvent:
		return "Hop swapped", fmt.Sprintf("%s -> %s",
			n.amount(e.From, e.AmountIn), n.amount(e.To, e.AmountOut))
	case domain.AuthorizationExecutedEvent:
		return "Intent executed", fmt.Sprintf("%s by %s, nonce %d, submitted via %s",
			e.Operation, e.Signer.Hex(), e.Nonce, e.Submitter)
	case domain.WithdrawalEvent:
		return "Withdrawal", fmt.Sprintf("%s to %s",
			n.amount(e.Asset, e.Amount), e.To.Hex())
	default:
		return ev.EventKind(), ""
	}
}

// amount renders a base-unit amount string in display units with its symbol.
func (n *Notifier) amount(asset common.Address, base string) string {
	v, err := uint256.FromDecimal(base)
	if err != nil {
		return base + " " + n.tokens.Symbol(asset)
	}
	return n.tokens.Format(asset, v) + " " + n.tokens.Symbol(asset)
}

// Compile-time interface check.
var _ journal.Notifier = (*Notifier)(nil)
