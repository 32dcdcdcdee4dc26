package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// Messages shown to the shopper when checkout cannot proceed.
const (
	EmptyCartMessage        = "Your cart is empty."
	TransportFailureMessage = "Unable to reach the checkout service. Please try again."
	CanceledMessage         = "Checkout was canceled."
)

// SessionRetention is how long a finished checkout stays reportable through
// Status before the cart reads as idle again.
const SessionRetention = 15 * time.Minute

// State is the checkout state of one cart.
type State string

const (
	StateIdle       State = "idle"
	StateTotaling   State = "totaling"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// InProgress reports whether a submission holds the cart.
func (s State) InProgress() bool {
	return s == StateTotaling || s == StateSubmitting
}

var checkoutSubmissions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_checkout_submissions_total",
		Help: "Checkout submissions by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(checkoutSubmissions)
}

// Submitter sends an assembled order to the checkout endpoint.
type Submitter interface {
	Submit(ctx context.Context, sub order.Submission) (json.RawMessage, error)
}

// Status is the reportable checkout state of a cart.
type Status struct {
	Key       string                 `json:"cart_key"`
	State     State                  `json:"state"`
	Message   string                 `json:"message,omitempty"`
	Totals    *pricing.DisplayTotals `json:"totals,omitempty"`
	UpdatedAt time.Time              `json:"updated_at,omitzero"`
}

// Result is a successful submission.
type Result struct {
	Totals     pricing.OrderTotals
	Submission order.Submission
	Response   json.RawMessage
}

type session struct {
	state       State
	message     string
	fingerprint uint64
	totals      pricing.OrderTotals
	hasTotals   bool
	updatedAt   time.Time
}

func (s *session) expired(now time.Time) bool {
	return !s.state.InProgress() && now.Sub(s.updatedAt) > SessionRetention
}

// CheckoutService runs order submission for each cart. At most one
// submission per cart key is in flight at a time.
type CheckoutService struct {
	repo      repository.CartRepository
	engine    *pricing.Engine
	assembler *order.Assembler
	submitter Submitter
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	repo repository.CartRepository,
	engine *pricing.Engine,
	assembler *order.Assembler,
	submitter Submitter,
	publisher event.Publisher,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		engine:    engine,
		assembler: assembler,
		submitter: submitter,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Totals returns the order totals of the normalized cart. Carts with a
// checkout session reuse the cached totals while the cart is unchanged.
func (s *CheckoutService) Totals(ctx context.Context, key string) (pricing.OrderTotals, error) {
	if key == "" {
		return pricing.OrderTotals{}, errCartKeyRequired()
	}

	cart, err := s.loadNormalized(ctx, key)
	if err != nil {
		return pricing.OrderTotals{}, err
	}
	return s.totalsFor(key, cart), nil
}

// Status reports the checkout state of key. Carts never submitted are idle.
func (s *CheckoutService) Status(key string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Key: key, State: StateIdle}
	sess, ok := s.sessions[key]
	if !ok {
		return st
	}
	if sess.expired(s.now()) {
		delete(s.sessions, key)
		return st
	}
	st.State = sess.state
	st.Message = sess.message
	st.UpdatedAt = sess.updatedAt
	if sess.hasTotals {
		display := sess.totals.Display()
		st.Totals = &display
	}
	return st
}

// Submit assembles the order for the cart under key and sends it once. On
// success the cart is cleared; on any failure it is kept. A rejected order
// is reported with an error wrapping apperrors.ErrSubmissionRejected whose
// message is meant for the shopper.
func (s *CheckoutService) Submit(ctx context.Context, key string, fields map[string]string) (*Result, error) {
	if key == "" {
		return nil, errCartKeyRequired()
	}
	if err := s.begin(key); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.logger).With(slog.String("cart_key", key))

	cart, err := s.loadNormalized(ctx, key)
	if err != nil {
		s.finish(key, StateFailed, apperrors.UserMessage(err, client.GenericFailureMessage))
		checkoutSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}
	if cart.IsEmpty() {
		s.finish(key, StateFailed, EmptyCartMessage)
		checkoutSubmissions.WithLabelValues("empty").Inc()
		return nil, apperrors.InvalidInput(EmptyCartMessage)
	}

	totals := s.totalsFor(key, cart)
	sub := s.assembler.Build(fields, cart, totals)

	s.transition(key, StateSubmitting)
	resp, err := s.submitter.Submit(ctx, sub)
	if err != nil {
		return nil, s.fail(ctx, log, key, err)
	}

	if err := ctx.Err(); err != nil {
		// The endpoint answered but the caller is gone; the cart stays.
		log.WarnContext(ctx, "checkout accepted after cancellation, cart kept",
			slog.String("error", err.Error()),
		)
		s.finish(key, StateFailed, CanceledMessage)
		checkoutSubmissions.WithLabelValues("canceled").Inc()
		return nil, fmt.Errorf("submit order: %w", err)
	}

	if err := s.repo.Clear(ctx, key); err != nil {
		log.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("error", err.Error()),
		)
	} else {
		publishCartChanged(ctx, s.publisher, s.logger, event.CartChanged{Key: key, Cleared: true})
	}
	s.publishSubmitted(ctx, key, totals, sub)

	s.finish(key, StateSucceeded, "")
	checkoutSubmissions.WithLabelValues("succeeded").Inc()

	log.InfoContext(ctx, "order submitted",
		slog.String("order_total", sub.OrderTotal),
		slog.Int("item_count", totals.ItemCount),
	)

	return &Result{Totals: totals, Submission: sub, Response: resp}, nil
}

// fail records a failed submission and maps err for the caller.
func (s *CheckoutService) fail(ctx context.Context, log *slog.Logger, key string, err error) error {
	var rejected *client.RejectedError
	switch {
	case errors.As(err, &rejected):
		log.WarnContext(ctx, "checkout rejected",
			slog.Int("status", rejected.Status),
			slog.String("message", rejected.Message),
		)
		s.finish(key, StateFailed, rejected.Message)
		checkoutSubmissions.WithLabelValues("rejected").Inc()

		appErr := apperrors.SubmissionRejected(rejected.Message)
		appErr.Err = fmt.Errorf("%w: %w", apperrors.ErrSubmissionRejected, rejected)
		return appErr

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.WarnContext(ctx, "checkout canceled", slog.String("error", err.Error()))
		s.finish(key, StateFailed, CanceledMessage)
		checkoutSubmissions.WithLabelValues("canceled").Inc()
		return fmt.Errorf("submit order: %w", err)

	case errors.Is(err, client.ErrTransport):
		log.ErrorContext(ctx, "checkout endpoint unreachable", slog.String("error", err.Error()))
		s.finish(key, StateFailed, TransportFailureMessage)
		checkoutSubmissions.WithLabelValues("transport_error").Inc()

		appErr := apperrors.ServiceUnavailable(TransportFailureMessage)
		appErr.Err = fmt.Errorf("%w: %w", apperrors.ErrServiceUnavail, err)
		return appErr

	default:
		log.ErrorContext(ctx, "checkout failed", slog.String("error", err.Error()))
		s.finish(key, StateFailed, client.GenericFailureMessage)
		checkoutSubmissions.WithLabelValues("error").Inc()
		return fmt.Errorf("submit order: %w", err)
	}
}

// begin moves key into totaling unless a submission already holds it.
func (s *CheckoutService) begin(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	sess := s.session(key)
	if sess.state.InProgress() {
		return apperrors.Conflict("a checkout for this cart is already in progress")
	}
	sess.state = StateTotaling
	sess.message = ""
	sess.updatedAt = now
	return nil
}

func (s *CheckoutService) transition(key string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(key)
	sess.state = state
	sess.updatedAt = s.now()
}

func (s *CheckoutService) finish(key string, state State, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(key)
	sess.state = state
	sess.message = message
	sess.updatedAt = s.now()
	if state == StateSucceeded {
		sess.hasTotals = false
	}
}

// sweep drops expired sessions. s.mu must be held.
func (s *CheckoutService) sweep(now time.Time) {
	for key, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, key)
		}
	}
}

// session returns the session of key, creating it. s.mu must be held.
func (s *CheckoutService) session(key string) *session {
	sess, ok := s.sessions[key]
	if !ok {
		sess = &session{state: StateIdle}
		s.sessions[key] = sess
	}
	return sess
}

// totalsFor returns cached totals when the cart fingerprint is unchanged
// and recomputes them otherwise. Only carts with a session cache totals.
func (s *CheckoutService) totalsFor(key string, cart domain.Cart) pricing.OrderTotals {
	fp := Fingerprint(cart)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return s.engine.Totals(cart)
	}
	if sess.hasTotals && sess.fingerprint == fp {
		return sess.totals
	}
	sess.totals = s.engine.Totals(cart)
	sess.fingerprint = fp
	sess.hasTotals = true
	return sess.totals
}

func (s *CheckoutService) loadNormalized(ctx context.Context, key string) (domain.Cart, error) {
	cart, err := s.repo.Load(ctx, key)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return domain.Normalize(cart), nil
}

func (s *CheckoutService) publishSubmitted(ctx context.Context, key string, totals pricing.OrderTotals, sub order.Submission) {
	if s.publisher == nil {
		return
	}
	ev := event.OrderSubmitted{
		Key:         key,
		OrderTotal:  sub.OrderTotal,
		Tax:         sub.Tax,
		Shipping:    sub.Shipping,
		ItemCount:   totals.ItemCount,
		SubmittedAt: sub.OrderDate,
	}
	if err := s.publisher.PublishOrderSubmitted(ctx, ev); err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to publish order.submitted event",
			slog.String("cart_key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Fingerprint hashes the encoded cart. Carts with equal encodings share a
// fingerprint.
func Fingerprint(cart domain.Cart) uint64 {
	data, err := json.Marshal(cart)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}
