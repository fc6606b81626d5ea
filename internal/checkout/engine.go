// Package checkout drives the order workflow: staged checkout data in,
// committed orders and notification intents out. Three flows share the
// machinery: pickup-cash, pickup-online and delivery, plus resuming an
// existing order by its token.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	internalaws "github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/idempotency"
	"github.com/komugi/bakery-checkout/internal/orders"
	"github.com/komugi/bakery-checkout/internal/proofs"
	"github.com/komugi/bakery-checkout/internal/staging"
)

// PaymentWindow is the server-side payment_expires_at horizon.
const PaymentWindow = 10 * time.Minute

// State is the workflow position of a checkout session or resumed order.
type State string

const (
	StateStaged         State = "STAGED"
	StateSubmitting     State = "SUBMITTING"
	StateConfirmed      State = "CONFIRMED"
	StateAwaitingProof  State = "AWAITING_PROOF"
	StateProofSubmitted State = "PROOF_SUBMITTED"
	StatePaid           State = "PAID"
	StateExpired        State = "EXPIRED"
)

var (
	// ErrNoStagedCheckout means the flow was entered without staged data;
	// the caller redirects to the catalog root.
	ErrNoStagedCheckout = errors.New("no staged checkout data")

	// ErrSubmitInProgress blocks a duplicate submission from the same session.
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrOrderNotFound means the resume token matched no order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderExpired means the payment window has closed.
	ErrOrderExpired = errors.New("payment window expired")
)

// ProofUpload is a payment-proof image handed to the engine.
type ProofUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result reports a terminal transition.
type Result struct {
	State      State  `json:"state"`
	OrderID    string `json:"order_id"`
	OrderToken string `json:"order_token"`
}

// Config wires the engine's collaborators.
type Config struct {
	Orders           *orders.Store
	Idempotency      *idempotency.Store
	Staging          *staging.Store
	Uploader         *proofs.Uploader
	Outbox           *internalaws.Publisher
	Metrics          *internalaws.MetricsRecorder
	IdempotencyTable string
	TTLWindow        time.Duration
}

// Engine is the order workflow engine.
type Engine struct {
	cfg     Config
	nowFunc func() time.Time
	newID   func() string
	newTok  func() string

	mu         sync.Mutex
	inFlight   map[string]struct{}
	countdowns map[string]*Countdown
}

// NewEngine returns an Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		nowFunc:    time.Now,
		newID:      uuid.NewString,
		newTok:     newOrderToken,
		inFlight:   map[string]struct{}{},
		countdowns: map[string]*Countdown{},
	}
}

// newOrderToken generates the short customer-facing order reference.
func newOrderToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:12])
}

func flightKey(sessionID, stageKey string) string { return sessionID + "#" + stageKey }

// begin marks a session-flow submission in flight so a double click cannot
// create two orders. end releases it.
func (e *Engine) begin(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[key]; busy {
		return ErrSubmitInProgress
	}
	e.inFlight[key] = struct{}{}
	return nil
}

func (e *Engine) end(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, key)
}

// SubmitPickupCash runs the pickup-cash flow: one atomic submit of the
// idempotency record, the order header (confirmed, cash) and all lines,
// then the notification intent, then staged-data cleanup.
func (e *Engine) SubmitPickupCash(ctx context.Context, sessionID, idempKey string) (*Result, error) {
	key := flightKey(sessionID, staging.KeyPickup)
	if err := e.begin(key); err != nil {
		return nil, err
	}
	defer e.end(key)

	staged, err := e.cfg.Staging.Get(ctx, sessionID, staging.KeyPickup)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, ErrNoStagedCheckout
	}

	now := e.nowFunc()
	order := orders.Order{
		OrderID:          e.newID(),
		OrderToken:       e.newTok(),
		Name:             staged.Customer.Name,
		Email:            staged.Customer.Email,
		Phone:            staged.Customer.Phone,
		Address:          staged.Customer.Address,
		Instructions:     staged.Customer.Instructions,
		Fulfillment:      orders.FulfillmentPickupCash,
		PaymentMethod:    orders.PaymentMethodCash,
		PaymentStatus:    orders.PaymentStatusConfirmed,
		PaymentExpiresAt: now.Add(PaymentWindow), // stamped but not enforced for cash
		Amount:           staged.Total,
		CreatedAt:        now,
	}

	if err := e.submit(ctx, idempKey, order, staged); err != nil {
		return nil, err
	}

	if err := e.cfg.Staging.Delete(ctx, sessionID, staging.KeyPickup); err != nil {
		log.Printf("delete staged checkout %s: %v", key, err)
	}

	return &Result{State: StateConfirmed, OrderID: order.OrderID, OrderToken: order.OrderToken}, nil
}

// SelectPickupOnline re-stages pickup data under the pickup-online key and
// returns the snapshot for the proof step. The proof deadline countdown
// starts here.
func (e *Engine) SelectPickupOnline(ctx context.Context, sessionID string) (*staging.StagedCheckout, error) {
	staged, err := e.cfg.Staging.Restage(ctx, sessionID, staging.KeyPickup, staging.KeyPickupOnline, func(sc *staging.StagedCheckout) {
		sc.Fulfillment = orders.FulfillmentPickupOnline
	})
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, ErrNoStagedCheckout
	}
	e.startCountdown(sessionID, staging.KeyPickupOnline)
	return staged, nil
}

// EnterProofFlow loads the staged snapshot for an online flow and starts
// its countdown. Missing data is the redirect-to-catalog terminal.
func (e *Engine) EnterProofFlow(ctx context.Context, sessionID, stageKey string) (*staging.StagedCheckout, *Countdown, error) {
	staged, err := e.cfg.Staging.Get(ctx, sessionID, stageKey)
	if err != nil {
		return nil, nil, err
	}
	if staged == nil {
		return nil, nil, ErrNoStagedCheckout
	}
	cd := e.startCountdown(sessionID, stageKey)
	return staged, cd, nil
}

// startCountdown registers (or returns) the proof-deadline countdown for a
// session flow. Expiry abandons the flow: the staged snapshot is deleted,
// no order is created.
func (e *Engine) startCountdown(sessionID, stageKey string) *Countdown {
	key := flightKey(sessionID, stageKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	if cd, ok := e.countdowns[key]; ok {
		return cd
	}
	cd := NewCountdown(CountdownSeconds, func() {
		// UX deadline only: nothing durable exists yet for this flow.
		if err := e.cfg.Staging.Delete(context.Background(), sessionID, stageKey); err != nil {
			log.Printf("abandon staged checkout %s: %v", key, err)
		}
		e.dropCountdown(key)
		log.Printf("proof window expired, abandoned checkout %s", key)
	})
	e.countdowns[key] = cd
	cd.Start()
	return cd
}

func (e *Engine) dropCountdown(key string) {
	e.mu.Lock()
	cd, ok := e.countdowns[key]
	delete(e.countdowns, key)
	e.mu.Unlock()
	if ok {
		cd.Stop()
	}
}

// Countdown returns the active countdown for a session flow, if any.
func (e *Engine) Countdown(sessionID, stageKey string) *Countdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countdowns[flightKey(sessionID, stageKey)]
}

// SubmitProof runs the online flows' proof step: local validation, S3
// upload, then the same atomic submit with payment_status
// pending_verification. The staged snapshot survives any failure so the
// user can retry; it is deleted only after the order is committed.
func (e *Engine) SubmitProof(ctx context.Context, sessionID, stageKey, idempKey string, up ProofUpload) (*Result, error) {
	if err := proofs.Validate(up.ContentType, up.Size); err != nil {
		return nil, err
	}

	key := flightKey(sessionID, stageKey)
	if err := e.begin(key); err != nil {
		return nil, err
	}
	defer e.end(key)

	staged, err := e.cfg.Staging.Get(ctx, sessionID, stageKey)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, ErrNoStagedCheckout
	}

	token := e.newTok()
	proofURL, err := e.cfg.Uploader.Upload(ctx, token, up.Filename, up.ContentType, up.Body, up.Size)
	if err != nil {
		return nil, fmt.Errorf("upload proof: %w", err)
	}

	now := e.nowFunc()
	submittedAt := now
	order := orders.Order{
		OrderID:                 e.newID(),
		OrderToken:              token,
		Name:                    staged.Customer.Name,
		Email:                   staged.Customer.Email,
		Phone:                   staged.Customer.Phone,
		Address:                 staged.Customer.Address,
		Instructions:            staged.Customer.Instructions,
		Fulfillment:             staged.Fulfillment,
		PaymentMethod:           orders.PaymentMethodOnline,
		PaymentStatus:           orders.PaymentStatusPendingVerification,
		PaymentExpiresAt:        now.Add(PaymentWindow),
		PaymentProofURL:         proofURL,
		PaymentProofSubmittedAt: &submittedAt,
		Amount:                  staged.Total,
		CreatedAt:               now,
	}

	if err := e.submit(ctx, idempKey, order, staged); err != nil {
		return nil, err
	}

	if err := e.cfg.Staging.Delete(ctx, sessionID, stageKey); err != nil {
		log.Printf("delete staged checkout %s: %v", key, err)
	}
	e.dropCountdown(key)

	e.cfg.Metrics.Count(ctx, internalaws.MetricProofsSubmitted, 1, orders.PaymentMethodOnline)

	return &Result{State: StateProofSubmitted, OrderID: order.OrderID, OrderToken: order.OrderToken}, nil
}

// submit commits the order and enqueues the notification intent. Enqueue
// failure is logged and counted but never reverses the committed order.
func (e *Engine) submit(ctx context.Context, idempKey string, order orders.Order, staged *staging.StagedCheckout) error {
	rec := e.cfg.Idempotency.NewRecord(idempKey, order.OrderID, order.OrderToken)

	lines := make([]orders.Line, 0, len(staged.Lines))
	for _, ln := range staged.Lines {
		lines = append(lines, orders.Line{
			ProductID:   ln.ProductID,
			ProductName: ln.Name,
			Price:       ln.Price,
			Quantity:    ln.Quantity,
		})
	}

	if err := e.cfg.Orders.Submit(ctx, e.cfg.IdempotencyTable, rec, order, lines, e.cfg.TTLWindow); err != nil {
		return err
	}

	intent := internalaws.NotificationIntent{
		OrderID:        order.OrderID,
		OrderToken:     order.OrderToken,
		IdempotencyKey: idempKey,
	}
	if err := e.cfg.Outbox.PublishNotification(ctx, intent); err != nil {
		log.Printf("enqueue notification for order %s failed: %v", order.OrderID, err)
		e.cfg.Metrics.Count(ctx, internalaws.MetricEnqueueErrors, 1, order.PaymentMethod)
	}

	e.cfg.Metrics.Count(ctx, internalaws.MetricOrdersCreated, 1, order.PaymentMethod)
	return nil
}

// Resume loads an existing order by token for the resumed payment page.
// Returns ErrOrderNotFound or ErrOrderExpired for the terminal views.
func (e *Engine) Resume(ctx context.Context, token string) (*orders.Order, []orders.Line, error) {
	order, err := e.cfg.Orders.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrOrderNotFound
	}
	if e.nowFunc().After(order.PaymentExpiresAt) {
		return order, nil, ErrOrderExpired
	}
	lines, err := e.cfg.Orders.GetLines(ctx, order.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return order, lines, nil
}

// SubmitProofForOrder uploads a proof against an already-created order and
// patches it to paid. Resubmitting after the order is already paid reports
// success rather than an error.
func (e *Engine) SubmitProofForOrder(ctx context.Context, token string, up ProofUpload) (*Result, error) {
	if err := proofs.Validate(up.ContentType, up.Size); err != nil {
		return nil, err
	}

	order, err := e.cfg.Orders.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if e.nowFunc().After(order.PaymentExpiresAt) {
		return nil, ErrOrderExpired
	}

	key := "token#" + token
	if err := e.begin(key); err != nil {
		return nil, err
	}
	defer e.end(key)

	proofURL, err := e.cfg.Uploader.Upload(ctx, token, up.Filename, up.ContentType, up.Body, up.Size)
	if err != nil {
		return nil, fmt.Errorf("upload proof: %w", err)
	}

	now := e.nowFunc()
	err = e.cfg.Orders.SubmitProof(ctx, order.OrderID, proofURL, now)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, gerr := e.cfg.Orders.Get(ctx, order.OrderID)
		if gerr == nil && current != nil && current.PaymentStatus == orders.PaymentStatusPaid {
			return &Result{State: StatePaid, OrderID: order.OrderID, OrderToken: token}, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	e.cfg.Metrics.Count(ctx, internalaws.MetricProofsSubmitted, 1, order.PaymentMethod)

	return &Result{State: StatePaid, OrderID: order.OrderID, OrderToken: token}, nil
}
