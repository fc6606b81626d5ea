package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	internalaws "github.com/komugi/bakery-checkout/internal/aws"
	"github.com/komugi/bakery-checkout/internal/cart"
	"github.com/komugi/bakery-checkout/internal/catalog"
	"github.com/komugi/bakery-checkout/internal/checkout"
	"github.com/komugi/bakery-checkout/internal/idempotency"
	"github.com/komugi/bakery-checkout/internal/orders"
	"github.com/komugi/bakery-checkout/internal/proofs"
	"github.com/komugi/bakery-checkout/internal/staging"
	"github.com/komugi/bakery-checkout/internal/validation"
)

// HandlerConfig groups dependencies for the checkout API.
type HandlerConfig struct {
	DynamoDBClient   internalaws.DynamoDBAPI
	SQSClient        internalaws.SQSAPI
	S3Client         internalaws.S3API
	CloudWatchClient internalaws.CloudWatchAPI
	IdempotencyTable string
	OrdersTable      string
	OrderLinesTable  string
	StagingTable     string
	QueueURL         string
	ProofBucket      string
	ProofBaseURL     string
	MetricsNamespace string
	EasypaisaNumber  string
	BankAccount      string
	TTLWindow        time.Duration
}

var flowStageKeys = map[string]string{
	"pickup-online": staging.KeyPickupOnline,
	"delivery":      staging.KeyDelivery,
}

// RegisterRoutes registers the storefront checkout API.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	idempStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	stagingStore := staging.NewStore(cfg.DynamoDBClient, cfg.StagingTable, cfg.TTLWindow)
	engine := checkout.NewEngine(checkout.Config{
		Orders:           orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable, cfg.OrderLinesTable),
		Idempotency:      idempStore,
		Staging:          stagingStore,
		Uploader:         proofs.NewUploader(cfg.S3Client, cfg.ProofBucket, cfg.ProofBaseURL),
		Outbox:           internalaws.NewPublisher(cfg.SQSClient, cfg.QueueURL),
		Metrics:          internalaws.NewMetricsRecorder(cfg.CloudWatchClient, cfg.MetricsNamespace),
		IdempotencyTable: cfg.IdempotencyTable,
		TTLWindow:        cfg.TTLWindow,
	})

	registerCatalogRoutes(r)
	registerCheckoutRoutes(r, cfg, v, engine, stagingStore, idempStore)
	registerOrderRoutes(r, engine)
}

func registerCatalogRoutes(r *gin.Engine) {
	r.GET("/products", func(c *gin.Context) {
		category := catalog.Category(c.DefaultQuery("category", string(catalog.CategoryAll)))
		c.JSON(http.StatusOK, gin.H{
			"categories": catalog.Categories(),
			"products":   catalog.Products(category),
		})
	})

	r.GET("/products/:id", func(c *gin.Context) {
		p, ok := catalog.Lookup(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
			return
		}
		c.JSON(http.StatusOK, p)
	})
}

func registerCheckoutRoutes(r *gin.Engine, cfg HandlerConfig, v *validatorv10.Validate, engine *checkout.Engine, stagingStore *staging.Store, idempStore *idempotency.Store) {
	// Stage the checkout form. "pickup" routes to the payment-selection
	// step, "delivery" straight to the proof flow.
	r.POST("/checkout", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		sessionID := c.GetHeader("X-Session-Id")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		stageKey := staging.KeyPickup
		fulfillment := orders.FulfillmentPickupCash
		if req.Fulfillment == "delivery" {
			stageKey = staging.KeyDelivery
			fulfillment = orders.FulfillmentDelivery
		}

		lines := make([]cart.Line, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, cart.Line{ProductID: it.ProductID, Name: it.Name, Price: it.Price, Quantity: it.Quantity})
		}

		staged := staging.StagedCheckout{
			Customer: staging.CustomerInfo{
				Name:         req.Name,
				Email:        req.Email,
				Phone:        req.Phone,
				Address:      req.Address,
				Instructions: req.Instructions,
			},
			Lines:       lines,
			Fulfillment: fulfillment,
			Total:       req.Total,
		}

		if err := stagingStore.Put(ctx, sessionID, stageKey, staged); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "staging_failed", "detail": err.Error()})
			return
		}

		next := "/checkout/pickup/submit"
		if stageKey == staging.KeyDelivery {
			next = "/checkout/delivery"
		}
		c.JSON(http.StatusCreated, gin.H{
			"session_id": sessionID,
			"stage_key":  stageKey,
			"next":       next,
		})
	})

	// Payment selection for pickup orders: cash commits the order, online
	// re-stages into the proof flow.
	r.POST("/checkout/pickup/submit", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req struct {
			SessionID string `json:"session_id" binding:"required"`
			Method    string `json:"method" binding:"required,oneof=cash online"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}

		if req.Method == "online" {
			staged, err := engine.SelectPickupOnline(ctx, req.SessionID)
			if err != nil {
				writeEngineError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"stage_key":         staging.KeyPickupOnline,
				"next":              "/checkout/pickup-online",
				"total":             staged.Total,
				"countdown_seconds": checkout.CountdownSeconds,
			})
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		result, err := engine.SubmitPickupCash(ctx, req.SessionID, idempKey)
		if err != nil {
			if errors.Is(err, orders.ErrIdempotencyConflict) || replayable(ctx, idempStore, idempKey, err) {
				replayIdempotent(c, idempStore, idempKey)
				return
			}
			writeEngineError(c, err)
			return
		}

		writeSubmitSuccess(c, idempStore, idempKey, result)
	})

	// Proof-flow entry: staged summary, payment instructions, deadline.
	r.GET("/checkout/:flow", func(c *gin.Context) {
		stageKey, ok := flowStageKeys[c.Param("flow")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_flow"})
			return
		}
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_session_id"})
			return
		}

		staged, cd, err := engine.EnterProofFlow(c.Request.Context(), sessionID, stageKey)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"customer":          staged.Customer,
			"lines":             staged.Lines,
			"total":             staged.Total,
			"remaining_seconds": cd.Remaining(),
			"payment": gin.H{
				"easypaisa": cfg.EasypaisaNumber,
				"bank":      cfg.BankAccount,
			},
			"upload_limits": gin.H{
				"mime_prefix": "image/",
				"max_bytes":   proofs.MaxSize,
			},
		})
	})

	// Proof submission for the online flows. Multipart: proof file +
	// session_id field; Idempotency-Key header required.
	r.POST("/checkout/:flow/proof", func(c *gin.Context) {
		ctx := c.Request.Context()

		stageKey, ok := flowStageKeys[c.Param("flow")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_flow"})
			return
		}

		sessionID := c.PostForm("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_session_id"})
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		up, release, err := proofFromForm(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_proof_file", "msg": err.Error()})
			return
		}
		defer release()

		result, err := engine.SubmitProof(ctx, sessionID, stageKey, idempKey, up)
		if err != nil {
			if errors.Is(err, orders.ErrIdempotencyConflict) || replayable(ctx, idempStore, idempKey, err) {
				replayIdempotent(c, idempStore, idempKey)
				return
			}
			writeEngineError(c, err)
			return
		}

		writeSubmitSuccess(c, idempStore, idempKey, result)
	})
}

func registerOrderRoutes(r *gin.Engine, engine *checkout.Engine) {
	// Resume-by-token entry point.
	r.GET("/orders/:token", func(c *gin.Context) {
		order, lines, err := engine.Resume(c.Request.Context(), c.Param("token"))
		if err != nil {
			writeEngineError(c, err)
			return
		}

		lineViews := make([]gin.H, 0, len(lines))
		for _, ln := range lines {
			lineViews = append(lineViews, gin.H{
				"product_name": ln.ProductName,
				"price":        ln.Price,
				"quantity":     ln.Quantity,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"order_token":        order.OrderToken,
			"payment_status":     order.PaymentStatus,
			"payment_expires_at": order.PaymentExpiresAt.Format(time.RFC3339),
			"amount":             order.Amount,
			"lines":              lineViews,
		})
	})

	// Proof upload against an existing order.
	r.POST("/orders/:token/proof", func(c *gin.Context) {
		up, release, err := proofFromForm(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_proof_file", "msg": err.Error()})
			return
		}
		defer release()

		result, err := engine.SubmitProofForOrder(c.Request.Context(), c.Param("token"), up)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

// proofFromForm pulls the multipart proof file into a ProofUpload.
func proofFromForm(c *gin.Context) (checkout.ProofUpload, func(), error) {
	fh, err := c.FormFile("proof")
	if err != nil {
		return checkout.ProofUpload{}, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return checkout.ProofUpload{}, nil, err
	}
	up := checkout.ProofUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}
	return up, func() { f.Close() }, nil
}

// writeSubmitSuccess stores the response on the idempotency record so
// duplicate keys replay it, then writes the 201.
func writeSubmitSuccess(c *gin.Context, idempStore *idempotency.Store, idempKey string, result *checkout.Result) {
	body, _ := json.Marshal(result)
	if err := idempStore.MarkDone(c.Request.Context(), idempKey, string(body), http.StatusCreated); err != nil {
		// the order is committed; replay just degrades to a fresh lookup
		c.Header("X-Idempotency-Warning", "mark_done_failed")
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", result.OrderToken))
	c.JSON(http.StatusCreated, result)
}

// replayable reports whether a failed submit should replay the stored
// idempotency record instead. A duplicate submit arriving after the staged
// snapshot was consumed surfaces as ErrNoStagedCheckout; if the key already
// has a record, the first attempt went through and its response is replayed.
func replayable(ctx context.Context, idempStore *idempotency.Store, idempKey string, err error) bool {
	if !errors.Is(err, checkout.ErrNoStagedCheckout) {
		return false
	}
	rec, gerr := idempStore.Get(ctx, idempKey)
	return gerr == nil && rec != nil
}

// replayIdempotent resolves a duplicate Idempotency-Key against the stored
// record: DONE replays the original response, IN_PROGRESS returns 202,
// FAILED invites a retry.
func replayIdempotent(c *gin.Context, idempStore *idempotency.Store, idempKey string) {
	ctx := c.Request.Context()

	rec, err := idempStore.Get(ctx, idempKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record"})
		return
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID, "order_token": rec.OrderToken})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "order_id": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

// writeEngineError maps workflow errors onto HTTP responses.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkout.ErrNoStagedCheckout):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_staged_checkout", "redirect": "/"})
	case errors.Is(err, checkout.ErrSubmitInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_in_progress"})
	case errors.Is(err, checkout.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, checkout.ErrOrderExpired):
		c.JSON(http.StatusGone, gin.H{"error": "payment_window_expired"})
	case errors.Is(err, proofs.ErrNotImage), errors.Is(err, proofs.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_proof", "msg": err.Error()})
	default:
		// transient integration failure: the client may resubmit
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_submit_failed", "detail": err.Error()})
	}
}
