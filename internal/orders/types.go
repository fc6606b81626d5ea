package orders

import "time"

// Payment methods
const (
	PaymentMethodCash   = "cash"
	PaymentMethodOnline = "online"
)

// Payment statuses
const (
	PaymentStatusConfirmed           = "confirmed"
	PaymentStatusPendingVerification = "pending_verification"
	PaymentStatusPaid                = "paid"
	PaymentStatusExpired             = "expired"
)

// Notification statuses, driven by the email worker.
const (
	NotificationPending = "PENDING"
	NotificationSending = "SENDING"
	NotificationSent    = "SENT"
	NotificationFailed  = "FAILED"
)

// Fulfillment is the customer's chosen path through checkout.
type Fulfillment string

const (
	FulfillmentPickupCash   Fulfillment = "pickup_cash"
	FulfillmentPickupOnline Fulfillment = "pickup_online"
	FulfillmentDelivery     Fulfillment = "delivery"
)

// Delivery reports whether the fulfillment carries the delivery surcharge.
func (f Fulfillment) Delivery() bool { return f == FulfillmentDelivery }

// Online reports whether the fulfillment requires a payment proof.
func (f Fulfillment) Online() bool { return f != FulfillmentPickupCash }

// Order is the durable order header stored in the orders table.
// OrderToken is the customer-facing reference and the capability for
// resuming a payment session; it is indexed by a GSI.
type Order struct {
	OrderID                 string      `dynamodbav:"order_id"` // PK
	OrderToken              string      `dynamodbav:"order_token"`
	Name                    string      `dynamodbav:"name"`
	Email                   string      `dynamodbav:"email"`
	Phone                   string      `dynamodbav:"phone"`
	Address                 string      `dynamodbav:"address"`
	Instructions            string      `dynamodbav:"instructions,omitempty"`
	Fulfillment             Fulfillment `dynamodbav:"fulfillment"`
	PaymentMethod           string      `dynamodbav:"payment_method"` // cash | online
	PaymentStatus           string      `dynamodbav:"payment_status"`
	PaymentExpiresAt        time.Time   `dynamodbav:"payment_expires_at"`
	PaymentProofURL         string      `dynamodbav:"payment_proof_url,omitempty"`
	PaymentProofSubmittedAt *time.Time  `dynamodbav:"payment_proof_submitted_at,omitempty"`
	Amount                  int64       `dynamodbav:"amount"` // total incl. delivery charge, minor units
	NotificationStatus      string      `dynamodbav:"notification_status"`
	CreatedAt               time.Time   `dynamodbav:"created_at"`
	UpdatedAt               time.Time   `dynamodbav:"updated_at"`
	Attempts                int         `dynamodbav:"attempts,omitempty"`
}

// Line is a price-frozen order line in the order-lines table,
// keyed by order_id + line_no.
type Line struct {
	OrderID     string `dynamodbav:"order_id"` // PK
	LineNo      int    `dynamodbav:"line_no"`  // SK
	ProductID   string `dynamodbav:"product_id,omitempty"`
	ProductName string `dynamodbav:"product_name"`
	Price       int64  `dynamodbav:"price"`
	Quantity    int    `dynamodbav:"quantity"`
}
