package validation

// Item is a cart line as submitted at checkout. Prices are minor-unit PKR.
type Item struct {
	ProductID string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Price     int64  `json:"price" validate:"required,gt=0"` // unit price, frozen at checkout
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CheckoutRequest is the payload for POST /checkout. Fulfillment carries
// the two entry choices of the form: "pickup" routes to the payment
// selection step, "delivery" goes straight to the proof-based flow.
type CheckoutRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required"`
	Address      string `json:"address" validate:"required"`
	Instructions string `json:"instructions,omitempty"`
	Fulfillment  string `json:"fulfillment" validate:"required,oneof=pickup delivery"`
	Items        []Item `json:"items" validate:"required,min=1,dive"`
	Total        int64  `json:"total" validate:"required,gt=0"` // total the client claims, incl. delivery charge
}
