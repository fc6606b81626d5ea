package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/komugi/bakery-checkout/internal/cart"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the claimed Total must equal the sum of (price * quantity) plus the
	// delivery charge for delivery orders. Prices are integers, so the
	// comparison is exact.
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	var sum int64
	for _, it := range req.Items {
		sum += it.Price * int64(it.Quantity)
	}
	if req.Fulfillment == "delivery" {
		sum += cart.DeliveryCharge
	}

	if sum != req.Total {
		sl.ReportError(req.Total, "total", "Total", "total_match_items", fmt.Sprintf("items sum %d != total %d", sum, req.Total))
	}
}
