package cart

import (
	"sync"

	"github.com/komugi/bakery-checkout/internal/catalog"
)

// DeliveryCharge is the flat surcharge added for delivery orders, in minor
// currency units. Pickup orders never carry it.
const DeliveryCharge int64 = 300

// Line is a cart entry. Quantity is always >= 1; decrementing below 1
// removes the line instead.
type Line struct {
	ProductID string `json:"id" dynamodbav:"product_id"`
	Name      string `json:"name" dynamodbav:"name"`
	Price     int64  `json:"price" dynamodbav:"price"`
	Quantity  int    `json:"quantity" dynamodbav:"quantity"`
}

// Cart is a per-session mutable cart. Safe for concurrent use, though a
// session normally touches it from one goroutine at a time.
type Cart struct {
	mu    sync.Mutex
	lines map[string]*Line
	order []string // insertion order for stable display
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: map[string]*Line{}}
}

// AddItem inserts the product at quantity 1, or bumps the quantity if the
// product is already in the cart. Adding never fails.
func (c *Cart) AddItem(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ln, ok := c.lines[p.ID]; ok {
		ln.Quantity++
		return
	}
	c.lines[p.ID] = &Line{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: 1}
	c.order = append(c.order, p.ID)
}

// UpdateQuantity sets the quantity for a product, clamped to a floor of 1.
// Removal goes through RemoveItem, never through this path. Unknown product
// ids are ignored.
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ln, ok := c.lines[productID]
	if !ok {
		return
	}
	if quantity < 1 {
		quantity = 1
	}
	ln.Quantity = quantity
}

// RemoveItem deletes the line unconditionally. No-op if absent.
func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the cart. Called after a checkout handoff.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = map[string]*Line{}
	c.order = nil
}

// Lines returns a price-frozen snapshot in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// Subtotal is the sum of price x quantity over all lines.
func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum int64
	for _, ln := range c.lines {
		sum += ln.Price * int64(ln.Quantity)
	}
	return sum
}

// Total returns the payable amount: subtotal plus the delivery charge for
// delivery orders. The charge is flat, never compounded.
func (c *Cart) Total(delivery bool) int64 {
	sum := c.Subtotal()
	if delivery {
		sum += DeliveryCharge
	}
	return sum
}

// Subtotal over a detached snapshot, used once lines have left the cart.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, ln := range lines {
		sum += ln.Price * int64(ln.Quantity)
	}
	return sum
}
