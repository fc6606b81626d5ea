package catalog

// Category groups products for menu filtering.
type Category string

const (
	CategoryCheesecake       Category = "Cheesecake"
	CategoryChiffonCake      Category = "Chiffon Cake"
	CategoryBrownies         Category = "Brownies"
	CategoryWhippedCreamCake Category = "Whipped Cream Cake"
	CategoryCustomised       Category = "Customised"

	// CategoryAll is the default filter and matches every product.
	CategoryAll Category = "All"
)

// Product is an immutable catalog entry. Price is in minor currency units (PKR).
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Image       string   `json:"image"`
}

var products = []Product{
	{ID: "cheese-1", Name: "Japanese Cheesecake - 6 inch", Price: 1600, Description: "Light and fluffy Japanese-style cheesecake", Category: CategoryCheesecake, Image: "cheese-1.jpeg"},
	{ID: "cheese-2", Name: "New York Cheesecake - 6 inch", Price: 1700, Description: "Classic creamy New York style cheesecake", Category: CategoryCheesecake, Image: "cheese-2.jpeg"},
	{ID: "cheese-3", Name: "New York Cheesecake - 8 inch", Price: 3400, Description: "Classic creamy New York style cheesecake", Category: CategoryCheesecake, Image: "cheese-3.jpeg"},
	{ID: "cheese-4", Name: "Baked Cheesecake Sticks - 12 pcs", Price: 1700, Description: "Bite-sized cheesecake portions", Category: CategoryCheesecake, Image: "cheese-4.jpeg"},
	{ID: "cheese-5", Name: "Matcha Cheesecake", Price: 2200, Description: "Japanese green tea cheesecake blend", Category: CategoryCheesecake, Image: "cheese-5.jpeg"},
	{ID: "cheese-6", Name: "Strawberry Cheesecake", Price: 2000, Description: "Fresh strawberry and creamy cheesecake", Category: CategoryCheesecake, Image: "cheese-6.jpeg"},
	{ID: "chiffon-1", Name: "Vanilla Chiffon Cake", Price: 1100, Description: "Light and airy vanilla chiffon cake", Category: CategoryChiffonCake, Image: "chiffon-1.jpeg"},
	{ID: "chiffon-2", Name: "Chocolate Chiffon Cake", Price: 1300, Description: "Light and airy chocolate chiffon cake", Category: CategoryChiffonCake, Image: "chiffon-2.jpeg"},
	{ID: "chiffon-3", Name: "Matcha Chiffon Cake", Price: 1500, Description: "Japanese green tea chiffon cake", Category: CategoryChiffonCake, Image: "chiffon-3.jpeg"},
	{ID: "chiffon-4", Name: "Marble Chiffon Cake", Price: 1300, Description: "Vanilla and chocolate swirled chiffon cake", Category: CategoryChiffonCake, Image: "chiffon-4.jpeg"},
	{ID: "brownie-1", Name: "Chocolate Brownies - 16 pcs", Price: 2100, Description: "Rich and fudgy chocolate brownies", Category: CategoryBrownies, Image: "brownie-1.jpeg"},
	{ID: "whipped-1", Name: "Vanilla Whipped Cream Cake", Price: 1400, Description: "Soft vanilla cake with whipped cream frosting", Category: CategoryWhippedCreamCake, Image: "whipped-1.jpeg"},
	{ID: "whipped-2", Name: "Chocolate Whipped Cream Cake", Price: 1600, Description: "Soft chocolate cake with whipped cream frosting", Category: CategoryWhippedCreamCake, Image: "whipped-2.jpeg"},
	{ID: "whipped-3", Name: "Matcha Whipped Cream Cake", Price: 1800, Description: "Soft matcha cake with whipped cream frosting", Category: CategoryWhippedCreamCake, Image: "whipped-3.jpeg"},
	{ID: "custom-1", Name: "Mango Whipped Cream Cake", Price: 2500, Description: "Fresh mango topped whipped cream cake with mint garnish", Category: CategoryCustomised, Image: "custom-1.jpeg"},
	{ID: "custom-2", Name: "Classic White Cake", Price: 2200, Description: "Elegant white cake with beautiful piped frosting design", Category: CategoryCustomised, Image: "custom-2.jpeg"},
	{ID: "custom-3", Name: "Colored Frosting Cupcakes", Price: 1800, Description: "Assorted cupcakes with vibrant colored frosting", Category: CategoryCustomised, Image: "custom-3.jpeg"},
	{ID: "custom-4", Name: "Character Cake", Price: 3200, Description: "Fun and cute themed cake with detailed character design", Category: CategoryCustomised, Image: "custom-4.jpeg"},
}

var byID = func() map[string]Product {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}()

// Categories lists the menu filters, "All" first.
func Categories() []Category {
	return []Category{
		CategoryAll,
		CategoryCheesecake,
		CategoryChiffonCake,
		CategoryBrownies,
		CategoryWhippedCreamCake,
		CategoryCustomised,
	}
}

// Products returns the catalog filtered by category. CategoryAll (or the
// empty string) returns every product. The returned slice is a copy.
func Products(c Category) []Product {
	if c == "" || c == CategoryAll {
		out := make([]Product, len(products))
		copy(out, products)
		return out
	}
	var out []Product
	for _, p := range products {
		if p.Category == c {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the product with the given id.
func Lookup(id string) (Product, bool) {
	p, ok := byID[id]
	return p, ok
}
