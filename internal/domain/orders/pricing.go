package orders

// TaxRate is applied to the subtotal of every order.
const TaxRate = 0.10

type Totals struct {
	Subtotal float64
	Tax      float64
	Discount float64
	Total    float64
}

// LineTotal prices one line at the captured unit price.
func LineTotal(price float64, quantity int) float64 {
	return price * float64(quantity)
}

// Price sums the line totals in order and derives tax and total. Discount is
// always zero.
func Price(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.Total
	}
	t.Tax = t.Subtotal * TaxRate
	t.Total = t.Subtotal + t.Tax - t.Discount
	return t
}
