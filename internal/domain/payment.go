package domain

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// LineItemRef identifies a purchased item by provider price or product id.
type LineItemRef struct {
	PriceID   string
	ProductID string
}

// PaymentEvent is a verified, completed payment reduced to what reconciliation
// needs. PackageIDs are taken as-is from the event; LineItems still need
// mapping through the catalog.
type PaymentEvent struct {
	Provider   string
	Reference  string // provider's id for the payment, for logs
	Email      string
	PackageIDs []string
	LineItems  []LineItemRef
}
