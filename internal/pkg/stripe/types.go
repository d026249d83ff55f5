package stripe

// Customer is the Stripe customer object, reduced to the fields we read.
type Customer struct {
	ID      string            `json:"id"`
	Email   string            `json:"email"`
	Name    string            `json:"name"`
	Deleted bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

// Price is a Stripe price reference inside a subscription item.
type Price struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

// SubscriptionItem is one line of a subscription.
type SubscriptionItem struct {
	ID    string `json:"id"`
	Price Price  `json:"price"`
}

// PlanRef is the legacy plan object Stripe still embeds on subscriptions.
type PlanRef struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

// Subscription is the Stripe subscription object, reduced to what plan sync
// and the single-active-subscription policy need.
type Subscription struct {
	ID                string   `json:"id"`
	Customer          string   `json:"customer"`
	Status            string   `json:"status"`
	CancelAtPeriodEnd bool     `json:"cancel_at_period_end"`
	Created           int64    `json:"created"`
	Plan              *PlanRef `json:"plan"`
	Items             struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// ProductID resolves the product reference from either the legacy plan field
// or the first subscription item.
func (s *Subscription) ProductID() string {
	if s.Plan != nil && s.Plan.Product != "" {
		return s.Plan.Product
	}
	if len(s.Items.Data) > 0 {
		return s.Items.Data[0].Price.Product
	}
	return ""
}

// IsCanceled reports whether the subscription is fully ended (as opposed to
// cancel-at-period-end, which keeps the status active until the period ends).
func (s *Subscription) IsCanceled() bool {
	return s.Status == "canceled"
}

// Product is the Stripe product object; the credit allotment of a plan lives
// in its metadata under the "credits" key.
type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// CheckoutSession is a hosted checkout session.
type CheckoutSession struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Customer string            `json:"customer"`
	Mode     string            `json:"mode"`
	Metadata map[string]string `json:"metadata"`
}

// PortalSession is a hosted billing portal session.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Billing portal flow types supported by the account page.
const (
	PortalFlowStandard  = ""
	PortalFlowSubCancel = "subscription_cancel"
	PortalFlowSubUpdate = "subscription_update"
)
