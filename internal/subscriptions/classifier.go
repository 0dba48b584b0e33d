package subscriptions

// Kind classifies an order's relationship to a subscription contract.
type Kind int

const (
	// KindNone is a plain one-off order.
	KindNone Kind = iota
	// KindInitial is the first order of a new subscription.
	KindInitial
	// KindRenewal is a recurring charge on an existing subscription.
	KindRenewal
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindRenewal:
		return "renewal"
	default:
		return "none"
	}
}

// renewalProperty is stamped on line items by the subscription platform only
// for recurring charges; initial orders carry the selling plan alone.
const renewalProperty = "_subscription_renewal"

// LineItem is the slice of an order line the classifier needs.
type LineItem struct {
	SellingPlanID string
	Properties    map[string]string
}

// Classify inspects an order's line items and reports whether the order is a
// subscription initial, a renewal, or neither, along with the selling plan id
// of the subscription line.
func Classify(items []LineItem) (Kind, string) {
	kind := KindNone
	plan := ""
	for _, item := range items {
		if item.SellingPlanID == "" {
			continue
		}
		if _, ok := item.Properties[renewalProperty]; ok {
			return KindRenewal, item.SellingPlanID
		}
		kind = KindInitial
		plan = item.SellingPlanID
	}
	return kind, plan
}
