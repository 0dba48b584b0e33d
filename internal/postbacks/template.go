package postbacks

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// ValueKind discriminates how a placeholder mapping resolves.
type ValueKind int

const (
	// KindFixed substitutes a literal value.
	KindFixed ValueKind = iota
	// KindDynamic pulls a field from the closed catalog or the attributed
	// click's raw URL parameters.
	KindDynamic
)

// ParamValue is one placeholder mapping: either a fixed literal or a dynamic
// field key resolved at dispatch time.
type ParamValue struct {
	Kind  ValueKind
	Value string
}

// Fixed builds a literal mapping.
func Fixed(value string) ParamValue { return ParamValue{Kind: KindFixed, Value: value} }

// Dynamic builds a catalog-keyed mapping.
func Dynamic(fieldKey string) ParamValue { return ParamValue{Kind: KindDynamic, Value: fieldKey} }

// The dynamic field catalog. Anything else falls through to the raw URL
// parameters captured on the attributed click.
const (
	FieldCommissionAmount   = "commission_amount"
	FieldCommissionCurrency = "commission_currency"
	FieldCommissionStatus   = "commission_status"
	FieldOrderID            = "order_id"
	FieldOrderNumber        = "order_number"
	FieldOrderTotal         = "order_total"
	FieldCustomerEmail      = "customer_email"
	FieldCustomerName       = "customer_name"
	FieldClickID            = "click_id"
	FieldTransactionID      = "transaction_id"
	FieldSub1               = "sub1"
	FieldSub2               = "sub2"
	FieldSub3               = "sub3"
	FieldSub4               = "sub4"
)

// Event is the commissionable event a postback reports.
type Event struct {
	Commission  *models.Commission
	Attribution *models.OrderAttribution
}

// resolveField looks a dynamic key up in the catalog, then in the click's raw
// parameter snapshot. The empty string means the field has no value for this
// event.
func (e *Event) resolveField(key string) string {
	c := e.Commission
	a := e.Attribution
	switch key {
	case FieldCommissionAmount:
		if c != nil {
			return c.Amount.StringFixed(2)
		}
	case FieldCommissionCurrency:
		if c != nil {
			return c.Currency
		}
	case FieldCommissionStatus:
		if c != nil {
			return c.Status.String()
		}
	case FieldOrderID:
		if c != nil {
			return strconv.FormatInt(c.ShopifyOrderID, 10)
		}
	case FieldOrderNumber:
		if a != nil {
			return a.ShopifyOrderNumber
		}
	case FieldOrderTotal:
		if a != nil {
			return a.OrderTotal.StringFixed(2)
		}
	case FieldCustomerEmail:
		if a != nil && a.CustomerEmail != nil {
			return *a.CustomerEmail
		}
	case FieldCustomerName:
		if a != nil && a.CustomerName != nil {
			return *a.CustomerName
		}
	case FieldClickID:
		if a != nil && a.ClickID != nil {
			return a.ClickID.String()
		}
	default:
	}
	if a != nil {
		return a.LandingURLParams.Get(key)
	}
	return ""
}

// BuildURL renders the affiliate's URL template against the mapping and the
// event. {placeholder} tokens found in the mapping are substituted; unknown
// placeholders are left intact. Mapped parameters not consumed as placeholders
// are appended as query parameters, in stable key order. The resolved
// parameter set is returned for the audit log.
func BuildURL(template string, mapping map[string]ParamValue, event *Event) (string, types.Params) {
	resolved := make(types.Params, len(mapping))
	for name, value := range mapping {
		switch value.Kind {
		case KindFixed:
			resolved[name] = value.Value
		case KindDynamic:
			resolved[name] = event.resolveField(value.Value)
		}
	}

	out := template
	consumed := map[string]bool{}
	for name, value := range resolved {
		token := "{" + name + "}"
		if strings.Contains(out, token) {
			out = strings.ReplaceAll(out, token, url.QueryEscape(value))
			consumed[name] = true
		}
	}

	var leftover []string
	for name := range resolved {
		if !consumed[name] && resolved[name] != "" {
			leftover = append(leftover, name)
		}
	}
	if len(leftover) > 0 {
		sort.Strings(leftover)
		query := url.Values{}
		for _, name := range leftover {
			query.Set(name, resolved[name])
		}
		separator := "?"
		if strings.Contains(out, "?") {
			separator = "&"
		}
		out += separator + query.Encode()
	}
	return out, resolved
}

// MappingFromParams lifts an affiliate's stored postback parameters into
// placeholder mappings. Values wrapped in braces become dynamic catalog
// lookups; everything else is a fixed literal.
func MappingFromParams(params types.Params) map[string]ParamValue {
	mapping := make(map[string]ParamValue, len(params))
	for name, value := range params {
		if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
			mapping[name] = Dynamic(strings.Trim(value, "{}"))
			continue
		}
		mapping[name] = Fixed(value)
	}
	return mapping
}
