package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/refermint-backend/pkg/errors"
	"github.com/angelmondragon/refermint-backend/pkg/security"
)

// Note attribute keys written by the tracking snippet and the subscription
// platform.
const (
	noteAttrClickID       = "refermint_click_id"
	noteAttrOriginalOrder = "original_order_id"
)

const financialStatusPaid = "paid"

// OrderEvent is the validated form of an inbound order webhook. Raw payloads
// are parsed and checked here so the rest of the pipeline never touches
// loosely typed JSON.
type OrderEvent struct {
	Shop    string
	Topic   enums.WebhookTopic
	EventID string

	OrderID         int64
	OrderNumber     string
	FinancialStatus string
	Total           decimal.Decimal
	Subtotal        decimal.Decimal
	Currency        string
	CreatedAt       time.Time

	CustomerEmail string
	CustomerName  string
	ReferringSite string
	LandingSite   string
	DiscountCodes []string
	NoteAttrs     map[string]string
	LineItems     []OrderLineItem

	IPHash        string
	UserAgentHash string

	// MissingFields names required order fields the payload lacked. A
	// non-empty list means the event must be acknowledged and skipped, never
	// rejected: the platform retries any non-2xx and a field gap is permanent.
	MissingFields []string
}

// OrderLineItem carries the subscription markers of one order line.
type OrderLineItem struct {
	SellingPlanID string
	Properties    map[string]string
}

// IsPaid reports whether the platform marked the order paid.
func (e *OrderEvent) IsPaid() bool {
	return strings.EqualFold(e.FinancialStatus, financialStatusPaid)
}

// CarriedClickID returns the click id attached to the order by the tracking
// snippet, if any.
func (e *OrderEvent) CarriedClickID() string {
	return e.NoteAttrs[noteAttrClickID]
}

// OriginalOrderHint returns the subscription platform's pointer to the
// contract's first order, used to match renewals.
func (e *OrderEvent) OriginalOrderHint() *int64 {
	raw := e.NoteAttrs[noteAttrOriginalOrder]
	if raw == "" {
		for _, item := range e.LineItems {
			if v := item.Properties["_"+noteAttrOriginalOrder]; v != "" {
				raw = v
				break
			}
		}
	}
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

type shopifyOrder struct {
	ID              int64       `json:"id"`
	OrderNumber     json.Number `json:"order_number"`
	FinancialStatus string      `json:"financial_status"`
	TotalPrice      string      `json:"total_price"`
	SubtotalPrice   string      `json:"subtotal_price"`
	Currency        string      `json:"currency"`
	CreatedAt       string      `json:"created_at"`
	ReferringSite   string      `json:"referring_site"`
	LandingSite     string      `json:"landing_site"`
	BrowserIP       string      `json:"browser_ip"`

	Customer struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`

	ClientDetails struct {
		BrowserIP string `json:"browser_ip"`
		UserAgent string `json:"user_agent"`
	} `json:"client_details"`

	DiscountCodes []struct {
		Code string `json:"code"`
	} `json:"discount_codes"`

	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`

	LineItems []struct {
		SellingPlanAllocation *struct {
			SellingPlan struct {
				ID json.Number `json:"id"`
			} `json:"selling_plan"`
		} `json:"selling_plan_allocation"`
		Properties []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"properties"`
	} `json:"line_items"`
}

// ParseOrderEvent decodes a raw order webhook body. Only an undecodable body
// is an error; field-level gaps are recorded on MissingFields so the pipeline
// can acknowledge and skip them.
func ParseOrderEvent(shop string, topic enums.WebhookTopic, eventID string, body []byte) (*OrderEvent, error) {
	var raw shopifyOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order payload")
	}

	var missing []string
	if raw.ID == 0 {
		missing = append(missing, "id")
	}
	if raw.Currency == "" {
		missing = append(missing, "currency")
	}

	total, err := parseMoney(raw.TotalPrice)
	if err != nil {
		missing = append(missing, "total_price")
		total = decimal.Zero
	}
	subtotal := total
	if raw.SubtotalPrice != "" {
		subtotal, err = parseMoney(raw.SubtotalPrice)
		if err != nil {
			missing = append(missing, "subtotal_price")
			subtotal = total
		}
	}

	createdAt := time.Now().UTC()
	if raw.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			createdAt = parsed.UTC()
		}
	}

	event := &OrderEvent{
		MissingFields:   missing,
		Shop:            shop,
		Topic:           topic,
		EventID:         eventID,
		OrderID:         raw.ID,
		OrderNumber:     raw.OrderNumber.String(),
		FinancialStatus: raw.FinancialStatus,
		Total:           total,
		Subtotal:        subtotal,
		Currency:        raw.Currency,
		CreatedAt:       createdAt,
		CustomerEmail:   strings.TrimSpace(raw.Customer.Email),
		CustomerName:    strings.TrimSpace(raw.Customer.FirstName + " " + raw.Customer.LastName),
		ReferringSite:   raw.ReferringSite,
		LandingSite:     raw.LandingSite,
		NoteAttrs:       map[string]string{},
	}

	for _, code := range raw.DiscountCodes {
		if code.Code != "" {
			event.DiscountCodes = append(event.DiscountCodes, code.Code)
		}
	}
	for _, attr := range raw.NoteAttributes {
		if attr.Name != "" {
			event.NoteAttrs[attr.Name] = attr.Value
		}
	}
	for _, item := range raw.LineItems {
		line := OrderLineItem{Properties: map[string]string{}}
		if item.SellingPlanAllocation != nil {
			line.SellingPlanID = item.SellingPlanAllocation.SellingPlan.ID.String()
		}
		for _, prop := range item.Properties {
			line.Properties[prop.Name] = prop.Value
		}
		event.LineItems = append(event.LineItems, line)
	}

	ip := raw.ClientDetails.BrowserIP
	if ip == "" {
		ip = raw.BrowserIP
	}
	event.IPHash = security.HashIdentifier(ip)
	event.UserAgentHash = security.HashIdentifier(raw.ClientDetails.UserAgent)

	return event, nil
}

func parseMoney(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
