package enums

import "fmt"

// WebhookTopic names the Shopify order lifecycle topics the ingest handles.
// TopicOrderPayment is a synthetic topic emitted when a payment notification
// arrives outside the standard orders/updated flow.
type WebhookTopic string

const (
	TopicOrdersCreate WebhookTopic = "orders/create"
	TopicOrdersUpdate WebhookTopic = "orders/updated"
	TopicOrderPayment WebhookTopic = "order/payment"
)

var validWebhookTopics = []WebhookTopic{
	TopicOrdersCreate,
	TopicOrdersUpdate,
	TopicOrderPayment,
}

// String implements fmt.Stringer.
func (t WebhookTopic) String() string {
	return string(t)
}

// IsValid reports whether the topic is recognized.
func (t WebhookTopic) IsValid() bool {
	for _, candidate := range validWebhookTopics {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWebhookTopic converts a raw string into a WebhookTopic.
func ParseWebhookTopic(value string) (WebhookTopic, error) {
	for _, candidate := range validWebhookTopics {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported webhook topic %q", value)
}
