package enums

import "fmt"

// PostbackStatus tracks the delivery state of an outbound postback attempt.
type PostbackStatus string

const (
	PostbackStatusPending   PostbackStatus = "pending"
	PostbackStatusSuccess   PostbackStatus = "success"
	PostbackStatusFailed    PostbackStatus = "failed"
	PostbackStatusExhausted PostbackStatus = "exhausted"
)

var validPostbackStatuses = []PostbackStatus{
	PostbackStatusPending,
	PostbackStatusSuccess,
	PostbackStatusFailed,
	PostbackStatusExhausted,
}

// String implements fmt.Stringer.
func (s PostbackStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (s PostbackStatus) IsValid() bool {
	for _, candidate := range validPostbackStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePostbackStatus converts a raw string into a PostbackStatus.
func ParsePostbackStatus(value string) (PostbackStatus, error) {
	for _, candidate := range validPostbackStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid postback status %q", value)
}
