package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys used across the lifecycle engine.
const (
	AttrJobName        = attribute.Key("vilo.job_name")
	AttrTriggeredBy    = attribute.Key("vilo.triggered_by")
	AttrTenantID       = attribute.Key("vilo.tenant_id")
	AttrSubscriptionID = attribute.Key("vilo.subscription_id")
)

// JobAttributes builds the span attributes for one automation run.
func JobAttributes(jobName, triggeredBy string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrJobName.String(jobName),
		AttrTriggeredBy.String(triggeredBy),
	}
}

// SubscriptionAttributes tags a span with the subscription being worked.
func SubscriptionAttributes(subscriptionID, tenantID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSubscriptionID.String(subscriptionID),
		AttrTenantID.String(tenantID),
	}
}

var sensitiveAttributeKeys = []string{
	"password",
	"secret",
	"token",
	"authorization",
}

// SafeAttributes drops attributes with sensitive keys.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveAttributeKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
