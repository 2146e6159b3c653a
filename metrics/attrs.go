package metrics

import "go.opentelemetry.io/otel/attribute"

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String("reason", reason)
}

func statusAttr(status string) attribute.KeyValue {
	return attribute.String("status", status)
}
