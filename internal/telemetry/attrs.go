package telemetry

import "go.opentelemetry.io/otel/attribute"

func modelAttr(model string) attribute.KeyValue {
	return attribute.String("canon.model", model)
}

func reasonAttr(reasonCode string) attribute.KeyValue {
	return attribute.String("canon.reason_code", reasonCode)
}
