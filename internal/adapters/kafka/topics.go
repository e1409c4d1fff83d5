package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicUsageRecorded carries one JSON usage.Record per accounted call.
	TopicUsageRecorded = "usage.recorded"

	// TopicCatalogRefreshed announces a completed catalog reload.
	TopicCatalogRefreshed = "catalog.refreshed"
)

// Consumer groups
const (
	GroupUsageWriter = "switchboard-usage-writer"
)
