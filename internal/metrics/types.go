package metrics

// Metric name constants following Prometheus naming conventions
// Format: localstorage_slim_{metric}_{unit}
const (
	MetricOperationsTotal      = "localstorage_slim_operations_total"
	MetricOperationDuration    = "localstorage_slim_operation_duration_seconds"
	MetricFlushedEntriesTotal  = "localstorage_slim_flushed_entries_total"
	MetricDecodeFallbacksTotal = "localstorage_slim_decode_fallbacks_total"
	MetricBackendFallback      = "localstorage_slim_backend_fallback"
)

// Label name constants
const (
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelReason    = "reason"
	LabelEngine    = "engine"
)

// Operation label values
const (
	OpSet    = "set"
	OpGet    = "get"
	OpFlush  = "flush"
	OpRemove = "remove"
	OpClear  = "clear"
	OpKeys   = "keys"
)

// Status label values
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
	StatusExpired = "expired"
)

// Reason label values
const (
	ReasonExpired = "expired"
	ReasonForced  = "forced"
	ReasonParse   = "parse"
	ReasonDecrypt = "decrypt"
)
