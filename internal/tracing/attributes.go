package tracing

// Span attribute keys following OpenTelemetry semantic conventions
const (
	// Store attributes
	AttrNamespace = "localstorage_slim.namespace"
	AttrEngine    = "localstorage_slim.engine"

	// Entry attributes
	AttrKey       = "localstorage_slim.key"
	AttrEncrypted = "localstorage_slim.encrypted"
	AttrTTLMillis = "localstorage_slim.ttl_ms"
	AttrForce     = "localstorage_slim.force"
	AttrRemoved   = "localstorage_slim.removed"

	// Operation attributes
	AttrOperation = "localstorage_slim.operation"
	AttrStatus    = "localstorage_slim.status"
	AttrError     = "localstorage_slim.error"
)
