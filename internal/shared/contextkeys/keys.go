package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "portfolio-sync context key " + string(c)
}

const (
	// RequestIDKey carries the per-request id assigned by the HTTP layer.
	RequestIDKey = contextKey("requestID")
	// OriginIDKey carries the id of the surface (process) performing a write.
	OriginIDKey = contextKey("originID")
	// CollectionKey carries the collection key an operation is working on.
	CollectionKey = contextKey("collectionKey")
	// VisitorIDKey carries the anonymous visitor id of the caller.
	VisitorIDKey = contextKey("visitorID")
	// AdminSubjectKey carries the subject of a verified admin token.
	AdminSubjectKey = contextKey("adminSubject")
	// OperationKey names the store operation in progress, for log lines.
	OperationKey = contextKey("operation")
)
