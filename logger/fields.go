package logger

// Standard structured field names, kept consistent across every
// component so log lines can be correlated and queried uniformly.
const (
	FieldClientID   = "client_id"
	FieldSeqNo      = "seq_no"
	FieldCriticalSeqNo = "critical_seq_no"
	FieldRequestID  = "request_id"
	FieldMethodID   = "method_handle"
	FieldClassID    = "class_handle"

	FieldComponent = "component"
	FieldState     = "state"
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	FieldDurationMS = "duration_ms"
	FieldCount      = "count"

	FieldMemoryState = "memory_state"
	FieldThreadState = "thread_state"

	FieldCacheName = "aot_cache_name"
)
