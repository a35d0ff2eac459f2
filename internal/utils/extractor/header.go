package extractor

// Form fields posted by the telephony provider, plus our own query parameters.
const (
	CallSid           = "CallSid"
	AccountSid        = "AccountSid"
	CallStatus        = "CallStatus"
	RecordingURL      = "RecordingUrl"
	RecordingSid      = "RecordingSid"
	RecordingDuration = "RecordingDuration"
	Language          = "Language"
	LangQuery         = "lang"
	XRequestID        = "X-Request-ID"
)
