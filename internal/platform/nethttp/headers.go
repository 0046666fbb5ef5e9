package nethttp

const (
	headerCorrelationID = "X-Correlation-ID"
	headerRealIP        = "X-Real-Ip"
	headerForwardedFor  = "X-Forwarded-For"
)
