package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDecoderInit   ReasonCode = "decoder_init"
	ReasonDecoderDecode ReasonCode = "decoder_decode"
	ReasonModelNotFound ReasonCode = "model_not_found"

	ReasonStreamConnect     ReasonCode = "stream_connect"
	ReasonStreamSend        ReasonCode = "stream_send"
	ReasonStreamClosed      ReasonCode = "stream_closed"
	ReasonStreamRateLimit   ReasonCode = "stream_rate_limit"
	ReasonStreamCircuitOpen ReasonCode = "stream_circuit_open"

	ReasonTransportStart            ReasonCode = "transport_start"
	ReasonTransportSend             ReasonCode = "transport_send"
	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"

	ReasonConfigInvalid    ReasonCode = "config_invalid"
	ReasonProviderUnknown  ReasonCode = "provider_unknown"
	ReasonSessionNotFound  ReasonCode = "session_not_found"
	ReasonResetWhileActive ReasonCode = "reset_while_running"
)
