package forward

// Kind classifies why an event did not turn into a delivered message.
type Kind int

const (
	// KindNone means the message was sent.
	KindNone Kind = iota
	// KindNotReady means the messaging client had not finished logging in.
	KindNotReady
	// KindMissingField means the row lacked a usable name or url.
	KindMissingField
	// KindDestinationNotFound means the configured chat could not be resolved.
	KindDestinationNotFound
	// KindSendFailed means the transport rejected the send.
	KindSendFailed
	// KindSubscriptionError means the change feed itself reported a failure.
	KindSubscriptionError
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotReady:
		return "not_ready"
	case KindMissingField:
		return "missing_field"
	case KindDestinationNotFound:
		return "destination_not_found"
	case KindSendFailed:
		return "send_failed"
	case KindSubscriptionError:
		return "subscription_error"
	default:
		return "unknown"
	}
}
