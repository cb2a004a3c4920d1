package events

// Topics emitted by the order issuance and verification flows.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderVerified  = "order.verified"
	TopicPaymentFailed  = "payment.failed"
	TopicReplayRejected = "payment.replay_rejected"
)
