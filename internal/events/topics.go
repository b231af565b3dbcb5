package events

// Topic constants for domain events emitted by the fee counter.
const (
	TopicSettlementCompleted = "settlement.completed"
	TopicSettlementFailed    = "settlement.failed"
	TopicBookFeeAdjusted     = "bookfee.adjusted"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicSettlementCompleted,
		TopicSettlementFailed,
		TopicBookFeeAdjusted,
	}
}
