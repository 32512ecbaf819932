package orders

const (
	TopicOrderEvents = "order.events"
	TopicStockEvents = "stock.events"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	if eventType == EventStockReceived {
		return TopicStockEvents
	}
	return TopicOrderEvents
}
