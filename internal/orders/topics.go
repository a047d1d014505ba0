package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderCanceled      = "order.canceled"
)

var Topics = []string{TopicOrderCreated, TopicOrderStatusChanged, TopicOrderCanceled}

// Partition key = order_id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
