package orders

const TopicOrderEvents = "order.events"

// Partition key = order id, so every event of one order lands on the same partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
