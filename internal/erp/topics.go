package erp

const (
	TopicRunRequested  = "woo.sync.run.requested"
	TopicRunCompleted  = "woo.sync.run.completed"
	TopicOrderImported = "woo.sync.order.imported"
)

// Partition key = profile_id, supaya run satu profile tetap berurutan.
func PartitionKey(profileID string) []byte { return []byte(profileID) }
