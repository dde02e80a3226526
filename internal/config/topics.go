package config

const (
	// TopicIndexDocument carries background indexing requests for one document.
	TopicIndexDocument = "index.document"

	// ChannelIndexWorker is the consumer channel of the index worker.
	ChannelIndexWorker = "indexer"
)
