package protocol

// Message type constants for protocol envelopes.
const (
	TypeClearDir  = "clear_dir"
	TypeMkdir     = "mkdir"
	TypeFileChunk = "file_chunk"
	TypeAck       = "ack"
	TypeBye       = "bye"
)

// SentinelName is the receiver's single-instance sentinel file inside the
// output directory. Both sides must agree on it: the receiver excludes it
// from the directory reset and the sender never transmits it.
const SentinelName = ".sync-directory.pid"
