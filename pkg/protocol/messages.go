package protocol

// Mkdir instructs the receiver to create a directory under its output root.
type Mkdir struct {
	Path string `json:"path"`
}

// FileChunk carries one slice of a file's bytes with ordering metadata.
// Data is base64-encoded on the wire. Seq is 0-based and strictly increasing
// within one FileID; exactly one chunk per file has EOF set and it is the
// highest-numbered one.
type FileChunk struct {
	FileID uint64 `json:"file_id"`
	Path   string `json:"path"`
	Seq    int64  `json:"seq"`
	Data   []byte `json:"data"`
	EOF    bool   `json:"eof"`
}

// Ack reports the receiver's outcome for one chunk. It is advisory: the
// sender logs it but does not gate progress on it.
type Ack struct {
	FileID uint64 `json:"file_id"`
	Seq    int64  `json:"seq"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}
