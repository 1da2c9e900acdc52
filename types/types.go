package types

// ActiveSession is the session currently mounted by a BrowserState.
type ActiveSession struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Metadata is the diagnostic record stored next to zip-encoded sessions.
type Metadata struct {
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
	FileCount *int   `json:"fileCount,omitempty"`
}

const MetadataVersion = "2.0"
