package model

// FileMeta is the manifest record kept for every published source key.
type FileMeta struct {
	Size       int64      `json:"size"`
	ModTime    int64      `json:"mtime"`
	Hash       string     `json:"hash"`
	RemotePath string     `json:"remote_path,omitempty"` // Path under the remote root, empty until published
	Status     FileStatus `json:"status"`
}

// SourceFile is one file offered by a source for publishing.
type SourceFile struct {
	Key     string // Slash separated path relative to the source root
	Hash    string // ETag for S3 sources, empty for local ones
	Size    int64
	ModTime int64 // Unix seconds
}
