package model

type FileStatus int

const (
	StatusNew FileStatus = iota
	StatusSynced
	StatusDeletedInSource
	StatusTempDeleted
	StatusError
)

func (s FileStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusSynced:
		return "SYNCED"
	case StatusDeletedInSource:
		return "DELETED_IN_SOURCE"
	case StatusTempDeleted:
		return "TEMP_DELETED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
