package backup

import "errors"

var (
	ErrConfig         = errors.New("backup configuration error")
	ErrNotEnabled     = errors.New("backup is not enabled")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)
