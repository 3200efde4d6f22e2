package cli

import "errors"

var (
	errObjectIDRequired = errors.New("object id is required")
	errTitleRequired    = errors.New("title is required")
	errQueryRequired    = errors.New("search query is required")
	errTooManyArgs      = errors.New("too many arguments")
	errPatchInput       = errors.New("cannot read patch")
	errBaseRequired     = errors.New("a bare operation array needs --base")
	errImportInput      = errors.New("cannot read export document")
)
