package blob

import "errors"

var (
	// ErrAccessDenied 私有资源下载未携带授权令牌
	ErrAccessDenied = errors.New("access denied: private object requires token")

	// ErrTransferExhausted 分块传输的重试预算用尽
	ErrTransferExhausted = errors.New("transfer retry budget exhausted")

	// ErrChecksumMismatch 只由显式校验产生，diff 永远不抛它
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrObjectNotFound 后端没有这个对象
	ErrObjectNotFound = errors.New("object not found in storage backend")
)
