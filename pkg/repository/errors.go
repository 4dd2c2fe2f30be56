package repository

import "errors"

// 仓库层的错误分类
// 调用方错误 (版本号非法、版本不存在) 与基础设施错误 (后端写不进去) 严格分开，
// 前者不重试，后者由上层决定如何冒泡
var (
	// ErrInvalidVersion 版本标签不是合法的语义化版本
	ErrInvalidVersion = errors.New("invalid semantic version")

	// ErrVersionConflict 标签已存在，或版本号不是当前 head 的严格后继
	ErrVersionConflict = errors.New("version conflict")

	// ErrVersionNotFound 请求的版本标签不存在
	ErrVersionNotFound = errors.New("version not found")

	// ErrForkSourceNotFound fork 的源版本不存在
	ErrForkSourceNotFound = errors.New("fork source version not found")

	// ErrRepositoryInit 后端存储无法写入 (磁盘/权限/配额)
	ErrRepositoryInit = errors.New("repository init failed")

	// ErrRepositoryNotFound 仓库本身不存在
	ErrRepositoryNotFound = errors.New("repository not found")
)

// Backend 层的细粒度错误，由 Manager 翻译成上面的领域错误
var (
	ErrNoHead      = errors.New("HEAD not found (empty repository)")
	ErrHeadUpdated = errors.New("concurrent head update detected (CAS failed)")
	ErrTagExists   = errors.New("tag already exists")
	ErrTagNotFound = errors.New("tag not found")
	ErrObjNotFound = errors.New("object not found")
)
