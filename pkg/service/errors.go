package service

import "errors"

var (
	// ErrDatasetNotFound 数据集不存在 (元数据层面)
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrNotOwner 调用者不是数据集所有者
	ErrNotOwner = errors.New("caller does not own this dataset")

	// ErrInvalidName 所有者/标题/文件名含有路径语义字符
	ErrInvalidName = errors.New("invalid name")
)
