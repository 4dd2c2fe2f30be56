package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"datavault/pkg/blob"
	"datavault/pkg/types"
)

// ValidateVersion 校验某个版本的完整性并给出清单统计
//
// 校验问题 (对象缺失、checksum 不匹配) 是结论数据，收进 Issues 里返回；
// error 只留给基础设施故障 (版本不存在、存储不可达)
func (s *Service) ValidateVersion(ctx context.Context, caller, datasetID, version string, opts ValidationOptions) (*ValidationResult, error) {
	ds, err := s.visibleDataset(ctx, caller, datasetID)
	if err != nil {
		return nil, err
	}

	entries, err := s.repos.GetFileList(ctx, ds.Owner, ds.Title, version)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:       true,
		FileCount:   len(entries),
		ByExtension: make(map[string]int),
	}

	for _, e := range entries {
		result.TotalSize += e.Size

		ext := strings.ToLower(filepath.Ext(e.Name))
		if ext == "" {
			ext = "(none)"
		}
		result.ByExtension[ext]++

		if !opts.CheckContent {
			continue
		}

		// 逐文件流式比对对象存储里的实际内容
		ok, err := s.store.ValidateChecksum(ctx, types.StorageKey(e.StorageKey), types.Checksum(e.Checksum))
		if errors.Is(err, blob.ErrObjectNotFound) {
			result.Issues = append(result.Issues, ValidationIssue{
				File:      e.Name,
				Kind:      "missing_object",
				Severity:  SeverityError,
				Detail:    fmt.Sprintf("object %s not found in storage", e.StorageKey),
				Timestamp: s.now(),
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to validate %s: %w", e.Name, err)
		}
		if !ok {
			result.Issues = append(result.Issues, ValidationIssue{
				File:      e.Name,
				Kind:      "checksum_mismatch",
				Severity:  SeverityError,
				Detail:    fmt.Sprintf("stored content does not match recorded checksum %s", e.Checksum),
				Timestamp: s.now(),
			})
		}
	}

	if result.FileCount > 0 {
		result.AvgSize = result.TotalSize / int64(result.FileCount)
	}
	result.Valid = len(result.Issues) == 0
	return result, nil
}
