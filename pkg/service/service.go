// Package service 是编排层：把元数据事务、版本仓库操作、对象存储操作
// 组装成对外的单个逻辑操作
//
// 三方 (SQL / 版本仓库 / 对象存储) 之间没有共同事务，
// 跨系统的写入走意图记录 (saga)：先落意图，做副作用，最后标记完成；
// 半途失败由补偿动作 + 启动清扫兜底
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"datavault/pkg/blob"
	"datavault/pkg/core"
	"datavault/pkg/meta"
	"datavault/pkg/repository"
	"datavault/pkg/types"

	"github.com/blang/semver/v4"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Service struct {
	repos *repository.Manager
	store *blob.Client
	db    *meta.Repository

	// 每数据集互斥锁 + 元数据 CAS 双保险：
	// 锁挡住同进程的并发写者，CAS 挡住其他进程的
	locks *keyedLocks
	now   func() time.Time
}

func New(repos *repository.Manager, store *blob.Client, db *meta.Repository) *Service {
	return &Service{
		repos: repos,
		store: store,
		db:    db,
		locks: newKeyedLocks(),
		now:   time.Now,
	}
}

// -----------------------------------------------------------------------------
// 1. 数据集创建 / 删除
// -----------------------------------------------------------------------------

// CreateDataset 在一个逻辑操作里完成：
// 元数据记录 (含意图) -> 上传凭证 -> 仓库初始化 (根版本 1.0.0) -> 投影
//
// 元数据事务失败则什么都没发生；后续步骤失败触发补偿：
// 删掉刚建的元数据记录、移除半初始化的仓库、把意图标记为 failed
func (s *Service) CreateDataset(ctx context.Context, owner string, in CreateDatasetInput) (*CreateDatasetResult, error) {
	if err := validateName("owner", owner); err != nil {
		return nil, err
	}
	if err := validateName("title", in.Title); err != nil {
		return nil, err
	}

	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("invalid tags: %w", err)
	}

	visibility := types.VisibilityPublic
	if in.IsPrivate {
		visibility = types.VisibilityPrivate
	}

	ds := &meta.Dataset{
		ID:             uuid.NewString(),
		Owner:          owner,
		Title:          in.Title,
		Description:    in.Description,
		Tags:           datatypes.JSON(tagsJSON),
		Visibility:     string(visibility),
		CurrentVersion: repository.RootVersion,
	}
	intent := &meta.Intent{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Kind:      meta.IntentCreateDataset,
		State:     meta.IntentPending,
	}

	// 1. 元数据 + 意图，一个事务，all-or-nothing
	if err := s.db.CreateDataset(ctx, ds, intent); err != nil {
		return nil, err
	}

	// 2. 之后的副作用失败都走补偿路径
	// 仓库还没初始化，追踪规则就是 Init 即将写入的默认规则
	tracker := repository.NewTracker(repository.DefaultTrackingRules)
	entries, tickets, err := s.issueTickets(ctx, owner, in.Title, in.IsPrivate, tracker, in.Files)
	if err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}

	commitID, err := s.repos.InitializeRepository(ctx, owner, in.Title, in.Meta, entries)
	if err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}

	if err := s.projectVersion(ctx, ds.ID, commitID, repository.RootVersion, "", owner, "initial version", in.Meta, entries); err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}

	if err := s.db.MarkIntent(ctx, intent.ID, meta.IntentComplete); err != nil {
		slog.Warn("failed to complete intent", "intent", intent.ID, "error", err)
	}

	return &CreateDatasetResult{
		Dataset:       datasetInfo(ds),
		UploadTickets: tickets,
	}, nil
}

// compensateCreate 回滚一次失败的数据集创建
// 补偿自身的失败只记日志：悬挂的 pending 意图会被 ReconcileIntents 扫到
func (s *Service) compensateCreate(ctx context.Context, ds *meta.Dataset, intentID string) {
	if err := s.repos.RemoveRepository(ctx, ds.Owner, ds.Title); err != nil {
		slog.Warn("compensation: failed to remove repository", "dataset", ds.ID, "error", err)
	}
	if err := s.db.DeleteDataset(ctx, ds.ID); err != nil {
		slog.Warn("compensation: failed to delete dataset record", "dataset", ds.ID, "error", err)
		// 记录还在，把意图标成 failed 留给清扫
		if err := s.db.MarkIntent(ctx, intentID, meta.IntentFailed); err != nil {
			slog.Warn("compensation: failed to mark intent", "intent", intentID, "error", err)
		}
	}
}

// DeleteDataset 删除数据集：元数据级联 + 版本仓库 + 对象存储
func (s *Service) DeleteDataset(ctx context.Context, owner, datasetID string) error {
	ds, err := s.ownedDataset(ctx, owner, datasetID)
	if err != nil {
		return err
	}

	s.locks.Lock(ds.ID)
	defer s.locks.Unlock(ds.ID)

	// 元数据先删：它是对外可见性的真相源，删掉之后残留的仓库/对象只是垃圾
	if err := s.db.DeleteDataset(ctx, ds.ID); err != nil {
		return err
	}
	if err := s.repos.RemoveRepository(ctx, ds.Owner, ds.Title); err != nil {
		slog.Warn("failed to remove repository, orphaned", "dataset", ds.ID, "error", err)
	}
	// 对象清理尽力而为
	prefix := types.StorageKey(fmt.Sprintf("%s/%s/%s/", ds.Visibility, ds.Owner, ds.Title))
	if err := s.store.DeletePrefix(ctx, prefix); err != nil {
		slog.Warn("failed to clean up stored objects", "dataset", ds.ID, "error", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// 2. 版本推进
// -----------------------------------------------------------------------------

// CreateVersion 在数据集上追加一个版本
// 版本校验完全委托仓库层 (semver 语法、严格后继、标签唯一)；
// 这里负责所有权检查、上传凭证、元数据投影和 head 的 CAS 推进
func (s *Service) CreateVersion(ctx context.Context, owner, datasetID string, in CreateVersionInput) (*CreateVersionResult, error) {
	ds, err := s.ownedDataset(ctx, owner, datasetID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(ds.ID)
	defer s.locks.Unlock(ds.ID)

	// 追踪规则读仓库里落盘的那份，定制/fork 过的规则在这里生效
	tracker, err := s.repos.TrackerFor(ctx, ds.Owner, ds.Title)
	if err != nil {
		return nil, err
	}

	entries, tickets, err := s.issueTickets(ctx, ds.Owner, ds.Title, types.Visibility(ds.Visibility).IsPrivate(), tracker, in.Files)
	if err != nil {
		return nil, err
	}

	intent := &meta.Intent{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Kind:      meta.IntentCreateVersion,
		State:     meta.IntentPending,
	}
	if err := s.db.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}

	commitID, err := s.repos.CreateVersion(ctx, ds.Owner, ds.Title, in.Version, in.Changes, in.Meta, entries)
	if err != nil {
		if markErr := s.db.MarkIntent(ctx, intent.ID, meta.IntentFailed); markErr != nil {
			slog.Warn("failed to mark intent", "intent", intent.ID, "error", markErr)
		}
		return nil, err
	}

	if err := s.projectVersion(ctx, ds.ID, commitID, in.Version, ds.CurrentVersion, owner, in.Changes, in.Meta, entries); err != nil {
		// 仓库已提交成功，投影失败不可回滚 (提交是不可变的)；
		// 意图留成 failed，投影由读路径兜底 (真相源永远是仓库)
		if markErr := s.db.MarkIntent(ctx, intent.ID, meta.IntentFailed); markErr != nil {
			slog.Warn("failed to mark intent", "intent", intent.ID, "error", markErr)
		}
		return nil, err
	}

	if err := s.db.UpdateDatasetHead(ctx, ds.ID, in.Version, ds.HeadVersion); err != nil {
		if errors.Is(err, meta.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("%w: %v", repository.ErrVersionConflict, err)
		}
		return nil, err
	}

	if err := s.db.MarkIntent(ctx, intent.ID, meta.IntentComplete); err != nil {
		slog.Warn("failed to complete intent", "intent", intent.ID, "error", err)
	}

	return &CreateVersionResult{
		CommitID:      commitID,
		Version:       in.Version,
		UploadTickets: tickets,
	}, nil
}

// RollbackVersion 追加一个内容与 targetVersion 逐字节一致的新版本
// 历史不可变：回滚是前进到过去，不是删除
func (s *Service) RollbackVersion(ctx context.Context, owner, datasetID, targetVersion string) (*CreateVersionResult, error) {
	ds, err := s.ownedDataset(ctx, owner, datasetID)
	if err != nil {
		return nil, err
	}

	// 回滚到当前 head 没有意义，按冲突处理
	if targetVersion == ds.CurrentVersion {
		return nil, fmt.Errorf("%w: %s is already the current version", repository.ErrVersionConflict, targetVersion)
	}

	entries, err := s.repos.GetFileList(ctx, ds.Owner, ds.Title, targetVersion)
	if err != nil {
		return nil, err
	}
	targetMeta, err := s.repos.GetVersionMetadata(ctx, ds.Owner, ds.Title, targetVersion)
	if err != nil {
		return nil, err
	}

	// 新标签 = 当前 head 的 minor +1 (patch 归零)
	current, err := semver.Parse(ds.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted current version %q", repository.ErrInvalidVersion, ds.CurrentVersion)
	}
	next := semver.Version{Major: current.Major, Minor: current.Minor + 1, Patch: 0}

	files := make([]FileInput, 0, len(entries))
	for _, e := range entries {
		files = append(files, FileInput{
			Name:        e.Name,
			Size:        e.Size,
			ContentType: e.ContentType,
			Checksum:    types.Checksum(e.Checksum),
			StorageKey:  types.StorageKey(e.StorageKey), // 复用对象，零拷贝回滚
		})
	}

	return s.CreateVersion(ctx, owner, datasetID, CreateVersionInput{
		Version: next.String(),
		Changes: fmt.Sprintf("rollback to %s", targetVersion),
		Meta:    targetMeta.Meta,
		Files:   files,
	})
}

// -----------------------------------------------------------------------------
// 3. 读取
// -----------------------------------------------------------------------------

// GetVersionMetadata 透传仓库层的富化版本记录
func (s *Service) GetVersionMetadata(ctx context.Context, owner, datasetID, version string) (*repository.VersionMetadata, error) {
	ds, err := s.visibleDataset(ctx, owner, datasetID)
	if err != nil {
		return nil, err
	}
	return s.repos.GetVersionMetadata(ctx, ds.Owner, ds.Title, version)
}

// ListVersions 完整版本历史 (新的在前)
func (s *Service) ListVersions(ctx context.Context, owner, datasetID string) ([]repository.VersionSummary, error) {
	ds, err := s.visibleDataset(ctx, owner, datasetID)
	if err != nil {
		return nil, err
	}
	return s.repos.ListVersions(ctx, ds.Owner, ds.Title)
}

// CompareVersions diff + 为每个新增/修改的文件签发下载地址
func (s *Service) CompareVersions(ctx context.Context, owner, datasetID, v1, v2 string) (*CompareResult, error) {
	ds, err := s.visibleDataset(ctx, owner, datasetID)
	if err != nil {
		return nil, err
	}

	diff, err := s.repos.GetDiff(ctx, ds.Owner, ds.Title, v1, v2)
	if err != nil {
		return nil, err
	}

	// 私有数据集：调用者已通过可见性检查，用 owner 标识作为下载令牌
	token := ""
	if types.Visibility(ds.Visibility).IsPrivate() {
		token = owner
	}

	urls := make(map[string]string)
	entries, err := s.repos.GetFileList(ctx, ds.Owner, ds.Title, v2)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]core.ManifestEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	appendURL := func(name string) error {
		e, ok := byName[name]
		if !ok {
			return nil
		}
		url, err := s.store.GetDownloadURL(ctx, types.StorageKey(e.StorageKey), token)
		if err != nil {
			return fmt.Errorf("failed to sign url for %s: %w", name, err)
		}
		urls[name] = url
		return nil
	}
	for _, e := range diff.Added {
		if err := appendURL(e.Name); err != nil {
			return nil, err
		}
	}
	for _, c := range diff.Modified {
		if err := appendURL(c.Name); err != nil {
			return nil, err
		}
	}

	return &CompareResult{Diff: diff, DownloadURLs: urls}, nil
}

// -----------------------------------------------------------------------------
// 4. Fork
// -----------------------------------------------------------------------------

// ForkDataset 以源数据集的某个版本为种子创建新数据集
// 新数据集归调用者所有，历史从 1.0.0 重新开始，与源完全独立
func (s *Service) ForkDataset(ctx context.Context, owner, sourceDatasetID, targetVersion, newTitle string) (*DatasetInfo, error) {
	if err := validateName("owner", owner); err != nil {
		return nil, err
	}
	src, err := s.visibleDataset(ctx, owner, sourceDatasetID)
	if err != nil {
		return nil, err
	}
	if newTitle == "" {
		newTitle = src.Title
	}
	if err := validateName("title", newTitle); err != nil {
		return nil, err
	}

	ds := &meta.Dataset{
		ID:             uuid.NewString(),
		Owner:          owner,
		Title:          newTitle,
		Description:    src.Description,
		Tags:           src.Tags,
		Visibility:     src.Visibility,
		CurrentVersion: repository.RootVersion,
	}
	intent := &meta.Intent{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Kind:      meta.IntentForkDataset,
		State:     meta.IntentPending,
	}
	if err := s.db.CreateDataset(ctx, ds, intent); err != nil {
		return nil, err
	}

	commitID, err := s.repos.ForkRepository(ctx, src.Owner, src.Title, targetVersion, owner, newTitle)
	if err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}

	entries, err := s.repos.GetFileList(ctx, owner, newTitle, repository.RootVersion)
	if err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}
	message := fmt.Sprintf("forked from %s/%s at %s", src.Owner, src.Title, targetVersion)
	if err := s.projectVersion(ctx, ds.ID, commitID, repository.RootVersion, "", owner, message, nil, entries); err != nil {
		s.compensateCreate(ctx, ds, intent.ID)
		return nil, err
	}

	if err := s.db.MarkIntent(ctx, intent.ID, meta.IntentComplete); err != nil {
		slog.Warn("failed to complete intent", "intent", intent.ID, "error", err)
	}
	return datasetInfo(ds), nil
}

// -----------------------------------------------------------------------------
// 5. 意图清扫
// -----------------------------------------------------------------------------

// ReconcileIntents 清扫悬挂的 pending 意图 (启动时调用)
// 创建类意图：补偿 (删元数据 + 删仓库) 并标记 failed；
// 版本类意图：仓库是真相源，投影可以重建，直接标记 failed
// 返回处理掉的意图数
func (s *Service) ReconcileIntents(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.db.PendingIntents(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	for _, intent := range stale {
		switch intent.Kind {
		case meta.IntentCreateDataset, meta.IntentForkDataset:
			ds, err := s.db.GetDataset(ctx, intent.DatasetID)
			if err == nil {
				s.compensateCreate(ctx, ds, intent.ID)
			}
		}
		// 补偿可能已经连意图一起删了，标记失败不算错误
		_ = s.db.MarkIntent(ctx, intent.ID, meta.IntentFailed)
		slog.Info("reconciled stale intent", "intent", intent.ID, "kind", intent.Kind)
	}
	return len(stale), nil
}

// -----------------------------------------------------------------------------
// 内部辅助
// -----------------------------------------------------------------------------

// validateName 校验将要进入存储路径的标识 (所有者、标题、文件名)
// 只拦路径语义：分隔符、相对段、空值；标识会被拼进仓库目录和存储 Key，
// 任何能改变路径层级的输入都必须在这里死掉
func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidName, kind)
	}
	if name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %s %q contains path characters", ErrInvalidName, kind, name)
	}
	return nil
}

// issueTickets 把声明的文件集变成清单条目 + 上传凭证
// 带 StorageKey 的文件复用现有对象，不签新凭证；
// Tracked 由仓库的追踪规则决定 (fork/定制过的规则生效)
func (s *Service) issueTickets(ctx context.Context, owner, title string, isPrivate bool, tracker *repository.Tracker, files []FileInput) ([]core.ManifestEntry, []FileUploadTicket, error) {
	entries := make([]core.ManifestEntry, 0, len(files))
	var tickets []FileUploadTicket

	for _, f := range files {
		if err := validateName("file name", f.Name); err != nil {
			return nil, nil, err
		}

		key := f.StorageKey
		if key == "" {
			ticket, err := s.store.GetUploadURL(ctx, owner, title, f.Name, isPrivate)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to issue upload url for %s: %w", f.Name, err)
			}
			key = ticket.Key
			tickets = append(tickets, FileUploadTicket{
				Name:       f.Name,
				StorageKey: ticket.Key,
				UploadURL:  ticket.URL,
				Tracked:    tracker.IsTracked(f.Name),
			})
		}
		entries = append(entries, core.ManifestEntry{
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
			StorageKey:  string(key),
			Checksum:    string(f.Checksum),
		})
	}
	return entries, tickets, nil
}

// projectVersion 把一次已密封的提交投影到 SQL (版本索引 + 文件清单)
// 两个写入都是幂等的，重放安全
func (s *Service) projectVersion(ctx context.Context, datasetID string, commitID types.Hash, version, parent, author, message string, versionMeta map[string]string, entries []core.ManifestEntry) error {
	metaJSON, err := json.Marshal(versionMeta)
	if err != nil {
		return err
	}
	if err := s.db.IndexVersion(ctx, &meta.VersionModel{
		Hash:      string(commitID),
		DatasetID: datasetID,
		Label:     version,
		Parent:    parent,
		Author:    author,
		Message:   message,
		Timestamp: s.now().Unix(),
		Meta:      datatypes.JSON(metaJSON),
	}); err != nil {
		return err
	}

	records := make([]meta.FileRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, meta.FileRecord{
			DatasetID:   datasetID,
			Version:     version,
			Name:        e.Name,
			Size:        e.Size,
			ContentType: e.ContentType,
			StorageKey:  e.StorageKey,
			Checksum:    e.Checksum,
		})
	}
	return s.db.AppendFileRecords(ctx, records)
}

// ownedDataset 读取数据集并要求调用者是所有者 (写操作的准入)
func (s *Service) ownedDataset(ctx context.Context, owner, datasetID string) (*meta.Dataset, error) {
	ds, err := s.db.GetDataset(ctx, datasetID)
	if errors.Is(err, meta.ErrDatasetNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	if err != nil {
		return nil, err
	}
	if ds.Owner != owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, datasetID)
	}
	return ds, nil
}

// visibleDataset 读操作的准入：公开数据集人人可读，私有的只有所有者可读
func (s *Service) visibleDataset(ctx context.Context, caller, datasetID string) (*meta.Dataset, error) {
	ds, err := s.db.GetDataset(ctx, datasetID)
	if errors.Is(err, meta.ErrDatasetNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	if err != nil {
		return nil, err
	}
	if types.Visibility(ds.Visibility).IsPrivate() && ds.Owner != caller {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, datasetID)
	}
	return ds, nil
}

func datasetInfo(ds *meta.Dataset) *DatasetInfo {
	var tags []string
	if len(ds.Tags) > 0 {
		_ = json.Unmarshal(ds.Tags, &tags)
	}
	return &DatasetInfo{
		ID:             ds.ID,
		Owner:          ds.Owner,
		Title:          ds.Title,
		Description:    ds.Description,
		Tags:           tags,
		Visibility:     types.Visibility(ds.Visibility),
		CurrentVersion: ds.CurrentVersion,
		CreatedAt:      ds.CreatedAt,
	}
}
