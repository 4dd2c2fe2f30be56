package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"datavault/pkg/core"
	"datavault/pkg/types"

	"github.com/blang/semver/v4"
)

// RootVersion 每个仓库的根快照版本号
const RootVersion = "1.0.0"

// RepoIDFor 统一生成仓库标识
// 用 "--" 而不是 "/" 连接，避免文件系统后端出现意外的目录层级
func RepoIDFor(owner, dataset string) types.RepoID {
	return types.RepoID(owner + "--" + dataset)
}

// FileDelta 是一个版本相对父版本的文件级增量 (只有名字，细节看 Diff)
type FileDelta struct {
	Added    []string
	Modified []string
	Removed  []string
}

// VersionMetadata 是 GetVersionMetadata 返回的富化版本记录
type VersionMetadata struct {
	Version   string
	Parent    string // 父版本标签，根版本为空
	CommitID  types.Hash
	CreatedAt time.Time
	Message   string
	Meta      map[string]string

	Delta     FileDelta
	FileCount int
	TotalSize int64
}

// VersionSummary 历史列表里的一行 (dv log)
type VersionSummary struct {
	Version   string
	CommitID  types.Hash
	Message   string
	CreatedAt time.Time
}

// Manager 拥有每个数据集的提交图
// 所有操作都通过 Backend 接口落地，不直接碰文件系统
type Manager struct {
	backend Backend
	now     func() time.Time // 可注入时钟，方便测试
}

func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend, now: time.Now}
}

// -----------------------------------------------------------------------------
// 1. 初始化与提交
// -----------------------------------------------------------------------------

// InitializeRepository 创建一个全新仓库并提交根快照 (tag v1.0.0)
// 失败统一归类为 ErrRepositoryInit —— 对调用方来说都是"后端写不进去"
func (m *Manager) InitializeRepository(ctx context.Context, owner, dataset string, meta map[string]string, entries []core.ManifestEntry) (types.Hash, error) {
	repo := RepoIDFor(owner, dataset)

	if err := m.backend.Init(ctx, repo, DefaultTrackingRules); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepositoryInit, err)
	}

	hash, err := m.sealVersion(ctx, repo, sealInput{
		version: RootVersion,
		parent:  "",
		author:  owner,
		message: "initial version",
		meta:    meta,
		entries: entries,
		oldGen:  0,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepositoryInit, err)
	}
	return hash, nil
}

// CreateVersion 在当前 head 之后追加一个版本
//
// 校验顺序是刻意的：先做纯内存校验 (semver 语法、后继关系)，
// 全部通过后才允许碰后端 —— 非法版本号绝不产生任何仓库变更
func (m *Manager) CreateVersion(ctx context.Context, owner, dataset, version, changeDescription string, meta map[string]string, entries []core.ManifestEntry) (types.Hash, error) {
	repo := RepoIDFor(owner, dataset)

	// 1. 语法校验 (semver 必须是完整的 major.minor.patch)
	next, err := semver.Parse(version)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	// 2. 读取当前 head，校验严格后继关系
	head, err := m.backend.Head(ctx, repo)
	if errors.Is(err, ErrNoHead) {
		return "", fmt.Errorf("%w: repository has no root version", ErrRepositoryNotFound)
	}
	if err != nil {
		return "", err
	}

	headCommit, err := m.loadCommit(ctx, repo, head.Commit)
	if err != nil {
		return "", err
	}
	current, err := semver.Parse(headCommit.Version)
	if err != nil {
		return "", fmt.Errorf("corrupted head version %q: %w", headCommit.Version, err)
	}
	if !next.GT(current) {
		return "", fmt.Errorf("%w: %s does not succeed current head %s", ErrVersionConflict, version, headCommit.Version)
	}

	// 3. 标签预检 (SetTag 是最终防线，这里提前失败省一次对象写入)
	if _, err := m.backend.GetTag(ctx, repo, tagName(version)); err == nil {
		return "", fmt.Errorf("%w: tag %s already exists", ErrVersionConflict, tagName(version))
	} else if !errors.Is(err, ErrTagNotFound) {
		return "", err
	}

	return m.sealVersion(ctx, repo, sealInput{
		version: version,
		parent:  head.Commit,
		author:  owner,
		message: changeDescription,
		meta:    meta,
		entries: entries,
		oldGen:  head.Generation,
	})
}

type sealInput struct {
	version string
	parent  types.Hash
	author  string
	message string
	meta    map[string]string
	entries []core.ManifestEntry
	oldGen  int64
}

// sealVersion 清单 -> 提交 -> 标签 -> head，一路写到底
func (m *Manager) sealVersion(ctx context.Context, repo types.RepoID, in sealInput) (types.Hash, error) {
	manifest, err := core.NewManifest(in.entries)
	if err != nil {
		return "", fmt.Errorf("failed to build manifest: %w", err)
	}

	commit, err := core.NewCommit(manifest.ID(), in.parent, in.version, in.author, in.message, in.meta, m.now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to build commit: %w", err)
	}

	if err := m.backend.Put(ctx, repo, manifest); err != nil {
		return "", fmt.Errorf("failed to store manifest: %w", err)
	}
	if err := m.backend.Put(ctx, repo, commit); err != nil {
		return "", fmt.Errorf("failed to store commit: %w", err)
	}

	// 标签是一次性的：已存在说明并发提交抢先了
	if err := m.backend.SetTag(ctx, repo, tagName(in.version), commit.ID()); err != nil {
		if errors.Is(err, ErrTagExists) {
			return "", fmt.Errorf("%w: tag %s already exists", ErrVersionConflict, tagName(in.version))
		}
		return "", err
	}

	if err := m.backend.UpdateHead(ctx, repo, commit.ID(), in.oldGen); err != nil {
		if errors.Is(err, ErrHeadUpdated) {
			return "", fmt.Errorf("%w: concurrent head update", ErrVersionConflict)
		}
		return "", err
	}
	return commit.ID(), nil
}

// -----------------------------------------------------------------------------
// 2. 读取与比对
// -----------------------------------------------------------------------------

// GetVersionMetadata 解析标签 -> 提交 -> 相对父版本的增量 + 聚合统计
func (m *Manager) GetVersionMetadata(ctx context.Context, owner, dataset, version string) (*VersionMetadata, error) {
	repo := RepoIDFor(owner, dataset)

	commit, err := m.resolveVersion(ctx, repo, version)
	if err != nil {
		return nil, err
	}
	manifest, err := m.loadManifest(ctx, repo, types.Hash(commit.ManifestCid.Hash))
	if err != nil {
		return nil, err
	}

	md := &VersionMetadata{
		Version:   commit.Version,
		CommitID:  commit.ID(),
		CreatedAt: time.Unix(commit.Timestamp, 0),
		Message:   commit.Message,
		Meta:      commit.Meta,
		FileCount: len(manifest.Entries),
		TotalSize: manifest.TotalSize(),
	}

	// 相对父版本的增量；根版本的"父"是一个空清单
	parentManifest := emptyManifest()
	var parentMeta map[string]string
	if !commit.Parent().IsZero() {
		parentCommit, err := m.loadCommit(ctx, repo, commit.Parent())
		if err != nil {
			return nil, err
		}
		md.Parent = parentCommit.Version
		parentMeta = parentCommit.Meta
		parentManifest, err = m.loadManifest(ctx, repo, types.Hash(parentCommit.ManifestCid.Hash))
		if err != nil {
			return nil, err
		}
	}

	diff := ComputeDiff(parentManifest, manifest, parentMeta, commit.Meta)
	for _, e := range diff.Added {
		md.Delta.Added = append(md.Delta.Added, e.Name)
	}
	for _, c := range diff.Modified {
		md.Delta.Modified = append(md.Delta.Modified, c.Name)
	}
	for _, e := range diff.Removed {
		md.Delta.Removed = append(md.Delta.Removed, e.Name)
	}
	return md, nil
}

// GetFileList 枚举某个版本冻结的文件清单
func (m *Manager) GetFileList(ctx context.Context, owner, dataset, version string) ([]core.ManifestEntry, error) {
	repo := RepoIDFor(owner, dataset)
	commit, err := m.resolveVersion(ctx, repo, version)
	if err != nil {
		return nil, err
	}
	manifest, err := m.loadManifest(ctx, repo, types.Hash(commit.ManifestCid.Hash))
	if err != nil {
		return nil, err
	}
	return manifest.Entries, nil
}

// ValidateChecksum 校验某版本中一个文件的存档 checksum 是否等于期望值
// 不匹配返回 false 而不是报错 —— 报错只留给 I/O 故障
func (m *Manager) ValidateChecksum(ctx context.Context, owner, dataset, version, filename string, expected types.Checksum) (bool, error) {
	entries, err := m.GetFileList(ctx, owner, dataset, version)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == filename {
			return types.Checksum(e.Checksum) == expected, nil
		}
	}
	return false, fmt.Errorf("file %q not in version %s", filename, version)
}

// GetDiff 计算任意两个版本之间的文件级差异
func (m *Manager) GetDiff(ctx context.Context, owner, dataset, v1, v2 string) (*Diff, error) {
	repo := RepoIDFor(owner, dataset)

	from, err := m.resolveVersion(ctx, repo, v1)
	if err != nil {
		return nil, err
	}
	to, err := m.resolveVersion(ctx, repo, v2)
	if err != nil {
		return nil, err
	}

	fromManifest, err := m.loadManifest(ctx, repo, types.Hash(from.ManifestCid.Hash))
	if err != nil {
		return nil, err
	}
	toManifest, err := m.loadManifest(ctx, repo, types.Hash(to.ManifestCid.Hash))
	if err != nil {
		return nil, err
	}

	diff := ComputeDiff(fromManifest, toManifest, from.Meta, to.Meta)
	diff.From = v1
	diff.To = v2
	return diff, nil
}

// ListVersions 从 head 沿父链回溯完整历史 (新的在前)
func (m *Manager) ListVersions(ctx context.Context, owner, dataset string) ([]VersionSummary, error) {
	repo := RepoIDFor(owner, dataset)

	head, err := m.backend.Head(ctx, repo)
	if errors.Is(err, ErrNoHead) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []VersionSummary
	cursor := head.Commit
	for !cursor.IsZero() {
		commit, err := m.loadCommit(ctx, repo, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, VersionSummary{
			Version:   commit.Version,
			CommitID:  commit.ID(),
			Message:   commit.Message,
			CreatedAt: time.Unix(commit.Timestamp, 0),
		})
		cursor = commit.Parent()
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 3. Fork 与清理
// -----------------------------------------------------------------------------

// ForkRepository 以源仓库的某个版本为种子，创建一个完全独立的新仓库
// 新仓库从 v1.0.0 重新开始计数，与源历史不再有任何联动
func (m *Manager) ForkRepository(ctx context.Context, srcOwner, srcDataset, version, dstOwner, dstDataset string) (types.Hash, error) {
	srcRepo := RepoIDFor(srcOwner, srcDataset)

	commitHash, err := m.backend.GetTag(ctx, srcRepo, tagName(version))
	if errors.Is(err, ErrTagNotFound) {
		return "", fmt.Errorf("%w: %s/%s@%s", ErrForkSourceNotFound, srcOwner, srcDataset, version)
	}
	if err != nil {
		return "", err
	}

	srcCommit, err := m.loadCommit(ctx, srcRepo, commitHash)
	if err != nil {
		return "", err
	}
	srcManifest, err := m.loadManifest(ctx, srcRepo, types.Hash(srcCommit.ManifestCid.Hash))
	if err != nil {
		return "", err
	}

	// 追踪规则随 fork 一起复制
	rules, err := m.backend.TrackingRules(ctx, srcRepo)
	if err != nil {
		rules = DefaultTrackingRules
	}

	dstRepo := RepoIDFor(dstOwner, dstDataset)
	if err := m.backend.Init(ctx, dstRepo, rules); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepositoryInit, err)
	}

	hash, err := m.sealVersion(ctx, dstRepo, sealInput{
		version: RootVersion,
		parent:  "",
		author:  dstOwner,
		message: fmt.Sprintf("forked from %s/%s at %s", srcOwner, srcDataset, version),
		meta:    srcCommit.Meta,
		entries: srcManifest.Entries,
		oldGen:  0,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepositoryInit, err)
	}
	return hash, nil
}

// RemoveRepository 整库删除 (数据集删除的级联动作)
func (m *Manager) RemoveRepository(ctx context.Context, owner, dataset string) error {
	return m.backend.Remove(ctx, RepoIDFor(owner, dataset))
}

// TrackerFor 返回该仓库的大文件追踪匹配器
func (m *Manager) TrackerFor(ctx context.Context, owner, dataset string) (*Tracker, error) {
	rules, err := m.backend.TrackingRules(ctx, RepoIDFor(owner, dataset))
	if err != nil {
		return nil, err
	}
	return NewTracker(rules), nil
}

// -----------------------------------------------------------------------------
// 内部辅助
// -----------------------------------------------------------------------------

func tagName(version string) string { return "v" + version }

// resolveVersion 标签 -> 提交对象
func (m *Manager) resolveVersion(ctx context.Context, repo types.RepoID, version string) (*core.Commit, error) {
	hash, err := m.backend.GetTag(ctx, repo, tagName(version))
	if errors.Is(err, ErrTagNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, err
	}
	return m.loadCommit(ctx, repo, hash)
}

func (m *Manager) loadCommit(ctx context.Context, repo types.RepoID, hash types.Hash) (*core.Commit, error) {
	data, err := m.readObject(ctx, repo, hash)
	if err != nil {
		return nil, err
	}
	var c core.Commit
	if err := core.DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit %s: %w", hash, err)
	}
	if c.TypeVal != core.TypeCommit {
		return nil, fmt.Errorf("object %s is not a commit, got: %s", hash, c.TypeVal)
	}
	// 解码出来的对象没有 hash 缓存，重新密封一次
	resealed, err := core.NewCommit(types.Hash(c.ManifestCid.Hash), c.Parent(), c.Version, c.Author, c.Message, c.Meta, c.Timestamp)
	if err != nil {
		return nil, err
	}
	return resealed, nil
}

func (m *Manager) loadManifest(ctx context.Context, repo types.RepoID, hash types.Hash) (*core.Manifest, error) {
	data, err := m.readObject(ctx, repo, hash)
	if err != nil {
		return nil, err
	}
	var raw core.Manifest
	if err := core.DecodeObject(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", hash, err)
	}
	if raw.TypeVal != core.TypeManifest {
		return nil, fmt.Errorf("object %s is not a manifest, got: %s", hash, raw.TypeVal)
	}
	return core.NewManifest(raw.Entries)
}

func (m *Manager) readObject(ctx context.Context, repo types.RepoID, hash types.Hash) ([]byte, error) {
	reader, err := m.backend.Get(ctx, repo, hash)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func emptyManifest() *core.Manifest {
	m, _ := core.NewManifest(nil)
	return m
}
