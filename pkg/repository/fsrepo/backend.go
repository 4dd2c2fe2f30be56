// Package fsrepo 是 repository.Backend 的文件系统实现
//
// 目录布局 (每个仓库一个目录):
//
//	<root>/<repoID>/
//	    data/ metadata/ scripts/ docs/   标准骨架
//	    tracking-rules                   大文件追踪规则 (gitignore 语法)
//	    objects/aa/bbcc...               内容寻址对象 (前 2 字符分片)
//	    tags/<name>                      标签文件，O_EXCL 创建，永不移动
//	    HEAD                             "commitHash generation"
package fsrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"datavault/pkg/core"
	"datavault/pkg/repository"
	"datavault/pkg/types"
)

// 骨架目录：数据 / 元数据 / 脚本 / 文档
var skeletonDirs = []string{"data", "metadata", "scripts", "docs"}

// Backend 实现了 repository.Backend 接口
type Backend struct {
	rootPath string

	// headMu 保护 HEAD 文件的读-比较-写序列
	// 粗粒度全局锁够用：HEAD 更新本身极快，真正的并发守卫是 generation CAS
	headMu sync.Mutex
}

// NewBackend 创建文件系统后端，确保根目录存在
func NewBackend(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create repository root: %w", err)
	}
	return &Backend{rootPath: root}, nil
}

func (b *Backend) repoDir(repo types.RepoID) string {
	return filepath.Join(b.rootPath, string(repo))
}

// checkRepoID 拒绝会让 repoDir 逃出 root 的仓库标识
// 标识由上层用 "--" 拼接，出现路径分隔符或相对段说明输入被污染；
// 创建和删除整棵目录树的操作必须先过这道闸
func checkRepoID(repo types.RepoID) error {
	id := string(repo)
	if id == "" || strings.ContainsAny(id, `/\`) || !filepath.IsLocal(id) {
		return fmt.Errorf("invalid repository id %q", id)
	}
	return nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
func (b *Backend) layout(repo types.RepoID, hash types.Hash) string {
	h := hash.String()
	if len(h) < 2 {
		return filepath.Join(b.repoDir(repo), "objects", h)
	}
	return filepath.Join(b.repoDir(repo), "objects", h[:2], h[2:])
}

// -----------------------------------------------------------------------------
// 1. 仓库生命周期
// -----------------------------------------------------------------------------

func (b *Backend) Init(ctx context.Context, repo types.RepoID, trackingRules []string) error {
	if err := checkRepoID(repo); err != nil {
		return err
	}
	dir := b.repoDir(repo)

	for _, sub := range append([]string{"objects", "tags"}, skeletonDirs...) {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create repository skeleton: %w", err)
		}
	}

	rules := strings.Join(trackingRules, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "tracking-rules"), []byte(rules), 0644); err != nil {
		return fmt.Errorf("failed to write tracking rules: %w", err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, repo types.RepoID) (bool, error) {
	_, err := os.Stat(b.repoDir(repo))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) Remove(ctx context.Context, repo types.RepoID) error {
	if err := checkRepoID(repo); err != nil {
		return err
	}
	return os.RemoveAll(b.repoDir(repo))
}

// -----------------------------------------------------------------------------
// 2. 对象存取
// -----------------------------------------------------------------------------

func (b *Backend) Put(ctx context.Context, repo types.RepoID, obj core.Object) error {
	targetPath := b.layout(repo, obj.ID())

	// 1. 幂等性检查：内容寻址对象已存在就跳过
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入：先写临时文件，然后 Rename
	// 保证要么文件不存在，要么文件是完整的
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(obj.Bytes()); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	return os.Rename(tempFile.Name(), targetPath)
}

func (b *Backend) Get(ctx context.Context, repo types.RepoID, hash types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(b.layout(repo, hash))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", repository.ErrObjNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// 3. HEAD (带 generation 的 CAS)
// -----------------------------------------------------------------------------

func (b *Backend) headPath(repo types.RepoID) string {
	return filepath.Join(b.repoDir(repo), "HEAD")
}

func (b *Backend) Head(ctx context.Context, repo types.RepoID) (repository.Head, error) {
	b.headMu.Lock()
	defer b.headMu.Unlock()
	return b.readHead(repo)
}

func (b *Backend) readHead(repo types.RepoID) (repository.Head, error) {
	data, err := os.ReadFile(b.headPath(repo))
	if os.IsNotExist(err) {
		return repository.Head{}, repository.ErrNoHead
	}
	if err != nil {
		return repository.Head{}, fmt.Errorf("failed to read HEAD: %w", err)
	}

	// 格式: "<hash> <generation>"
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return repository.Head{}, fmt.Errorf("corrupted HEAD file: %q", string(data))
	}
	gen, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return repository.Head{}, fmt.Errorf("corrupted HEAD generation: %w", err)
	}
	return repository.Head{Commit: types.Hash(fields[0]), Generation: gen}, nil
}

func (b *Backend) UpdateHead(ctx context.Context, repo types.RepoID, newCommit types.Hash, oldGeneration int64) error {
	b.headMu.Lock()
	defer b.headMu.Unlock()

	current, err := b.readHead(repo)
	switch {
	case err == nil:
		// 已有 HEAD：generation 必须严格匹配
		if current.Generation != oldGeneration {
			return repository.ErrHeadUpdated
		}
	case oldGeneration == 0 && err == repository.ErrNoHead:
		// 首次创建
	default:
		if err == repository.ErrNoHead {
			return repository.ErrHeadUpdated
		}
		return err
	}

	content := fmt.Sprintf("%s %d\n", newCommit, oldGeneration+1)
	return os.WriteFile(b.headPath(repo), []byte(content), 0644)
}

// -----------------------------------------------------------------------------
// 4. 标签
// -----------------------------------------------------------------------------

func (b *Backend) tagPath(repo types.RepoID, name string) string {
	return filepath.Join(b.repoDir(repo), "tags", name)
}

func (b *Backend) SetTag(ctx context.Context, repo types.RepoID, name string, commit types.Hash) error {
	// O_EXCL: 文件已存在就失败 —— "标签永不移动"由文件系统强制
	f, err := os.OpenFile(b.tagPath(repo, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return fmt.Errorf("%w: %s", repository.ErrTagExists, name)
	}
	if err != nil {
		return fmt.Errorf("failed to create tag %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(commit.String() + "\n"); err != nil {
		return err
	}
	return nil
}

func (b *Backend) GetTag(ctx context.Context, repo types.RepoID, name string) (types.Hash, error) {
	data, err := os.ReadFile(b.tagPath(repo, name))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", repository.ErrTagNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return types.Hash(strings.TrimSpace(string(data))), nil
}

func (b *Backend) ListTags(ctx context.Context, repo types.RepoID) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.repoDir(repo), "tags"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", repository.ErrRepositoryNotFound, repo)
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// -----------------------------------------------------------------------------
// 5. 追踪规则
// -----------------------------------------------------------------------------

func (b *Backend) TrackingRules(ctx context.Context, repo types.RepoID) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(b.repoDir(repo), "tracking-rules"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", repository.ErrRepositoryNotFound, repo)
	}
	if err != nil {
		return nil, err
	}

	var rules []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			rules = append(rules, line)
		}
	}
	return rules, nil
}
