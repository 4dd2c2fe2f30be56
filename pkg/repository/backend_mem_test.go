package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"datavault/pkg/core"
	"datavault/pkg/types"
)

// memBackend 是 Backend 的内存实现，只服务于本包测试
// 行为对齐 fsrepo：CAS generation、一次性标签、幂等对象写入
type memBackend struct {
	mu    sync.Mutex
	repos map[types.RepoID]*memRepo

	// failPut 故障注入：true 时所有 Put 报错 (模拟磁盘满)
	failPut bool
}

type memRepo struct {
	objects map[types.Hash][]byte
	tags    map[string]types.Hash
	head    Head
	hasHead bool
	rules   []string
}

func newMemBackend() *memBackend {
	return &memBackend{repos: make(map[types.RepoID]*memRepo)}
}

func (b *memBackend) get(repo types.RepoID) (*memRepo, error) {
	r, ok := b.repos[repo]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, repo)
	}
	return r, nil
}

func (b *memBackend) Init(ctx context.Context, repo types.RepoID, trackingRules []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.repos[repo]; ok {
		return nil // 幂等
	}
	b.repos[repo] = &memRepo{
		objects: make(map[types.Hash][]byte),
		tags:    make(map[string]types.Hash),
		rules:   trackingRules,
	}
	return nil
}

func (b *memBackend) Exists(ctx context.Context, repo types.RepoID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.repos[repo]
	return ok, nil
}

func (b *memBackend) Remove(ctx context.Context, repo types.RepoID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.repos, repo)
	return nil
}

func (b *memBackend) Put(ctx context.Context, repo types.RepoID, obj core.Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut {
		return fmt.Errorf("injected put failure")
	}
	r, err := b.get(repo)
	if err != nil {
		return err
	}
	if _, ok := r.objects[obj.ID()]; ok {
		return nil
	}
	r.objects[obj.ID()] = obj.Bytes()
	return nil
}

func (b *memBackend) Get(ctx context.Context, repo types.RepoID, hash types.Hash) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return nil, err
	}
	data, ok := r.objects[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjNotFound, hash)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBackend) Head(ctx context.Context, repo types.RepoID) (Head, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return Head{}, err
	}
	if !r.hasHead {
		return Head{}, ErrNoHead
	}
	return r.head, nil
}

func (b *memBackend) UpdateHead(ctx context.Context, repo types.RepoID, newCommit types.Hash, oldGeneration int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return err
	}
	if r.hasHead && r.head.Generation != oldGeneration {
		return ErrHeadUpdated
	}
	if !r.hasHead && oldGeneration != 0 {
		return ErrHeadUpdated
	}
	r.head = Head{Commit: newCommit, Generation: oldGeneration + 1}
	r.hasHead = true
	return nil
}

func (b *memBackend) SetTag(ctx context.Context, repo types.RepoID, name string, commit types.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return err
	}
	if _, ok := r.tags[name]; ok {
		return fmt.Errorf("%w: %s", ErrTagExists, name)
	}
	r.tags[name] = commit
	return nil
}

func (b *memBackend) GetTag(ctx context.Context, repo types.RepoID, name string) (types.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return "", err
	}
	hash, ok := r.tags[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	return hash, nil
}

func (b *memBackend) ListTags(ctx context.Context, repo types.RepoID) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range r.tags {
		names = append(names, name)
	}
	return names, nil
}

func (b *memBackend) TrackingRules(ctx context.Context, repo types.RepoID) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.get(repo)
	if err != nil {
		return nil, err
	}
	return r.rules, nil
}
