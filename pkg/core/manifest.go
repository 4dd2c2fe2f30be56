package core

import (
	"fmt"
	"sort"

	"datavault/pkg/types"
)

// ManifestEntry 描述一个版本中冻结的单个文件
type ManifestEntry struct {
	Name        string `cbor:"n"`  // 文件名 (数据集内唯一)
	Size        int64  `cbor:"s"`  // 字节大小
	ContentType string `cbor:"ct"` // MIME 类型
	StorageKey  string `cbor:"k"`  // 对象存储定位符
	Checksum    string `cbor:"c"`  // SHA256 (diff 与校验的唯一依据)
}

// Manifest 是一个版本的完整文件清单
// 条目按文件名排序后才参与哈希 —— 保证同一文件集合产生唯一的 Hash
type Manifest struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType      `cbor:"t"`
	Entries []ManifestEntry `cbor:"e"`
}

// NewManifest 创建并密封一个清单对象
// 输入顺序无关紧要，内部会做排序和重名检查
func NewManifest(entries []ManifestEntry) (*Manifest, error) {
	sorted := make([]ManifestEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	// 重名文件会让 diff 失去意义，在源头拒绝
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate file name in manifest: %s", sorted[i].Name)
		}
	}

	m := &Manifest{
		TypeVal: TypeManifest,
		Entries: sorted,
	}
	h, b, err := CalculateHash(m)
	if err != nil {
		return nil, err
	}
	m.hash = h
	m.rawBytes = b
	return m, nil
}

// Find 按文件名查找条目 (清单有序，二分即可)
func (m *Manifest) Find(name string) (ManifestEntry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Name >= name })
	if i < len(m.Entries) && m.Entries[i].Name == name {
		return m.Entries[i], true
	}
	return ManifestEntry{}, false
}

// TotalSize 所有文件的字节总和
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

func (m *Manifest) Type() ObjectType { return TypeManifest }
func (m *Manifest) ID() types.Hash   { return m.hash }
func (m *Manifest) Bytes() []byte    { return m.rawBytes }
