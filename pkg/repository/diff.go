package repository

import (
	"datavault/pkg/core"
)

// FileChange 描述一个被修改文件的前后状态
type FileChange struct {
	Name        string
	OldSize     int64
	NewSize     int64
	OldChecksum string
	NewChecksum string
}

// SizeDelta 修改带来的字节增量
func (c FileChange) SizeDelta() int64 { return c.NewSize - c.OldSize }

// MetaChange 描述版本元数据某个 key 的前后值 (空串表示缺失)
type MetaChange struct {
	Old string
	New string
}

// DiffStats 聚合统计
type DiffStats struct {
	AddedCount     int
	ModifiedCount  int
	RemovedCount   int
	UnchangedCount int

	// NetSizeImpact = Σ(added) − Σ(removed) + Σ(modified.new − modified.old)
	NetSizeImpact int64
}

// Diff 是两个版本之间的计算结果 (只计算，不存储)
// 所有列表按文件名排序，保证输出可复现
type Diff struct {
	From string // 版本标签
	To   string

	Added     []core.ManifestEntry // 只在 to 中出现
	Removed   []core.ManifestEntry // 只在 from 中出现
	Modified  []FileChange         // 两边都有，但 checksum 不同
	Unchanged []string             // 两边都有且 checksum 相同

	MetaChanges map[string]MetaChange

	Stats DiffStats
}

// ComputeDiff 对两个清单做文件级比对
//
// 算法：取两边文件名的并集，逐名判断归类。
// 相等性的唯一依据是 checksum —— 大小和文件名都不可信。
// 清单本身已按文件名排序，这里做一次归并扫描，天然保证输出有序。
func ComputeDiff(from, to *core.Manifest, fromMeta, toMeta map[string]string) *Diff {
	d := &Diff{
		MetaChanges: diffMeta(fromMeta, toMeta),
	}

	a, b := from.Entries, to.Entries
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Name < b[j].Name):
			// 只在 from 中 -> removed
			d.Removed = append(d.Removed, a[i])
			d.Stats.NetSizeImpact -= a[i].Size
			i++
		case i >= len(a) || a[i].Name > b[j].Name:
			// 只在 to 中 -> added
			d.Added = append(d.Added, b[j])
			d.Stats.NetSizeImpact += b[j].Size
			j++
		default:
			// 两边都有
			if a[i].Checksum == b[j].Checksum {
				d.Unchanged = append(d.Unchanged, a[i].Name)
			} else {
				d.Modified = append(d.Modified, FileChange{
					Name:        a[i].Name,
					OldSize:     a[i].Size,
					NewSize:     b[j].Size,
					OldChecksum: a[i].Checksum,
					NewChecksum: b[j].Checksum,
				})
				d.Stats.NetSizeImpact += b[j].Size - a[i].Size
			}
			i++
			j++
		}
	}

	d.Stats.AddedCount = len(d.Added)
	d.Stats.ModifiedCount = len(d.Modified)
	d.Stats.RemovedCount = len(d.Removed)
	d.Stats.UnchangedCount = len(d.Unchanged)
	return d
}

// diffMeta 对版本元数据做 key 级的不等比对
func diffMeta(from, to map[string]string) map[string]MetaChange {
	changes := make(map[string]MetaChange)

	for k, oldVal := range from {
		newVal, ok := to[k]
		if !ok {
			changes[k] = MetaChange{Old: oldVal}
			continue
		}
		if newVal != oldVal {
			changes[k] = MetaChange{Old: oldVal, New: newVal}
		}
	}
	for k, newVal := range to {
		if _, ok := from[k]; !ok {
			changes[k] = MetaChange{New: newVal}
		}
	}
	return changes
}
