package blob

import (
	"fmt"
	"strings"

	"datavault/pkg/types"

	"github.com/google/uuid"
)

// BuildKey 生成存储 Key:
//
//	{visibility}/{owner}/{dataset}/{bucket}/{disambiguator}/{filename}
//
// disambiguator 是 uuid 压缩出来的 12 位十六进制随机段
// 同名文件反复上传也不会互相覆盖
func BuildKey(owner, dataset, filename string, isPrivate bool) types.StorageKey {
	visibility := types.VisibilityPublic
	if isPrivate {
		visibility = types.VisibilityPrivate
	}

	c := Classify(filename)
	return types.StorageKey(fmt.Sprintf("%s/%s/%s/%s/%s/%s",
		visibility, owner, dataset, c.Bucket, newDisambiguator(), filename))
}

func newDisambiguator() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
