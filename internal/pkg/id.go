package pkg

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID 全局唯一ID，snowflake 节点不可用时兜底
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID 文档ID生成，节点号来自 SNOWFLAKE_NODE（默认1）。
// 节点只初始化一次，同一毫秒内的序号才不会重复。
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}
