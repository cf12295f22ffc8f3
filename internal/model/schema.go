package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion 当前文档结构版本，写入每个文档的 _v 字段
const SchemaVersion = 1

const (
	FieldVersion = "_v"

	UsersCollection = "users"
	PostsCollection = "posts"
)

var (
	ErrMalformed     = errors.New("malformed document")
	ErrSchemaVersion = errors.New("unsupported schema version")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CommentsCollection 评论是帖子的子集合
func CommentsCollection(postID string) string {
	return PostsCollection + "/" + postID + "/comments"
}

// NotificationsCollection 通知按接收者分区
func NotificationsCollection(userID string) string {
	return UsersCollection + "/" + userID + "/notifications"
}

// 旧文档没有 _v 视为版本1；更高版本拒绝解码
func checkVersion(data map[string]any) error {
	v, ok := data[FieldVersion]
	if !ok {
		return nil
	}
	n, ok := asInt64(v)
	if !ok || n > SchemaVersion {
		return fmt.Errorf("%w: %v", ErrSchemaVersion, v)
	}
	return nil
}

func checkStruct(kind, id string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformed, kind, id, err)
	}
	return nil
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func boolean(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func strList(data map[string]any, key string) []string {
	switch t := data[key].(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// millis 时间字段以毫秒存储；类型不对时返回零值，由校验拦下
func millis(data map[string]any, key string) time.Time {
	n, ok := asInt64(data[key])
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
