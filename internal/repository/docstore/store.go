// Package docstore 文档存储适配层：对外部文档数据库的最小能力抽象。
//
// 所有后端（内存、badger、mysql）都实现同一个 Store 接口，
// 上层服务只依赖接口，测试中直接替换为内存实现。
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrUnavailable      = errors.New("document store unavailable")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidQuery     = errors.New("invalid query")
)

// DocumentID 伪字段：按文档ID过滤或排序
const DocumentID = "__name__"

type serverTimestamp struct{}

// ServerTimestamp 写入时由存储端替换为服务器时间（毫秒）
var ServerTimestamp = serverTimestamp{}

// Document 一条文档：ID + 字段集合
type Document struct {
	ID   string
	Data map[string]any
}

type Op string

const (
	OpEq            Op = "=="
	OpLt            Op = "<"
	OpLte           Op = "<="
	OpGt            Op = ">"
	OpGte           Op = ">="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Order struct {
	Field string
	Dir   Direction
}

// Cursor 游标：上一页最后一条文档的排序值 + ID，严格按值定界
type Cursor struct {
	Values []any  `json:"v"`
	ID     string `json:"id"`
}

// Query 集合查询。排序最后隐式追加文档ID，方向与最后一个排序字段一致。
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
	After      *Cursor

	// 缺少排序字段、被排除的文档，逐个回调
	onMissing func(id string)
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Dir: dir})
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

func (q Query) StartAfter(c *Cursor) Query {
	q.After = c
	return q
}

// ReportMissingOrder 满足条件但缺少排序字段的文档不会出现在结果里，
// fn 用来记录这些文档。MySQL 后端在 SQL 中排除它们，不会回调。
func (q Query) ReportMissingOrder(fn func(id string)) Query {
	q.onMissing = fn
	return q
}

// MutateFunc 单文档原子读改写回调，返回完整的新文档内容
type MutateFunc func(data map[string]any) (map[string]any, error)

// Store 文档存储能力接口
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update 合并顶层字段，文档不存在返回 ErrNotFound
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Mutate 单文档原子读改写，文档不存在返回 ErrNotFound
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) error
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}

// Clock 服务器时间来源
type Clock func() time.Time

// CursorOf 根据查询的排序字段从文档生成游标
func CursorOf(q Query, d Document) *Cursor {
	vals := make([]any, 0, len(q.Orders))
	for _, o := range q.Orders {
		v, _ := fieldValue(d, o.Field)
		vals = append(vals, v)
	}
	return &Cursor{Values: vals, ID: d.ID}
}

// ValidateQuery 检查查询是否可执行
func ValidateQuery(q Query) error {
	if q.Collection == "" {
		return errors.Join(ErrInvalidQuery, errors.New("collection required"))
	}
	if q.Limit < 0 {
		return errors.Join(ErrInvalidQuery, errors.New("negative limit"))
	}
	if q.After != nil && len(q.After.Values) != len(q.Orders) {
		return errors.Join(ErrInvalidQuery, errors.New("cursor does not match order"))
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte, OpArrayContains:
		case OpIn:
			if _, ok := asList(f.Value); !ok {
				return errors.Join(ErrInvalidQuery, errors.New("in filter needs a list"))
			}
		default:
			return errors.Join(ErrInvalidQuery, errors.New("unknown operator "+string(f.Op)))
		}
	}
	return nil
}
