package mysql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Lee_Social/internal/pkg"
	"Lee_Social/internal/repository/docstore"
)

// documentRow 所有集合共用一张表，文档内容存 JSON 列
type documentRow struct {
	Collection string    `gorm:"primaryKey;size:191"`
	ID         string    `gorm:"primaryKey;type:varchar(64) COLLATE utf8mb4_bin"`
	Data       []byte    `gorm:"type:json;not null"`
	UpdatedAt  time.Time `gorm:"index"`
}

func (documentRow) TableName() string {
	return "documents"
}

// 字段名会拼进 JSON path，只允许标识符
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DocumentStore MySQL 上的 docstore.Store 实现。
// 条件、排序、游标和条数尽量下推到 SQL，排序字段须是 JSON 数值（需要 MySQL 8.0.17+），
// id 列用二进制排序规则，与内存中的字符串比较一致。
type DocumentStore struct {
	DB    *gorm.DB
	feed  docstore.ChangeFeed
	clock docstore.Clock
	newID func() string

	tsMu   sync.Mutex
	lastTS int64
}

func NewDocumentStore(db *gorm.DB, feed docstore.ChangeFeed) *DocumentStore {
	if feed == nil {
		feed = docstore.NewHub()
	}
	return &DocumentStore{
		DB:    db,
		feed:  feed,
		clock: time.Now,
		newID: pkg.NewSnowflakeID,
	}
}

func (r *DocumentStore) Feed() docstore.ChangeFeed {
	return r.feed
}

func (r *DocumentStore) stamp() int64 {
	r.tsMu.Lock()
	defer r.tsMu.Unlock()
	now := r.clock().UnixMilli()
	if now < r.lastTS {
		now = r.lastTS
	}
	r.lastTS = now
	return now
}

func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, docstore.ErrNotFound):
		return docstore.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.Join(docstore.ErrUnavailable, err)
}

func decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return docstore.NormalizeData(data, 0), nil
}

func (r *DocumentStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var row documentRow
	if err := r.DB.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error; err != nil {
		return nil, wrap(err)
	}
	data, err := decode(row.Data)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

func (r *DocumentStore) upsert(tx *gorm.DB, collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&documentRow{
		Collection: collection,
		ID:         id,
		Data:       raw,
	}).Error
}

func (r *DocumentStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := r.upsert(r.DB.WithContext(ctx), collection, id, docstore.NormalizeData(data, r.stamp())); err != nil {
		return wrap(err)
	}
	r.feed.Publish(ctx, collection)
	return nil
}

func (r *DocumentStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	norm := docstore.NormalizeData(partial, r.stamp())
	return r.Mutate(ctx, collection, id, func(data map[string]any) (map[string]any, error) {
		return docstore.Merge(data, norm), nil
	})
}

func (r *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := r.DB.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{}).Error; err != nil {
		return wrap(err)
	}
	r.feed.Publish(ctx, collection)
	return nil
}

func (r *DocumentStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := r.newID()
	if err := r.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Mutate select for update 锁住该行，整个读改写在一个事务里
func (r *DocumentStore) Mutate(ctx context.Context, collection, id string, fn docstore.MutateFunc) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&row).Error; err != nil {
			return err
		}
		data, err := decode(row.Data)
		if err != nil {
			return err
		}
		next, err := fn(data)
		if err != nil {
			return callbackError{err}
		}
		return r.upsert(tx, collection, id, docstore.NormalizeData(next, r.stamp()))
	})
	var cb callbackError
	if errors.As(err, &cb) {
		return cb.err
	}
	if err != nil {
		return wrap(err)
	}
	r.feed.Publish(ctx, collection)
	return nil
}

// callbackError 回调自身的错误原样返回，不包装成存储不可用
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

func (r *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	tx, err := buildQuery(r.DB.WithContext(ctx), q)
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		data, err := decode(row.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: row.ID, Data: data})
	}
	return docstore.Apply(q, docs), nil
}

var numericTypes = []string{"INTEGER", "UNSIGNED INTEGER", "DOUBLE", "DECIMAL"}

var sqlOps = map[docstore.Op]string{
	docstore.OpEq:  "=",
	docstore.OpLt:  "<",
	docstore.OpLte: "<=",
	docstore.OpGt:  ">",
	docstore.OpGte: ">=",
}

// 超过 2^53 的整数转 DOUBLE 会丢精度
const maxExactInt = 1 << 53

// sortKey ORDER BY 中的一列，path 非空表示 JSON 数值字段
type sortKey struct {
	expr string
	path string
	desc bool
}

// buildQuery 条件、排序、游标下推到 SQL。
// 只有全部条件都能精确表达时才加 LIMIT，否则内存过滤后会少条导致翻页提前结束。
// 结果仍经过 docstore.Apply 做最终校验。
func buildQuery(tx *gorm.DB, q docstore.Query) (*gorm.DB, error) {
	tx = tx.Model(&documentRow{}).Where("collection = ?", q.Collection)
	exact := true
	for _, f := range q.Filters {
		var (
			ok  bool
			err error
		)
		if tx, ok, err = pushDown(tx, f); err != nil {
			return nil, err
		}
		exact = exact && ok
	}

	keys, err := sortKeys(q.Orders)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.path != "" {
			tx = tx.Where("JSON_TYPE(JSON_EXTRACT(data, ?)) IN ?", k.path, numericTypes)
		}
		if k.desc {
			cols = append(cols, k.expr+" DESC")
		} else {
			cols = append(cols, k.expr+" ASC")
		}
	}
	tx = tx.Order(strings.Join(cols, ", "))

	if q.After != nil {
		where, args, ok := cursorPredicate(keys, q.After)
		if !ok {
			return tx, nil
		}
		tx = tx.Where(where, args...)
	}
	if exact && q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

// sortKeys 排序字段之后隐式追加 id，方向跟随最后一个排序字段
func sortKeys(orders []docstore.Order) ([]sortKey, error) {
	keys := make([]sortKey, 0, len(orders)+1)
	for _, o := range orders {
		desc := o.Dir == docstore.Desc
		if o.Field == docstore.DocumentID {
			keys = append(keys, sortKey{expr: "id", desc: desc})
			continue
		}
		if !fieldName.MatchString(o.Field) {
			return nil, badField(o.Field)
		}
		keys = append(keys, sortKey{
			expr: fmt.Sprintf("CAST(JSON_EXTRACT(data, '$.%s') AS DOUBLE)", o.Field),
			path: "$." + o.Field,
			desc: desc,
		})
	}
	last := len(orders) > 0 && orders[len(orders)-1].Dir == docstore.Desc
	return append(keys, sortKey{expr: "id", desc: last}), nil
}

// cursorPredicate 按键展开成 (k1 < v1) OR (k1 = v1 AND k2 < v2) ...，
// 游标值类型对不上时返回 false，交给 Apply 处理
func cursorPredicate(keys []sortKey, c *docstore.Cursor) (string, []any, bool) {
	vals := make([]any, len(keys))
	for i, k := range keys {
		raw := any(c.ID)
		if i < len(keys)-1 {
			raw = c.Values[i]
		}
		v, ok := cursorValue(k, raw)
		if !ok {
			return "", nil, false
		}
		vals[i] = v
	}

	ors := make([]string, 0, len(keys))
	var args []any
	for i, k := range keys {
		parts := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			parts = append(parts, keys[j].expr+" = ?")
			args = append(args, vals[j])
		}
		if k.desc {
			parts = append(parts, k.expr+" < ?")
		} else {
			parts = append(parts, k.expr+" > ?")
		}
		args = append(args, vals[i])
		ors = append(ors, "("+strings.Join(parts, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")", args, true
}

func cursorValue(k sortKey, v any) (any, bool) {
	if k.path == "" {
		s, ok := v.(string)
		return s, ok
	}
	return sqlNumber(v)
}

func sqlNumber(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), n > -maxExactInt && n < maxExactInt
	case int64:
		return n, n > -maxExactInt && n < maxExactInt
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	}
	return nil, false
}

func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func badField(name string) error {
	return errors.Join(docstore.ErrInvalidQuery, fmt.Errorf("bad field name %q", name))
}

// pushDown 下推一个条件，第二个返回值表示 SQL 与内存语义完全一致。
// 表达不了的条件不下推，只靠 Apply 过滤。
func pushDown(tx *gorm.DB, f docstore.Filter) (*gorm.DB, bool, error) {
	if f.Field == docstore.DocumentID {
		switch f.Op {
		case docstore.OpEq:
			if s, ok := f.Value.(string); ok {
				return tx.Where("id = ?", s), true, nil
			}
		case docstore.OpIn:
			if ids, ok := stringList(f.Value); ok {
				if len(ids) == 0 {
					return tx.Where("1 = 0"), true, nil
				}
				return tx.Where("id IN ?", ids), true, nil
			}
		}
		return tx, false, nil
	}
	if !fieldName.MatchString(f.Field) {
		return nil, false, badField(f.Field)
	}
	path := "$." + f.Field
	if n, ok := sqlNumber(f.Value); ok {
		if op, ok := sqlOps[f.Op]; ok {
			return tx.Where("JSON_TYPE(JSON_EXTRACT(data, ?)) IN ? AND CAST(JSON_EXTRACT(data, ?) AS DOUBLE) "+op+" ?",
				path, numericTypes, path, n), true, nil
		}
	}
	switch f.Op {
	case docstore.OpEq:
		if s, ok := f.Value.(string); ok {
			return tx.Where("JSON_TYPE(JSON_EXTRACT(data, ?)) = 'STRING' AND JSON_UNQUOTE(JSON_EXTRACT(data, ?)) COLLATE utf8mb4_bin = ?",
				path, path, s), true, nil
		}
	case docstore.OpIn:
		if ss, ok := stringList(f.Value); ok {
			if len(ss) == 0 {
				return tx.Where("1 = 0"), true, nil
			}
			return tx.Where("JSON_TYPE(JSON_EXTRACT(data, ?)) = 'STRING' AND JSON_UNQUOTE(JSON_EXTRACT(data, ?)) COLLATE utf8mb4_bin IN ?",
				path, path, ss), true, nil
		}
	case docstore.OpArrayContains:
		if s, ok := f.Value.(string); ok {
			return tx.Where("JSON_TYPE(JSON_EXTRACT(data, ?)) = 'ARRAY' AND ? MEMBER OF (JSON_EXTRACT(data, ?))",
				path, s, path), true, nil
		}
	}
	return tx, false, nil
}

func (r *DocumentStore) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	return docstore.Watch(ctx, r, r.feed, q), nil
}
