package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Apply 在内存中执行查询：过滤 -> 排序 -> 游标定界 -> 截断。
// 缺少排序字段的文档不参与结果。
func Apply(q Query, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if !Match(q.Filters, d) {
			continue
		}
		if !hasOrderFields(q.Orders, d) {
			if q.onMissing != nil {
				q.onMissing(d.ID)
			}
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareDocs(q.Orders, out[i], out[j]) < 0
	})
	if q.After != nil {
		start := sort.Search(len(out), func(i int) bool {
			return compareToCursor(q.Orders, out[i], q.After) > 0
		})
		out = out[start:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Match 判断文档是否满足全部过滤条件
func Match(filters []Filter, d Document) bool {
	for _, f := range filters {
		v, ok := fieldValue(d, f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if !Equal(v, f.Value) {
				return false
			}
		case OpLt, OpLte, OpGt, OpGte:
			if rank(v) != rank(f.Value) {
				return false
			}
			c := CompareValues(v, f.Value)
			if (f.Op == OpLt && c >= 0) || (f.Op == OpLte && c > 0) ||
				(f.Op == OpGt && c <= 0) || (f.Op == OpGte && c < 0) {
				return false
			}
		case OpIn:
			list, _ := asList(f.Value)
			if !containsValue(list, v) {
				return false
			}
		case OpArrayContains:
			list, ok := asList(v)
			if !ok || !containsValue(list, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func hasOrderFields(orders []Order, d Document) bool {
	for _, o := range orders {
		if _, ok := fieldValue(d, o.Field); !ok {
			return false
		}
	}
	return true
}

func compareDocs(orders []Order, a, b Document) int {
	for _, o := range orders {
		av, _ := fieldValue(a, o.Field)
		bv, _ := fieldValue(b, o.Field)
		c := CompareValues(av, bv)
		if o.Dir == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return compareIDs(orders, a.ID, b.ID)
}

func compareToCursor(orders []Order, d Document, c *Cursor) int {
	for i, o := range orders {
		v, _ := fieldValue(d, o.Field)
		r := CompareValues(v, c.Values[i])
		if o.Dir == Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return compareIDs(orders, d.ID, c.ID)
}

// 隐式的文档ID排序，方向跟随最后一个排序字段
func compareIDs(orders []Order, a, b string) int {
	c := strings.Compare(a, b)
	if len(orders) > 0 && orders[len(orders)-1].Dir == Desc {
		c = -c
	}
	return c
}

func fieldValue(d Document, field string) (any, bool) {
	if field == DocumentID {
		return d.ID, true
	}
	v, ok := d.Data[field]
	return v, ok
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

// 类型排序：null < bool < number < string < list < map
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case []any, []string:
		return 4
	case map[string]any:
		return 5
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 6
}

// Equal 同类型且比较结果相等
func Equal(a, b any) bool {
	return rank(a) == rank(b) && CompareValues(a, b) == 0
}

// CompareValues 跨后端一致的值比较（JSON 往返后数字都是 float64）
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		ai, aok := toInt(a)
		bi, bok := toInt(b)
		if aok && bok {
			return cmpOrdered(ai, bi)
		}
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return cmpOrdered(af, bf)
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		al, _ := asList(a)
		bl, _ := asList(b)
		for i := 0; i < len(al) && i < len(bl); i++ {
			if c := CompareValues(al[i], bl[i]); c != 0 {
				return c
			}
		}
		return cmpOrdered(len(al), len(bl))
	}
	return 0
}

func cmpOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Normalize 统一写入值的表示：时间与服务器时间戳转为毫秒，整数转 int64，切片转 []any
func Normalize(v any, now int64) any {
	switch t := v.(type) {
	case serverTimestamp:
		return now
	case time.Time:
		return t.UnixMilli()
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item, now)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Normalize(item, now)
		}
		return out
	}
	return v
}

// NormalizeData 规范化整份文档
func NormalizeData(data map[string]any, now int64) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = Normalize(v, now)
	}
	return out
}

// Clone 深拷贝已规范化的文档内容
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		return Clone(t)
	}
	return v
}

// Merge 顶层字段合并
func Merge(base, partial map[string]any) map[string]any {
	out := Clone(base)
	if out == nil {
		out = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		out[k] = cloneValue(v)
	}
	return out
}
