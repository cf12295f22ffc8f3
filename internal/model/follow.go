package model

// GraphRepair 对账修复记录
type GraphRepair struct {
	UserID  string   `json:"userId"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func (r GraphRepair) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

func Contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

// WithMember 幂等加入
func WithMember(set []string, id string) []string {
	if Contains(set, id) {
		return append([]string(nil), set...)
	}
	return append(append([]string(nil), set...), id)
}

// WithoutMember 幂等移除（含重复项）
func WithoutMember(set []string, id string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

// Members 从原始文档读取一个ID集合字段
func Members(data map[string]any, field string) []string {
	return strList(data, field)
}
