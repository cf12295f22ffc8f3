package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"Lee_Social/internal/repository/docstore"
)

// encodeCursor 游标对调用方不透明：上一页最后一条原始文档的排序值 + ID
func encodeCursor(q docstore.Query, last docstore.Document) string {
	raw, err := json.Marshal(docstore.CursorOf(q, last))
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(q docstore.Query, s string) (*docstore.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid("cursor", "malformed")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var c docstore.Cursor
	if err := dec.Decode(&c); err != nil {
		return nil, invalid("cursor", "malformed")
	}
	if c.ID == "" || len(c.Values) != len(q.Orders) {
		return nil, invalid("cursor", "does not match this listing")
	}
	for i, v := range c.Values {
		c.Values[i] = docstore.Normalize(v, 0)
	}
	return &c, nil
}

// nextCursor 整页才给下一页游标
func nextCursor(q docstore.Query, docs []docstore.Document) string {
	if q.Limit <= 0 || len(docs) < q.Limit {
		return ""
	}
	return encodeCursor(q, docs[len(docs)-1])
}
