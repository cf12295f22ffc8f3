package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lee_Social/internal/repository/docstore"
)

func TestPostFromDoc(t *testing.T) {
	d := docstore.Document{ID: "p1", Data: map[string]any{
		FieldVersion:   int64(1),
		FieldUserID:    "u1",
		"title":        "hello",
		"content":      "world",
		FieldCreatedAt: int64(1_700_000_000_000),
		FieldLikes:     []any{"a", "b"},
		"unknown":      "ignored",
	}}
	p, err := PostFromDoc(d)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), p.CreatedAt)
	assert.Equal(t, 2, p.LikeCount())
	assert.True(t, p.LikedBy("a"))
	assert.False(t, p.LikedBy("c"))
}

func TestPostFromDocRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want error
	}{
		{"missing createdAt", map[string]any{FieldUserID: "u1"}, ErrMalformed},
		{"createdAt wrong type", map[string]any{FieldUserID: "u1", FieldCreatedAt: "yesterday"}, ErrMalformed},
		{"missing owner", map[string]any{FieldCreatedAt: int64(1)}, ErrMalformed},
		{"future schema", map[string]any{FieldVersion: int64(2), FieldUserID: "u1", FieldCreatedAt: int64(1)}, ErrSchemaVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PostFromDoc(docstore.Document{ID: "p", Data: tt.data})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVersionlessDocumentIsVersionOne(t *testing.T) {
	u, err := UserFromDoc(docstore.Document{ID: "u1", Data: map[string]any{"username": "alice"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Empty(t, u.Followers)
}

func TestJSONNumberFields(t *testing.T) {
	n, err := NotificationFromDoc("u1", docstore.Document{ID: "n1", Data: map[string]any{
		"type":         "like",
		FieldTimestamp: json.Number("1700000000000"),
		FieldRead:      false,
	}})
	require.NoError(t, err)
	assert.Equal(t, "u1", n.RecipientUserID)
	assert.Equal(t, int64(1_700_000_000_000), n.Timestamp.UnixMilli())
}

func TestNotificationTypeValidated(t *testing.T) {
	_, err := NotificationFromDoc("u1", docstore.Document{ID: "n1", Data: map[string]any{
		"type":         "poke",
		FieldTimestamp: int64(1),
	}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUserToDocRoundTrip(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", Following: []string{"b"}}
	data := docstore.NormalizeData(u.ToDoc(), 0)
	back, err := UserFromDoc(docstore.Document{ID: "u1", Data: data})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, back.Following)
	assert.Equal(t, []string{}, back.Followers)
}

func TestMembership(t *testing.T) {
	set := []string{"a", "b"}
	assert.Equal(t, []string{"a", "b", "c"}, WithMember(set, "c"))
	assert.Equal(t, []string{"a", "b"}, WithMember(set, "a"))
	assert.Equal(t, []string{"b"}, WithoutMember([]string{"a", "b", "a"}, "a"))
	assert.Equal(t, []string{"a", "b"}, set)
}

func TestSubcollectionNames(t *testing.T) {
	assert.Equal(t, "posts/p1/comments", CommentsCollection("p1"))
	assert.Equal(t, "users/u1/notifications", NotificationsCollection("u1"))
}
