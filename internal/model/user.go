package model

import (
	"time"

	"Lee_Social/internal/repository/docstore"
)

const (
	FieldFollowers = "followers"
	FieldFollowing = "following"
	FieldLastLogin = "lastLogin"
)

// User 用户文档，注册由外部身份系统完成，这里只读写资料与关系
type User struct {
	ID                string    `json:"id" validate:"required"`
	Username          string    `json:"username"`
	Bio               string    `json:"bio"`
	ProfilePictureURL string    `json:"profilePictureURL"`
	Role              string    `json:"role"`
	Followers         []string  `json:"followers"`
	Following         []string  `json:"following"`
	LastLogin         time.Time `json:"lastLogin"`
}

func UserFromDoc(d docstore.Document) (*User, error) {
	if err := checkVersion(d.Data); err != nil {
		return nil, err
	}
	u := &User{
		ID:                d.ID,
		Username:          str(d.Data, "username"),
		Bio:               str(d.Data, "bio"),
		ProfilePictureURL: str(d.Data, "profilePictureURL"),
		Role:              str(d.Data, "role"),
		Followers:         strList(d.Data, FieldFollowers),
		Following:         strList(d.Data, FieldFollowing),
		LastLogin:         millis(d.Data, FieldLastLogin),
	}
	if err := checkStruct("user", d.ID, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) ToDoc() map[string]any {
	data := map[string]any{
		FieldVersion:        SchemaVersion,
		"username":          u.Username,
		"bio":               u.Bio,
		"profilePictureURL": u.ProfilePictureURL,
		"role":              u.Role,
		FieldFollowers:      nonNil(u.Followers),
		FieldFollowing:      nonNil(u.Following),
	}
	if !u.LastLogin.IsZero() {
		data[FieldLastLogin] = u.LastLogin
	}
	return data
}

// Clone 缓存里存的是副本，避免调用方改到共享切片
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Followers = append([]string(nil), u.Followers...)
	c.Following = append([]string(nil), u.Following...)
	return &c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
