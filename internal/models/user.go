package models

import "time"

// Role роль пользователя. Часть значений выставляется автоматически
// при проверке доступа по состоянию подписки.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleTrial      Role = "trial"
	RoleSubscriber Role = "subscriber"
	RoleExpired    Role = "expired"
	RoleBanned     Role = "banned"
	RoleAdmin      Role = "admin"
)

// ParseRole returns false for values outside the closed set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleGuest, RoleTrial, RoleSubscriber, RoleExpired, RoleBanned, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Sticky roles are never overwritten by subscription-driven transitions.
func (r Role) Sticky() bool {
	return r == RoleAdmin || r == RoleBanned
}

type User struct {
	ID        int64     `json:"id"`
	TgID      int64     `json:"tg_id"`
	Username  string    `json:"username,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	TZ        string    `json:"tz,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) IsBanned() bool {
	return u != nil && u.Role == RoleBanned
}

// Identity указывает пользователя либо по внутреннему id, либо по tg id.
type Identity struct {
	UserID int64
	TgID   int64
}

func ByUserID(id int64) Identity { return Identity{UserID: id} }

func ByTgID(id int64) Identity { return Identity{TgID: id} }

func (i Identity) Empty() bool {
	return i.UserID == 0 && i.TgID == 0
}
