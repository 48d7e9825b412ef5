package core

import "time"

// ManagerUserView is the outward-facing shape of a user record. Credentials
// never leave the service through events or manager reads.
type ManagerUserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions,omitempty"`
	Liveness    Liveness   `json:"liveness"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RetiredAt   *time.Time `json:"retired_at"`
}

// NewManagerUserView strips credentials from a user record.
func NewManagerUserView(u User) ManagerUserView {
	return ManagerUserView{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Liveness:  u.Liveness,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		RetiredAt: u.RetiredAt,
	}
}

// ManagerTrunkView is the outward-facing shape of a trunk record.
type ManagerTrunkView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Hostname  string     `json:"hostname"`
	Detail    *string    `json:"detail"`
	Liveness  Liveness   `json:"liveness"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	RetiredAt *time.Time `json:"retired_at"`
}

// NewManagerTrunkView strips credentials from a trunk record.
func NewManagerTrunkView(t Trunk) ManagerTrunkView {
	return ManagerTrunkView{
		ID:        t.ID,
		Name:      t.Name,
		Username:  t.Username,
		Hostname:  t.Hostname,
		Detail:    t.Detail,
		Liveness:  t.Liveness,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		RetiredAt: t.RetiredAt,
	}
}
