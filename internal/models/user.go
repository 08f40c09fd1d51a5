package models

// User is the server-issued identity of an admin account. Clients replace it
// wholesale on login and never mutate it.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// DisplayName returns Name, falling back to Username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
