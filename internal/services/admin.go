package services

// Admin is the operator account. It is not stored in the user directory,
// is always active, and skips every payment gate and eligibility check.
type Admin struct {
	Username string
	Password string
	Email    string
}

// Is reports whether username is the admin identity
func (a Admin) Is(username string) bool {
	return username != "" && username == a.Username
}

// Matches reports whether the pair is the admin credential
func (a Admin) Matches(username, password string) bool {
	return a.Is(username) && a.Password != "" && password == a.Password
}

// require returns ErrAdminRequired unless username is the admin identity
func (a Admin) require(username string) error {
	if !a.Is(username) {
		return ErrAdminRequired
	}
	return nil
}
