package models

// Actor is the authenticated user on whose behalf an operation runs.
type Actor struct {
	Username    string
	IsStaff     bool
	IsSuperuser bool
}

// Privileged reports whether the actor may use administrative operations
// such as manual numbering, counter adjustment and archiving.
func (a Actor) Privileged() bool {
	return a.IsStaff || a.IsSuperuser
}
