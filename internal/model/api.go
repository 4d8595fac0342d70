package model

import "fmt"

// API is a library call stub registered for call sites that do not resolve
// to a user-defined function. Two call sites with the same callee name and
// argument count collapse to one API entity regardless of where they occur;
// the ID is synthetic and excluded from signature identity.
type API struct {
	ID        int
	Name      string
	ParaCount int
}

// Signature is the identity key of an API: name and parameter count only.
type Signature struct {
	Name      string
	ParaCount int
}

// Signature returns the deduplication key for the API.
func (a API) Signature() Signature {
	return Signature{Name: a.Name, ParaCount: a.ParaCount}
}

func (a API) String() string {
	return fmt.Sprintf("API(id=%d, name=%q, para_num=%d)", a.ID, a.Name, a.ParaCount)
}
