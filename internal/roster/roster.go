// Package roster reads and mutates the student roster. The register builder
// consumes the active roster per stream/semester; the promotion engine moves
// whole streams between semesters.
package roster

// Student is one roster entry. StudentID is the stable business key that
// session present-lists reference; ID is storage identity.
type Student struct {
	ID         string `json:"id"`
	StudentID  string `json:"studentID"`
	Name       string `json:"name"`
	Stream     string `json:"stream"`
	Semester   int    `json:"semester"`
	RollNumber int    `json:"rollNumber"`
	IsActive   bool   `json:"isActive"`
}
