// Package topic defines the Topic entity, which belongs to a course.
package topic

// Topic groups core loops and exercises under a course.
type Topic struct {
	ID       string
	CourseID string
	Name     string
	Language string
}

// New constructs a Topic.
func New(id, courseID, name, language string) *Topic {
	return &Topic{
		ID:       id,
		CourseID: courseID,
		Name:     name,
		Language: language,
	}
}
