// Package coreloop defines the CoreLoop entity: a named procedural
// pattern and the unit of mastery tracking.
package coreloop

// Type classifies the kind of procedure a core loop represents.
type Type string

const (
	TypeDesign          Type = "design"
	TypeTransformation  Type = "transformation"
	TypeVerification    Type = "verification"
	TypeMinimization    Type = "minimization"
	TypeAnalysis        Type = "analysis"
	TypeOther           Type = "other"
)

// CoreLoop is a named procedure, e.g. "Karnaugh Map Minimization".
type CoreLoop struct {
	ID       string
	Name     string
	Type     Type
	TopicID  string
	Language string
}

// New constructs a CoreLoop.
func New(id, name string, typ Type, topicID, language string) *CoreLoop {
	return &CoreLoop{
		ID:       id,
		Name:     name,
		Type:     typ,
		TopicID:  topicID,
		Language: language,
	}
}
