// Package mastery defines the TopicMastery and CourseMastery aggregate
// entities: weighted means of child mastery scores, recomputed on cascade.
package mastery

import "time"

// TopicMastery aggregates the core loops of a topic for one student.
type TopicMastery struct {
	StudentID   string
	TopicID     string
	Score       float64
	LastUpdated time.Time
}

// CourseMastery aggregates the topics of a course for one student.
type CourseMastery struct {
	StudentID   string
	CourseID    string
	Score       float64
	LastUpdated time.Time
}

// ChildScore pairs a child's mastery score with the weight it contributes
// to a weighted-mean aggregate (spec.md §4.4 step 4: weight = total
// attempts, minimum 1).
type ChildScore struct {
	Score  float64
	Weight float64
}

// WeightedMean computes the attempt-weighted mean of a set of child
// scores. An empty input yields 0.
func WeightedMean(children []ChildScore) float64 {
	if len(children) == 0 {
		return 0
	}

	var weightedSum, totalWeight float64
	for _, c := range children {
		weight := c.Weight
		if weight < 1 {
			weight = 1
		}
		weightedSum += c.Score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}
