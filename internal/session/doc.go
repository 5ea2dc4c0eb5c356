// Package session tracks the lifecycle of a single study run and aggregates
// its statistics into a domain.StudySession record when the run ends.
package session
