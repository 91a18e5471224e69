// Package conversation keeps the bounded turn history of one dialogue and the
// context derived from it: phase, destination, preferences and the
// recommendations the assistant has listed.
package conversation
