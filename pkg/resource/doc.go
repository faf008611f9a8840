// Package resource coordinates consumption order of shared artifacts across
// concurrently running items.
//
// Each artifact is identified by a string id. Participants declare, per
// artifact, which other participants must have checked out before their own
// protected body may run. The manager keeps one wait/notify entry per
// distinct id, created on first use; distinct ids never contend with each
// other.
package resource
