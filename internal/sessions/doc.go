// Package sessions implements the core session graph and idleness logic.
//
// This includes the cross-referenced session/process/tunnel model, the
// two-pass graph builder, the depth-bounded idleness evaluator, the
// eligibility filter, and the enforcement loop.
package sessions
