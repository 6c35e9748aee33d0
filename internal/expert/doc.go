// Package expert routes a classified student query through a fixed workflow
// of subject experts: classify, select, invoke, optionally collaborate, and
// finalize. Each expert is a prompt persona over the shared generation
// service, not a separate model.
package expert
