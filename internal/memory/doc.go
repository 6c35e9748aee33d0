// Package memory persists conversation state: the append-only turn log per
// session, the verbatim working window, and the durable cross-session
// student profile. Overflow turns are compacted into the profile's long-term
// summary; idle sessions are evicted by a background janitor without ever
// touching profiles.
package memory
