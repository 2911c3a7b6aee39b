// Package sync keeps a user's local conversation state current: it
// subscribes to the message change feed, decrypts incoming events,
// merges them by sequence number and maintains unread counts, recovering
// from missed events with full refetches.
package sync
