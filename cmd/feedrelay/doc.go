// Command feedrelay is the datastore collaborator for development.
// It owns the key directory, conversations and messages, assigns
// sequence numbers on ingest and publishes insert/update events to the
// Redis change feed when one is configured.
package main
