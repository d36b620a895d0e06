// Package journal keeps a history of connection sessions in SQLite.
//
// A session is one connection attempt of one topic client, from the
// Connecting transition to the Disconnected transition. The journal stores
// when it started, whether and when it subscribed, how it ended and how many
// events and failures it saw. Message contents are never stored.
//
// Recorder is registered with the supervisor as a sink (to count events) and
// as an observer (to open and close rows). Repository is the storage layer
// and is also used by the status API to list sessions.
package journal
