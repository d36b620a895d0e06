// Package feed turns bookmark channel events into something a person can read.
//
// The channel client delivers schema-free payloads. This package holds the
// caller side of that boundary:
//
//   - ParseBookmark and ParseChat extract typed values, reporting missing or
//     mistyped fields instead of assuming them.
//   - Mux routes events by name, sending anything unrecognised to a default
//     handler that logs and ignores it.
//   - Printer writes the console blocks shown by the feed commands and
//     prints connection notices when used as a state observer.
//
// Event names seen on the bookmark server:
//
//	bookmark:created  title, url, tags
//	bookmark:updated  bookmark fields (shape varies)
//	bookmark:deleted  bookmark fields (shape varies)
//	bookmark:chat     bookmark_title, user_email, content, timestamp
package feed
