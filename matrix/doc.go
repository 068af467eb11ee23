// Package matrix is a small client for the Matrix client-server API,
// covering the surface the bot consumes: token-authenticated requests,
// incremental /sync with long-polling, room join, message send, joined
// member and presence lookups, and invite/leave/message listeners.
//
// The client maintains a registry of rooms seen through /sync (room ID,
// canonical alias, display name, alternate aliases) so that symbolic
// room references from configuration can be resolved before joining.
// [ResolveRoom] implements the resolution priority: exact room ID,
// canonical alias, display name, then alternate alias.
//
// API errors are returned as [*Error] with the Matrix error code
// (M_FORBIDDEN, M_NOT_FOUND, ...) and HTTP status. Request URLs are
// built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that already contain URL-encoded
// characters.
package matrix
