// Package protocol implements the Redis serialization protocol (RESP) as it is
// spoken between a redisfast client and a Redis compatible server.
//
// This package only deals with bytes. It knows nothing about sockets, handlers
// or connection state, which makes it easy to reuse on both sides of the wire.
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - every frame starts with a single type byte
// - lengths are explicit, so bulk payloads are binary safe and never escaped
//
// === Requests
//
// A command is always sent as an array of bulk strings
//
//   ```
//   *3\r\n
//   $3\r\nSET\r\n
//   $1\r\nk\r\n
//   $1\r\nv\r\n
//   ```
//
// The first element names the operation, command names are case insensitive.
//
// === Replies
//
//   ```
//   +OK\r\n                  status
//   -ERR bad syntax\r\n      error
//   :42\r\n                  integer
//   $5\r\nhello\r\n          bulk string
//   $-1\r\n                  nil bulk string
//   *2\r\n:1\r\n$1\r\na\r\n  array, elements may be arrays themselves
//   *-1\r\n                  nil array
//   ```
//
// Any other type byte means the stream can no longer be framed, the Decoder
// reports ErrProtocol and refuses to decode anything else.
//
// === Partial frames
//
// A reply may arrive split over any number of reads. Decoder.Feed buffers the
// unconsumed tail and only ever emits complete replies.
//
// === Pub/Sub
//
// Once a connection subscribed to a channel or pattern the server pushes
// arrays shaped like
//
//   ```
//   [subscribe, <channel>, <count>]
//   [message, <channel>, <payload>]
//   [pmessage, <pattern>, <channel>, <payload>]
//   [unsubscribe, <channel>, <count>]
//   ```
//
// ParsePush recognises these frames. A confirmation whose count is 0 means the
// connection left subscribed mode.
package protocol
