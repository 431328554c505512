// Package frame defines the line protocol spoken on the shared channel between status
// producers and the merging consumer.
//
// # Frame Format
//
// # Overview
//
// Goals:
//
//  1. One message per line, so a single reader can split the stream without lookahead
//  2. Tag every message with the priority of the producer that sent it
//  3. Carry the payload byte-exact, including newlines and binary data
//  4. Keep one frame inside a single write(2) so writers sharing a pipe do not interleave
//
// # Format
//
// Each line follows this format:
//
//	priority:payload\n
//
// # Fields
//
//   - priority: Decimal integer, optionally signed. Higher values win.
//   - `:` Literal separator. The first colon of the line ends the priority.
//   - payload: Standard base64 (RFC 4648, padded) of the payload bytes. An empty payload
//     encodes to the empty string.
//   - \n: Terminates the frame. Base64 never produces a newline, so a raw newline can only
//     be a frame boundary.
//
// # Examples
//
// Example 1: A status line from priority 5
//
//	5:W3siZnVsbF90ZXh0IjoiYSJ9XQo=\n
//
//	- Payload is `[{"full_text":"a"}]` followed by a newline
//
// Example 2: Negative priority, empty payload
//
//	-1:\n
//
// # Errors
//
// A line without a separator is a protocol violation ([ErrProtocol]). A line whose
// priority does not parse is reported with [ErrInvalidPriority]; readers may skip it and
// continue. A payload that is not valid base64 is reported with [ErrDecode].
package frame
