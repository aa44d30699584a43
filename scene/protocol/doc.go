// Package protocol defines the wire messages exchanged between scene clients
// and the session server.
//
// The protocol package implements:
//   - Message identifiers for the login handshake and presence notifications
//   - Binary encoding of Login, LoginReply, ClientJoined and ClientLeft
//   - The frame header shared by every transport (packet id + message id)
//   - Ordered key/value property sets and their XML document form
//
// Message Layout:
//
// All integers are little-endian.
//
//	Frame:        u32 packetID | u16 messageID | payload
//	Login:        u16 len | loginData
//	LoginReply:   u8 success | u32 userID | [4]byte sessionID | u16 len | replyData
//	ClientJoined: u32 userID
//	ClientLeft:   u32 userID
//
// Key/Value Documents:
//
// Login data and login reply data are XML documents whose root element holds
// one child element per key, with the value carried in a "value" attribute:
//
//	<login>
//	  <username value="alice"/>
//	  <password value="secret"/>
//	</login>
//
// ParseKeyValues never returns a nil property set, so a malformed document
// degrades to an empty set and the caller decides whether that is fatal.
package protocol
