// Package protocol implements the wire protocol for the realtime endpoint:
// frame decoding, classification of inbound frames into control-plane
// errors versus data events, and encoding of subscription commands.
package protocol
