// Package wire implements the KennyFS network-protocol codec: stateless
// encoders and decoders for the big-endian, length-prefixed frames exchanged
// between a KennyFS network-brick client and a KennyFS network-brick server.
//
// Every function here operates on byte spans already sized by the caller; the
// package has no notion of a connection, a socket, or partial reads. Framing
// (deciding where one frame ends and the next begins) lives in
// internal/ring; this package only knows how to turn bytes into values and
// back.
package wire
