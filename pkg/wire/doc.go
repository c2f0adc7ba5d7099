// Package wire provides the simple485 frame format.
package wire

// A frame is exchanged over a half-duplex RS-485 bus shared by one master
// and up to 254 slaves:
//
//   SOH | SRC | DST | TYPE | LEN | PAYLOAD[LEN] | CRC_LO | CRC_HI | EOT
//
// Every byte between the delimiters equal to SOH, EOT or ESC is sent as
// ESC followed by the byte XORed with 0x20, so a delimiter never appears
// inside a frame body. The CRC is CRC-16/MODBUS over the unescaped
// SRC..PAYLOAD bytes, low byte first.
//
// Encoding and decoding are stateless. The Assembler is the stateful
// receiver fed one byte at a time by the serial driver.
