package sh

import (
	"encoding/hex"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/simple485.go/pkg/wire"
)

func (r FeedResult) String() string {
	if r.Frame != nil {
		return fmt.Sprintf("@%d frame src=%d dst=%d type=0x%02x payload=%s",
			r.Offset, r.Frame.Source, r.Frame.Destination, r.Frame.Type, r.Frame.Payload)
	}
	return fmt.Sprintf("@%d error: %s", r.Offset, r.Error)
}

var (
	// EncodeCmd prints the wire bytes of a frame.
	EncodeCmd = ishell.Cmd{
		Name:    "encode",
		Aliases: []string{"enc"},
		Help:    "SRC DST TYPE [PAYLOAD-HEX...]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			raw, err := s.Encode(c.Args...)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				f, _ := wire.DecodeFrame(raw)
				s.Print(c, NewFrameJSON(f, raw))
				return
			}
			c.Println(hex.EncodeToString(raw))
		},
	}

	// DecodeCmd decodes a single complete frame.
	DecodeCmd = ishell.Cmd{
		Name:    "decode",
		Aliases: []string{"dec"},
		Help:    "FRAME-HEX...",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			raw, err := ParseBytes(c.Args...)
			if err != nil {
				c.Err(err)
				return
			}
			f, err := wire.DecodeFrame(raw)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, NewFrameJSON(f, raw))
				return
			}
			c.Println(f.String())
		},
	}

	// FeedCmd streams bytes through the frame assembler.
	FeedCmd = ishell.Cmd{
		Name:    "feed",
		Aliases: []string{"f"},
		Help:    "HEX... [@DURATION] HEX...",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			results, err := s.Feed(c.Args...)
			for _, r := range results {
				s.Print(c, r)
			}
			if err != nil {
				c.Err(err)
			}
		},
	}

	// ResetCmd discards the partially assembled frame.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Reset()
		},
	}

	// ChecksumCmd prints the CRC-16/MODBUS of the bytes.
	ChecksumCmd = ishell.Cmd{
		Name:    "crc",
		Aliases: []string{"checksum"},
		Help:    "HEX...",
		Func: func(c *ishell.Context) {
			data, err := ParseBytes(c.Args...)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("0x%04x\n", wire.Checksum(data))
		},
	}
)
