// Package sh provides an interactive shell to build and inspect frames.
package sh

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/simple485.go/pkg/slave"
	"github.com/robotalks/simple485.go/pkg/wire"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell     *ishell.Shell
	Assembler *wire.Assembler

	// clock is the virtual time of fed bytes, advanced by "@DURATION" tokens.
	clock time.Time
}

// FrameJSON is the JSON form of a decoded frame.
type FrameJSON struct {
	Source      int    `json:"source"`
	Destination int    `json:"destination"`
	Type        int    `json:"type"`
	Payload     string `json:"payload"`
	Raw         string `json:"raw,omitempty"`
}

// FeedResult is produced for every frame or error while feeding bytes.
type FeedResult struct {
	Offset int        `json:"offset"`
	Frame  *FrameJSON `json:"frame,omitempty"`
	Error  string     `json:"error,omitempty"`
}

const shellKey = "$shell"

var (
	// flags

	evalOnly     bool
	outputJSON   bool
	frameTimeout = slave.DefaultFrameTimeout

	// commands
	commands = []*ishell.Cmd{
		&EncodeCmd,
		&DecodeCmd,
		&FeedCmd,
		&ResetCmd,
		&ChecksumCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&frameTimeout, "frame-timeout", frameTimeout, "Inter-byte timeout of fed bytes.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Shell:       ishell.New(),
		Assembler:   wire.NewAssembler(wire.MaxPayloadLen, frameTimeout),
		clock:       time.Unix(0, 0),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("485 > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ParseBytes parses hex bytes, either separated or concatenated.
func ParseBytes(args ...string) ([]byte, error) {
	var out []byte
	for _, arg := range args {
		arg = strings.TrimPrefix(strings.ReplaceAll(arg, ":", ""), "0x")
		data, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q", arg)
		}
		out = append(out, data...)
	}
	return out, nil
}

// ParseAddress parses a number, "master" or "broadcast".
func ParseAddress(s string) (wire.Address, error) {
	switch strings.ToLower(s) {
	case "m", "master":
		return wire.MasterAddress, nil
	case "b", "broadcast":
		return wire.BroadcastAddress, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return wire.Address(n), nil
}

// ParseType parses a number or a well-known message type name.
func ParseType(s string) (wire.MessageType, error) {
	for _, typ := range []wire.MessageType{wire.TypeRequest, wire.TypeAck, wire.TypeData, wire.TypeError} {
		if strings.EqualFold(s, typ.String()) {
			return typ, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid message type %q", s)
	}
	return wire.MessageType(n), nil
}

// NewFrameJSON converts a frame.
func NewFrameJSON(f wire.Frame, raw []byte) *FrameJSON {
	return &FrameJSON{
		Source:      int(f.Source),
		Destination: int(f.Destination),
		Type:        int(f.Type),
		Payload:     hex.EncodeToString(f.Payload),
		Raw:         hex.EncodeToString(raw),
	}
}

// Encode builds a frame from "SRC DST TYPE [PAYLOAD...]".
func (s *Shell) Encode(args ...string) ([]byte, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("expect SRC DST TYPE [PAYLOAD...]")
	}
	src, err := ParseAddress(args[0])
	if err != nil {
		return nil, err
	}
	dst, err := ParseAddress(args[1])
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(args[2])
	if err != nil {
		return nil, err
	}
	payload, err := ParseBytes(args[3:]...)
	if err != nil {
		return nil, err
	}
	return wire.Encode(src, dst, typ, payload)
}

// Feed pushes bytes into the shell's Assembler. A token "@DURATION"
// advances the clock before the next byte.
func (s *Shell) Feed(args ...string) ([]FeedResult, error) {
	var results []FeedResult
	var offset int
	for _, arg := range args {
		if strings.HasPrefix(arg, "@") {
			d, err := time.ParseDuration(arg[1:])
			if err != nil {
				return results, err
			}
			s.clock = s.clock.Add(d)
			if ev := s.Assembler.Tick(s.clock); ev.Kind == wire.EventError {
				results = append(results, FeedResult{Offset: offset, Error: ev.Err.Error()})
			}
			continue
		}
		data, err := ParseBytes(arg)
		if err != nil {
			return results, err
		}
		for _, b := range data {
			ev := s.Assembler.Push(b, s.clock)
			switch ev.Kind {
			case wire.EventFrameReady:
				f, err := wire.DecodeFrame(ev.Raw)
				if err != nil {
					results = append(results, FeedResult{Offset: offset, Error: err.Error()})
					break
				}
				results = append(results, FeedResult{Offset: offset, Frame: NewFrameJSON(f, ev.Raw)})
			case wire.EventError:
				results = append(results, FeedResult{Offset: offset, Error: ev.Err.Error()})
			}
			offset++
		}
	}
	return results, nil
}

// Reset discards any partial frame being fed.
func (s *Shell) Reset() {
	s.Assembler.Reset()
}

// Print prints v as JSON or with fmt.
func (s *Shell) Print(c *ishell.Context, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(v)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
