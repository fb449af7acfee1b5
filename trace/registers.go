package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrRegisterStreamExhausted is returned by RegisterStream.ReadRegister once
// the companion register file has no more lines left to consume.
var ErrRegisterStreamExhausted = fmt.Errorf("trace: register stream exhausted")

// RegisterStream implements driver.RegisterReader by consuming a companion
// register-state file one "R <index> <hex32>" line at a time, in order,
// the first time the driver asks for a register while replaying the main
// trace. It is not a random-access register file: each line is a snapshot
// recorded at the moment the original host captured it, and is consumed
// exactly once.
type RegisterStream struct {
	scanner *bufio.Scanner
	line    int
}

// NewRegisterStream returns a RegisterStream over r.
func NewRegisterStream(r io.Reader) *RegisterStream {
	return &RegisterStream{scanner: bufio.NewScanner(r)}
}

// ReadRegister consumes the next "R <index> <hex32>" line and returns its
// value. It errors if the stream is exhausted, the line is malformed, or
// the recorded index does not match the index the driver actually asked
// for — a mismatch means the register file and the trace it accompanies
// have drifted out of sync.
func (s *RegisterStream) ReadRegister(index int) (uint32, error) {
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "R" {
			return 0, fmt.Errorf("trace: register file line %d: expected \"R <index> <hex32>\"", s.line)
		}
		gotIndex, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("trace: register file line %d: bad index: %w", s.line, err)
		}
		if gotIndex != index {
			return 0, fmt.Errorf("trace: register file line %d: next snapshot is for r%d, driver asked for r%d", s.line, gotIndex, index)
		}
		val, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("trace: register file line %d: bad value: %w", s.line, err)
		}
		return uint32(val), nil
	}
	if err := s.scanner.Err(); err != nil {
		return 0, fmt.Errorf("trace: register file: %w", err)
	}
	return 0, ErrRegisterStreamExhausted
}
