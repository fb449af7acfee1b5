package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/byuccl/qemu/driver"
	"github.com/byuccl/qemu/trace"
)

// openRegisterStream opens the companion register-snapshot file named by
// path and wraps it as a driver.RegisterReader. A blank path yields a
// stream over no data at all, so traces that never exercise DCISW don't
// require a registers file to be present.
func openRegisterStream(path string) (driver.RegisterReader, io.Closer, error) {
	if path == "" {
		return trace.NewRegisterStream(strings.NewReader("")), nopCloser{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening registers file: %w", err)
	}
	return trace.NewRegisterStream(f), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
