package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

const maxEventBytes = 16 << 20

// readEvents reads newline-delimited event payloads. Blank lines are
// skipped; "-" reads stdin.
func readEvents(path string, stdin io.Reader) ([][]byte, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open events: %w", err)
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	var out [][]byte
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, bytes.Clone(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

type processor interface {
	Process(ctx context.Context, payloads [][]byte) error
}

// applyBatches feeds payloads to p in batches of size (all at once when
// size <= 0) and stops at the first failed batch. Earlier batches stay
// committed.
func applyBatches(ctx context.Context, p processor, payloads [][]byte, size int) (int, error) {
	if size <= 0 {
		size = len(payloads)
	}
	batches := 0
	for start := 0; start < len(payloads); start += size {
		end := min(start+size, len(payloads))
		if err := p.Process(ctx, payloads[start:end]); err != nil {
			return batches, fmt.Errorf("batch %d (events %d..%d): %w", batches, start, end-1, err)
		}
		batches++
	}
	return batches, nil
}
