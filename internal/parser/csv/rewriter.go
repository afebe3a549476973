package csv

import (
	"bufio"
	"bytes"
	"io"
)

// Scrub is one streaming byte replacement applied before the bytes reach
// the CSV reader, e.g. repairing a broken quote sequence a producer keeps
// emitting:
//
//	From: ` "v likvidaci""`
//	To:   ` (v likvidaci)"`
type Scrub struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// scrubReader wraps r with one rewriter per rule, applied in order.
func scrubReader(r io.Reader, rules []Scrub) io.Reader {
	for _, s := range rules {
		if s.From == "" || s.From == s.To {
			continue
		}
		r = newRewriter(r, []byte(s.From), []byte(s.To))
	}
	return r
}

const rewriteChunk = 64 * 1024

// rewriter is an io.Reader that replaces every occurrence of pat with repl
// without buffering the stream. Matches may span chunk boundaries, so the
// last len(pat)-1 bytes of each processed block are held back as carry and
// prepended to the next block.
type rewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	chunk []byte
	carry []byte
	out   bytes.Buffer // pending output
	eof   bool
}

func newRewriter(r io.Reader, pat, repl []byte) *rewriter {
	return &rewriter{
		br:    bufio.NewReaderSize(r, rewriteChunk),
		pat:   pat,
		repl:  repl,
		chunk: make([]byte, rewriteChunk),
		carry: make([]byte, 0, len(pat)),
	}
}

func (rw *rewriter) Read(p []byte) (int, error) {
	for rw.out.Len() == 0 {
		if rw.eof {
			return 0, io.EOF
		}
		if err := rw.fill(); err != nil {
			return 0, err
		}
	}
	return rw.out.Read(p)
}

// fill reads one chunk, rewrites it together with the carry and moves all
// but the new carry to out.
func (rw *rewriter) fill() error {
	n, rerr := rw.br.Read(rw.chunk)
	if n > 0 {
		block := append(rw.carry, rw.chunk[:n]...)
		block = bytes.ReplaceAll(block, rw.pat, rw.repl)

		k := len(rw.pat) - 1
		if len(block) > k {
			rw.out.Write(block[:len(block)-k])
			block = block[len(block)-k:]
		}
		rw.carry = append(rw.carry[:0:0], block...)
	}
	switch {
	case rerr == io.EOF:
		rw.out.Write(rw.carry)
		rw.carry = rw.carry[:0]
		rw.eof = true
	case rerr != nil:
		return rerr
	}
	return nil
}
