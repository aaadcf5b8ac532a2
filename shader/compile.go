// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
)

// Compiler turns WGSL source into SPIR-V words.
type Compiler interface {
	Compile(source string) ([]uint32, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(source string) ([]uint32, error)

// Compile calls f(source).
func (f CompilerFunc) Compile(source string) ([]uint32, error) { return f(source) }

// NagaCompiler compiles WGSL with naga.
type NagaCompiler struct{}

// Compile compiles source to SPIR-V.
func (NagaCompiler) Compile(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("spir-v length %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// lineRes match the line number forms compilers report.
var lineRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bline\s+(\d+)`),
	regexp.MustCompile(`:(\d+):\d+\b`),
}

// errorLine extracts a 1-based line number from a compiler message.
func errorLine(msg string) int {
	for _, re := range lineRes {
		if m := re.FindStringSubmatch(msg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// excerptContext is the number of lines shown on each side of the failing one.
const excerptContext = 2

// excerpt formats the lines around line, marking line with '>'.
func excerpt(lines []string, line int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	from := max(1, line-excerptContext)
	to := min(len(lines), line+excerptContext)
	width := len(strconv.Itoa(to))

	var b strings.Builder
	for n := from; n <= to; n++ {
		mark := ' '
		if n == line {
			mark = '>'
		}
		fmt.Fprintf(&b, "%c %*d | %s\n", mark, width, n, lines[n-1])
	}
	return b.String()
}
