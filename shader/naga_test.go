// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"strings"
	"testing"

	"github.com/gogpu/polytope/params"
	"github.com/gogpu/polytope/strategy/builtin"
)

// skipNagaLimitation skips t when err is a known naga gap rather than a
// shader bug.
func skipNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
	if strings.Contains(msg, "lowering error") {
		t.Skipf("Skipping: naga lowering limitation: %v", err)
	}
}

func TestNagaCompilesVertexStage(t *testing.T) {
	words, err := NagaCompiler{}.Compile(VertexSource())
	if err != nil {
		skipNagaLimitation(t, err)
		t.Fatalf("failed to compile vertex stage: %v", err)
	}
	if len(words) == 0 || words[0] != spirvMagic {
		t.Fatalf("bad SPIR-V header: %v", words[:min(len(words), 1)])
	}
}

func TestNagaCompilesBuiltinPairs(t *testing.T) {
	geoms, projs, err := builtin.Registries()
	if err != nil {
		t.Fatal(err)
	}
	prelude := Prelude(params.DefaultSchema())

	for _, g := range geoms.Names() {
		for _, p := range projs.Names() {
			t.Run(g+"/"+p, func(t *testing.T) {
				geom, _ := geoms.Get(g)
				proj, _ := projs.Get(p)
				asm, err := Assemble(DefaultTemplate(), prelude, geom, proj)
				if err != nil {
					t.Fatal(err)
				}
				words, err := NagaCompiler{}.Compile(asm.Source)
				if err != nil {
					skipNagaLimitation(t, err)
					line := errorLine(err.Error())
					o, _ := asm.Origin(line)
					t.Fatalf("compile failed at %s: %v\n%s", o, err, excerpt(asm.lines, line))
				}
				if len(words) == 0 || words[0] != spirvMagic {
					t.Fatal("bad SPIR-V header")
				}
			})
		}
	}
}
