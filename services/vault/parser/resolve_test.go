// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import "testing"

func TestResolveGoImport(t *testing.T) {
	const module = "github.com/acme/app"
	tests := []struct {
		name       string
		modulePath string
		importPath string
		want       string
	}{
		{"module root", module, module, "."},
		{"internal package", module, module + "/internal/store", "internal/store"},
		{"stdlib", module, "fmt", ""},
		{"external", module, "github.com/gin-gonic/gin", ""},
		{"prefix but different module", module, "github.com/acme/application/x", ""},
		{"no module path", "", module + "/x", ""},
		{"empty import", module, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveGoImport(tt.modulePath, tt.importPath); got != tt.want {
				t.Errorf("ResolveGoImport(%q, %q) = %q, want %q", tt.modulePath, tt.importPath, got, tt.want)
			}
		})
	}
}

func TestResolveTSImport(t *testing.T) {
	tests := []struct {
		name     string
		fromPath string
		spec     string
		want     string
	}{
		{"sibling", "src/app.ts", "./util", "src/util"},
		{"parent", "src/a/b.ts", "../c", "src/c"},
		{"bare specifier", "src/app.ts", "react", ""},
		{"scoped package", "src/app.ts", "@acme/lib", ""},
		{"escapes root", "src/app.ts", "../../escape", ""},
		{"extension stripped", "app.ts", "./x.ts", "x"},
		{"tsx extension stripped", "src/app.ts", "./comp.tsx", "src/comp"},
		{"nested", "src/app.ts", "./fs/utils", "src/fs/utils"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTSImport(tt.fromPath, tt.spec); got != tt.want {
				t.Errorf("ResolveTSImport(%q, %q) = %q, want %q", tt.fromPath, tt.spec, got, tt.want)
			}
		})
	}
}

func TestTSImportCandidates(t *testing.T) {
	if got := TSImportCandidates(""); got != nil {
		t.Errorf("empty resolution has no candidates, got %v", got)
	}

	got := TSImportCandidates("src/util")
	if len(got) != 2*len(tsExtensions) {
		t.Fatalf("expected %d candidates, got %d", 2*len(tsExtensions), len(got))
	}
	if got[0] != "src/util.ts" {
		t.Errorf("expected .ts tried first, got %q", got[0])
	}
	foundIndex := false
	for _, c := range got {
		if c == "src/util/index.ts" {
			foundIndex = true
		}
	}
	if !foundIndex {
		t.Errorf("expected directory index candidate, got %v", got)
	}
}

func TestResolvePythonImport(t *testing.T) {
	tests := []struct {
		name     string
		fromPath string
		module   string
		dots     int
		want     string
	}{
		{"absolute", "pkg/app.py", "os", 0, "os"},
		{"absolute dotted", "pkg/app.py", "a.b.c", 0, "a/b/c"},
		{"one dot", "pkg/app.py", "models", 1, "pkg/models"},
		{"two dots", "pkg/sub/app.py", "util", 2, "pkg/util"},
		{"package itself", "pkg/app.py", "", 1, "pkg"},
		{"two dots to root", "pkg/app.py", "", 2, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePythonImport(tt.fromPath, tt.module, tt.dots); got != tt.want {
				t.Errorf("ResolvePythonImport(%q, %q, %d) = %q, want %q",
					tt.fromPath, tt.module, tt.dots, got, tt.want)
			}
		})
	}
}

func TestPythonImportCandidates(t *testing.T) {
	if got := PythonImportCandidates(""); got != nil {
		t.Errorf("empty resolution has no candidates, got %v", got)
	}
	got := PythonImportCandidates("pkg/models")
	if len(got) != 2 || got[0] != "pkg/models.py" || got[1] != "pkg/models/__init__.py" {
		t.Errorf("unexpected candidates %v", got)
	}
}
