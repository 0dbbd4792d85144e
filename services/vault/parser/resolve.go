// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"path"
	"strings"
)

// Import resolution maps import specifiers to project-relative paths.
// Resolution is purely lexical: no filesystem access, no module
// config beyond the Go module path. Anything unresolvable comes back
// as "" and is treated as external — consumers skip it silently.

// tsExtensions are the extension candidates for TypeScript and
// JavaScript module specifiers, tried in order by consumers.
var tsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mts", ".mjs", ".cjs"}

// ResolveGoImport maps a Go import path to the package directory it
// names inside the module, or "" for external imports. modulePath
// comes from the repository's go.mod; with an empty modulePath every
// import is external.
func ResolveGoImport(modulePath, importPath string) string {
	if modulePath == "" || importPath == "" {
		return ""
	}
	if importPath == modulePath {
		return "."
	}
	if strings.HasPrefix(importPath, modulePath+"/") {
		return strings.TrimPrefix(importPath, modulePath+"/")
	}
	return ""
}

// ResolveTSImport maps a relative TypeScript/JavaScript specifier to
// an extension-less project path, resolved against the importing
// file. Bare specifiers (npm packages) and paths escaping the
// repository root yield "".
func ResolveTSImport(fromPath, spec string) string {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return ""
	}

	resolved := path.Join(path.Dir(fromPath), spec)
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return ""
	}

	// Specifiers may carry an explicit extension; strip it so
	// consumers can try the full candidate set uniformly.
	for _, ext := range tsExtensions {
		if strings.HasSuffix(resolved, ext) {
			return strings.TrimSuffix(resolved, ext)
		}
	}
	return resolved
}

// TSImportCandidates expands an extension-less resolved path into the
// concrete file paths a TypeScript import may refer to, including
// directory index modules.
func TSImportCandidates(resolved string) []string {
	if resolved == "" {
		return nil
	}
	out := make([]string, 0, len(tsExtensions)*2)
	for _, ext := range tsExtensions {
		out = append(out, resolved+ext)
	}
	for _, ext := range tsExtensions {
		out = append(out, resolved+"/index"+ext)
	}
	return out
}

// ResolvePythonImport maps a Python module reference to an
// extension-less project path. relativeDots is the number of leading
// dots in a from-import (0 for absolute imports). Escaping the
// repository root yields "".
func ResolvePythonImport(fromPath, module string, relativeDots int) string {
	modPath := strings.ReplaceAll(module, ".", "/")

	if relativeDots == 0 {
		// Absolute imports resolve from the repository root. The
		// candidate only matters if such a file exists in the batch;
		// stdlib and site-packages names simply never match.
		return modPath
	}

	// One dot anchors at the importing file's package, each extra
	// dot climbs one package higher.
	base := path.Dir(fromPath)
	for i := 1; i < relativeDots; i++ {
		base = path.Dir(base)
	}
	resolved := path.Join(base, modPath)
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return ""
	}
	return resolved
}

// PythonImportCandidates expands an extension-less resolved path into
// the module file and package init forms.
func PythonImportCandidates(resolved string) []string {
	if resolved == "" {
		return nil
	}
	return []string{resolved + ".py", resolved + "/__init__.py"}
}
