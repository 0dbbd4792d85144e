// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// Test source code samples (embedded, no file I/O).
const (
	testGoEmpty = ``

	testGoPackageOnly = `package example`

	testGoFunction = `package example

// Add adds two integers.
func Add(a, b int) int {
	return a + b
}
`

	testGoMethod = `package example

type Calculator struct{}

// Add adds two integers.
func (c *Calculator) Add(a, b int) int {
	return a + b
}
`

	testGoTypes = `package example

// User represents a system user.
type User struct {
	ID   string
	Name string
}

// Reader defines read operations.
type Reader interface {
	Read(p []byte) (n int, err error)
}

type Alias = User

type ID string
`

	testGoImports = `package example

import (
	"context"
	"fmt"

	gin "github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)
`

	testGoModuleImports = `package example

import (
	"context"

	"github.com/acme/widget"
	"github.com/acme/widget/internal/store"
)
`

	testGoVariables = `package example

var GlobalVar = "global"

var (
	MultiVar1 = "one"
	MultiVar2 = "two"
)

const MaxSize = 1024

const (
	StatusPending = "pending"
	StatusActive  = "active"
)
`

	testGoUnexported = `package example

type publicMissing struct{}

func PublicFunc() {}
func privateFunc() {}

var privateVar = 2
`

	testGoCalls = `package example

func process(items []string) int {
	n := len(items)
	helper(n)
	store.Save(items)
	return n
}

func helper(n int) {}
`

	testGoComplexity = `package example

func branchy(a, b int) int {
	if a > 0 && b > 0 {
		return a + b
	}
	for i := 0; i < a; i++ {
		switch i {
		case 1:
			b++
		case 2:
			b--
		default:
			b = 0
		}
	}
	return b
}
`

	testGoSyntaxError = `package example

func Broken( {
	return
}

func Valid() string {
	return "hello"
}
`

	// Invalid UTF-8 bytes
	testInvalidUTF8 = "\xff\xfe"
)

func filterByKind(symbols []Symbol, kind SymbolKind) []Symbol {
	var out []Symbol
	for _, s := range symbols {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func findSymbol(symbols []Symbol, name string) (Symbol, bool) {
	for _, s := range symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

func TestGoParser_Parse_EmptyFile(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoEmpty), "empty.go")
	if err != nil {
		t.Fatalf("expected no error for empty file, got: %v", err)
	}
	if result.Path != "empty.go" {
		t.Errorf("expected Path 'empty.go', got %q", result.Path)
	}
	if result.Language != "go" {
		t.Errorf("expected Language 'go', got %q", result.Language)
	}
	if len(result.Hash) != 64 {
		t.Errorf("expected 64-char sha256 hash, got %q", result.Hash)
	}
	if len(result.Symbols) != 0 {
		t.Errorf("expected no symbols, got %d", len(result.Symbols))
	}
}

func TestGoParser_Parse_PackageOnly(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoPackageOnly), "pkg.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Package != "example" {
		t.Errorf("expected package 'example', got %q", result.Package)
	}
}

func TestGoParser_Parse_Function(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoFunction), "func.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	funcs := filterByKind(result.Symbols, SymbolKindFunction)
	if len(funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(funcs))
	}

	fn := funcs[0]
	if fn.Name != "Add" {
		t.Errorf("expected function name 'Add', got %q", fn.Name)
	}
	if fn.QualifiedName != "func.go:Add" {
		t.Errorf("expected qualified name 'func.go:Add', got %q", fn.QualifiedName)
	}
	if !fn.Exported {
		t.Error("expected function to be exported")
	}
	if fn.Signature != "func Add(a, b int) int" {
		t.Errorf("unexpected signature %q", fn.Signature)
	}
	if !strings.Contains(fn.DocComment, "Add adds two integers") {
		t.Errorf("expected doc comment, got %q", fn.DocComment)
	}
	if fn.Complexity != 1 {
		t.Errorf("expected complexity 1 for straight-line body, got %d", fn.Complexity)
	}
	if fn.StartLine != 4 || fn.EndLine != 6 {
		t.Errorf("expected lines 4-6, got %d-%d", fn.StartLine, fn.EndLine)
	}
}

func TestGoParser_Parse_Method(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoMethod), "method.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	methods := filterByKind(result.Symbols, SymbolKindMethod)
	if len(methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(methods))
	}

	m := methods[0]
	if m.Name != "Add" {
		t.Errorf("expected method name 'Add', got %q", m.Name)
	}
	if m.Receiver != "Calculator" {
		t.Errorf("expected receiver 'Calculator', got %q", m.Receiver)
	}
	if m.QualifiedName != "method.go:Calculator.Add" {
		t.Errorf("expected qualified name 'method.go:Calculator.Add', got %q", m.QualifiedName)
	}
	if !strings.Contains(m.Signature, "Calculator") {
		t.Errorf("expected signature to contain receiver, got %q", m.Signature)
	}
}

func TestGoParser_Parse_Types(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoTypes), "types.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	structs := filterByKind(result.Symbols, SymbolKindStruct)
	if len(structs) != 1 || structs[0].Name != "User" {
		t.Fatalf("expected struct 'User', got %+v", structs)
	}
	if !strings.Contains(structs[0].DocComment, "system user") {
		t.Errorf("expected struct doc comment, got %q", structs[0].DocComment)
	}

	interfaces := filterByKind(result.Symbols, SymbolKindInterface)
	if len(interfaces) != 1 || interfaces[0].Name != "Reader" {
		t.Fatalf("expected interface 'Reader', got %+v", interfaces)
	}

	types := filterByKind(result.Symbols, SymbolKindType)
	names := make([]string, 0, len(types))
	for _, s := range types {
		names = append(names, s.Name)
	}
	if len(types) != 2 {
		t.Errorf("expected 2 plain type symbols (Alias, ID), got %v", names)
	}
}

func TestGoParser_Parse_Imports(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoImports), "imports.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Imports) != 4 {
		t.Fatalf("expected 4 imports, got %d", len(result.Imports))
	}
	for _, imp := range result.Imports {
		if !imp.IsNamespace {
			t.Errorf("expected Go import %q to be a namespace import", imp.Path)
		}
		if imp.ResolvedPath != "" {
			t.Errorf("expected external import %q to have empty ResolvedPath, got %q", imp.Path, imp.ResolvedPath)
		}
		if imp.Line == 0 {
			t.Errorf("expected import %q to carry a line number", imp.Path)
		}
	}

	var gin Import
	for _, imp := range result.Imports {
		if imp.Path == "github.com/gin-gonic/gin" {
			gin = imp
		}
	}
	if gin.Alias != "gin" {
		t.Errorf("expected aliased import to record alias, got %q", gin.Alias)
	}
}

func TestGoParser_Parse_ImportResolution(t *testing.T) {
	p := NewGoParser(WithGoModule("github.com/acme/widget"))
	result, err := p.Parse(context.Background(), []byte(testGoModuleImports), "cmd/main.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved := make(map[string]string)
	for _, imp := range result.Imports {
		resolved[imp.Path] = imp.ResolvedPath
	}
	if resolved["context"] != "" {
		t.Errorf("stdlib import should not resolve, got %q", resolved["context"])
	}
	if resolved["github.com/acme/widget"] != "." {
		t.Errorf("module root import should resolve to '.', got %q", resolved["github.com/acme/widget"])
	}
	if resolved["github.com/acme/widget/internal/store"] != "internal/store" {
		t.Errorf("intra-module import should resolve to package dir, got %q", resolved["github.com/acme/widget/internal/store"])
	}
}

func TestGoParser_Parse_VariablesAndConstants(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoVariables), "vars.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vars := filterByKind(result.Symbols, SymbolKindVariable)
	if len(vars) != 3 {
		t.Errorf("expected 3 variables, got %d", len(vars))
	}
	consts := filterByKind(result.Symbols, SymbolKindConstant)
	if len(consts) != 3 {
		t.Errorf("expected 3 constants, got %d", len(consts))
	}
	if _, ok := findSymbol(consts, "StatusActive"); !ok {
		t.Error("expected grouped const StatusActive to be extracted")
	}
}

func TestGoParser_Parse_IncludePrivate(t *testing.T) {
	t.Run("default keeps unexported", func(t *testing.T) {
		result, err := NewGoParser().Parse(context.Background(), []byte(testGoUnexported), "private.go")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := findSymbol(result.Symbols, "privateFunc"); !ok {
			t.Error("expected unexported function with default options")
		}
	})

	t.Run("disabled drops unexported", func(t *testing.T) {
		p := NewGoParser(WithIncludePrivate(false))
		result, err := p.Parse(context.Background(), []byte(testGoUnexported), "private.go")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := findSymbol(result.Symbols, "privateFunc"); ok {
			t.Error("expected unexported function to be dropped")
		}
		if _, ok := findSymbol(result.Symbols, "PublicFunc"); !ok {
			t.Error("expected exported function to survive")
		}
	})
}

func TestGoParser_Parse_Exports(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoUnexported), "exports.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exports := make(map[string]bool)
	for _, name := range result.Exports {
		exports[name] = true
	}
	if !exports["PublicFunc"] {
		t.Errorf("expected PublicFunc in exports, got %v", result.Exports)
	}
	if exports["privateFunc"] || exports["privateVar"] {
		t.Errorf("unexported names leaked into exports: %v", result.Exports)
	}
}

func TestGoParser_Parse_Calls(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoCalls), "calls.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	callees := make(map[string]string)
	for _, c := range result.Calls {
		callees[c.CalleeName] = c.CallerQualifiedName
	}
	if caller := callees["helper"]; caller != "calls.go:process" {
		t.Errorf("expected helper called from calls.go:process, got %q", caller)
	}
	if _, ok := callees["store.Save"]; !ok {
		t.Errorf("expected qualified call store.Save, got %v", callees)
	}
	if _, ok := callees["len"]; ok {
		t.Error("builtin len should not be recorded as a call")
	}
}

func TestGoParser_Parse_Complexity(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoComplexity), "cx.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fn, ok := findSymbol(result.Symbols, "branchy")
	if !ok {
		t.Fatal("expected function branchy")
	}
	// 1 base + if + && + for + 2 cases = 6 (default adds nothing).
	if fn.Complexity != 6 {
		t.Errorf("expected complexity 6, got %d", fn.Complexity)
	}
}

func TestGoParser_Parse_Chunks(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoCalls), "chunks.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected one chunk per function, got %d", len(result.Chunks))
	}
	seen := make(map[string]bool)
	for _, c := range result.Chunks {
		if seen[c.ID] {
			t.Errorf("duplicate chunk ID %q", c.ID)
		}
		seen[c.ID] = true
		if c.SymbolHint == "" {
			t.Errorf("chunk %q missing symbol hint", c.ID)
		}
		if !strings.HasPrefix(c.ID, "chunks.go#L") {
			t.Errorf("unexpected chunk ID format %q", c.ID)
		}
		if c.Content == "" {
			t.Errorf("chunk %q has empty content", c.ID)
		}
	}
}

func TestGoParser_Parse_SyntaxError(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoSyntaxError), "broken.go")
	if err != nil {
		t.Fatalf("syntax errors must not fail the parse, got: %v", err)
	}

	if !result.HasErrors() {
		t.Error("expected Errors to be populated for broken source")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "syntax errors") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected syntax error marker, got %v", result.Errors)
	}
	if _, ok := findSymbol(result.Symbols, "Valid"); !ok {
		t.Error("expected partial results to include the valid function")
	}
}

func TestGoParser_Parse_InvalidUTF8(t *testing.T) {
	_, err := NewGoParser().Parse(context.Background(), []byte(testInvalidUTF8), "bad.go")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestGoParser_Parse_FileTooLarge(t *testing.T) {
	p := NewGoParser(WithMaxFileSize(16))
	_, err := p.Parse(context.Background(), []byte(testGoFunction), "big.go")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestGoParser_Parse_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGoParser().Parse(ctx, []byte(testGoFunction), "ctx.go")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGoParser_Parse_Concurrent(t *testing.T) {
	p := NewGoParser()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.Parse(context.Background(), []byte(testGoCalls), "concurrent.go")
			if err != nil {
				t.Errorf("concurrent parse failed: %v", err)
				return
			}
			if len(result.Symbols) != 2 {
				t.Errorf("expected 2 symbols, got %d", len(result.Symbols))
			}
		}()
	}
	wg.Wait()
}

func TestParsedFile_SymbolTable(t *testing.T) {
	result, err := NewGoParser().Parse(context.Background(), []byte(testGoMethod), "table.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table := result.SymbolTable()
	if table["Calculator"] != "table.go:Calculator" {
		t.Errorf("expected struct in symbol table, got %q", table["Calculator"])
	}
	if table["Add"] != "table.go:Calculator.Add" {
		t.Errorf("expected method in symbol table, got %q", table["Add"])
	}
}
