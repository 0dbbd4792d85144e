// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"strings"
	"testing"
)

const (
	testTSFunctions = `/** Greets by name. */
export function greet(name: string): string {
  return hello(name);
}

export const sum = (a: number, b: number): number => a + b;

async function main(): Promise<void> {
  await greet('x');
}
`

	testTSClass = `/** Runs the pipeline. */
export class Engine extends Base {
  private cache: Map<string, string>;

  constructor(size: number) {
    this.size = size;
  }

  async run(input: string): Promise<void> {
    this.prepare(input);
    await this.flush();
  }

  private prepare(input: string): void {
    validate(input);
  }
}
`

	testTSTypes = `export interface Config {
  url: string;
}

export type Mode = 'fast' | 'safe';

export enum Level {
  Low,
  High,
}
`

	testTSImports = `import React from 'react';
import * as path from 'path';
import { readFile as rf, writeFile } from './fs/utils';
import './side-effect';
const legacy = require('../legacy');
`

	testTSExportClause = `function helper(): number {
  return 1;
}
export { helper };
`

	testTSSyntaxError = `function broken( {
  return;
}

function valid(): void {}
`

	testTSX = `export function App(): JSX.Element {
  return <div onClick={() => handle()}>hi</div>;
}
`
)

func TestTypeScriptParser_Parse_Functions(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSFunctions), "src/util.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	greet, ok := findSymbol(result.Symbols, "greet")
	if !ok {
		t.Fatal("expected function greet")
	}
	if greet.Kind != SymbolKindFunction || !greet.Exported {
		t.Errorf("expected exported function, got kind=%v exported=%v", greet.Kind, greet.Exported)
	}
	if greet.QualifiedName != "src/util.ts:greet" {
		t.Errorf("unexpected qualified name %q", greet.QualifiedName)
	}
	if greet.Signature != "function greet(name: string): string" {
		t.Errorf("unexpected signature %q", greet.Signature)
	}
	if !strings.Contains(greet.DocComment, "Greets by name") {
		t.Errorf("expected JSDoc through export wrapper, got %q", greet.DocComment)
	}

	sum, ok := findSymbol(result.Symbols, "sum")
	if !ok {
		t.Fatal("expected arrow function sum")
	}
	if sum.Kind != SymbolKindFunction {
		t.Errorf("arrow-valued const should be a function, got %v", sum.Kind)
	}
	if !strings.Contains(sum.Signature, "=>") {
		t.Errorf("expected arrow signature, got %q", sum.Signature)
	}

	main, ok := findSymbol(result.Symbols, "main")
	if !ok {
		t.Fatal("expected function main")
	}
	if main.Exported {
		t.Error("main is not exported")
	}
	if !strings.HasPrefix(main.Signature, "async ") {
		t.Errorf("expected async signature, got %q", main.Signature)
	}

	callees := make(map[string]string)
	for _, c := range result.Calls {
		callees[c.CalleeName] = c.CallerQualifiedName
	}
	if callees["hello"] != "src/util.ts:greet" {
		t.Errorf("expected hello called from greet, got %q", callees["hello"])
	}
	if callees["greet"] != "src/util.ts:main" {
		t.Errorf("expected awaited call recorded, got %q", callees["greet"])
	}
}

func TestTypeScriptParser_Parse_Class(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSClass), "src/engine.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cls, ok := findSymbol(result.Symbols, "Engine")
	if !ok {
		t.Fatal("expected class Engine")
	}
	if cls.Kind != SymbolKindClass || !cls.Exported {
		t.Errorf("expected exported class, got kind=%v exported=%v", cls.Kind, cls.Exported)
	}
	if !strings.Contains(cls.DocComment, "Runs the pipeline") {
		t.Errorf("expected class JSDoc, got %q", cls.DocComment)
	}

	methods := filterByKind(result.Symbols, SymbolKindMethod)
	if len(methods) != 3 {
		t.Fatalf("expected 3 methods (constructor, run, prepare), got %d", len(methods))
	}
	run, _ := findSymbol(methods, "run")
	if run.Receiver != "Engine" {
		t.Errorf("expected receiver Engine, got %q", run.Receiver)
	}
	if run.QualifiedName != "src/engine.ts:Engine.run" {
		t.Errorf("unexpected qualified name %q", run.QualifiedName)
	}
	prepare, _ := findSymbol(methods, "prepare")
	if prepare.Exported {
		t.Error("private method must not be exported")
	}

	callees := make(map[string]string)
	for _, c := range result.Calls {
		callees[c.CalleeName] = c.CallerQualifiedName
	}
	if callees["this.prepare"] != "src/engine.ts:Engine.run" {
		t.Errorf("expected this-call from run, got %v", callees)
	}
	if callees["validate"] != "src/engine.ts:Engine.prepare" {
		t.Errorf("expected call from private method, got %v", callees)
	}
}

func TestTypeScriptParser_Parse_Types(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSTypes), "src/types.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		kind SymbolKind
	}{
		{"Config", SymbolKindInterface},
		{"Mode", SymbolKindType},
		{"Level", SymbolKindEnum},
	}
	for _, c := range checks {
		sym, ok := findSymbol(result.Symbols, c.name)
		if !ok {
			t.Errorf("expected symbol %q", c.name)
			continue
		}
		if sym.Kind != c.kind {
			t.Errorf("%s: expected kind %v, got %v", c.name, c.kind, sym.Kind)
		}
		if !sym.Exported {
			t.Errorf("%s: expected exported", c.name)
		}
	}
}

func TestTypeScriptParser_Parse_Imports(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSImports), "src/app.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Imports) != 5 {
		t.Fatalf("expected 5 imports, got %d: %+v", len(result.Imports), result.Imports)
	}
	byPath := make(map[string]Import)
	for _, imp := range result.Imports {
		byPath[imp.Path] = imp
	}

	react := byPath["react"]
	if !react.IsDefault || react.Alias != "React" {
		t.Errorf("expected default import with alias React, got %+v", react)
	}
	if react.ResolvedPath != "" {
		t.Errorf("bare specifier must not resolve, got %q", react.ResolvedPath)
	}

	pathImp := byPath["path"]
	if !pathImp.IsNamespace || pathImp.Alias != "path" {
		t.Errorf("expected namespace import, got %+v", pathImp)
	}

	utils := byPath["./fs/utils"]
	if utils.ResolvedPath != "src/fs/utils" {
		t.Errorf("expected relative resolution src/fs/utils, got %q", utils.ResolvedPath)
	}
	if len(utils.Names) != 2 || utils.Names[0] != "readFile as rf" || utils.Names[1] != "writeFile" {
		t.Errorf("unexpected named imports %v", utils.Names)
	}

	side := byPath["./side-effect"]
	if side.ResolvedPath != "src/side-effect" {
		t.Errorf("expected side-effect import resolved, got %q", side.ResolvedPath)
	}

	legacy := byPath["../legacy"]
	if legacy.Alias != "legacy" || legacy.ResolvedPath != "legacy" {
		t.Errorf("expected require() import bound to legacy, got %+v", legacy)
	}
	if _, ok := findSymbol(result.Symbols, "legacy"); ok {
		t.Error("require binding must not double as a variable symbol")
	}
}

func TestTypeScriptParser_Parse_ExportClause(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSExportClause), "src/h.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	helper, ok := findSymbol(result.Symbols, "helper")
	if !ok {
		t.Fatal("expected function helper")
	}
	if !helper.Exported {
		t.Error("export clause should mark helper exported")
	}
	found := false
	for _, name := range result.Exports {
		if name == "helper" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected helper in exports, got %v", result.Exports)
	}
}

func TestTypeScriptParser_Parse_SyntaxError(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSSyntaxError), "src/broken.ts")
	if err != nil {
		t.Fatalf("syntax errors must not fail the parse, got: %v", err)
	}
	if !result.HasErrors() {
		t.Error("expected Errors for broken source")
	}
	if _, ok := findSymbol(result.Symbols, "valid"); !ok {
		t.Error("expected partial results to include valid function")
	}
}

func TestTypeScriptParser_Parse_TSX(t *testing.T) {
	result, err := NewTypeScriptParser().Parse(context.Background(), []byte(testTSX), "src/App.tsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasErrors() {
		t.Errorf("JSX should parse cleanly with the TSX grammar: %v", result.Errors)
	}

	app, ok := findSymbol(result.Symbols, "App")
	if !ok {
		t.Fatal("expected component function App")
	}
	if app.Kind != SymbolKindFunction || !app.Exported {
		t.Errorf("expected exported function, got %+v", app)
	}

	foundHandle := false
	for _, c := range result.Calls {
		if c.CalleeName == "handle" {
			foundHandle = true
		}
	}
	if !foundHandle {
		t.Error("expected call inside JSX handler to be recorded")
	}
}
