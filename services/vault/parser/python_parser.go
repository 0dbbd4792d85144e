// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParser extracts symbols, imports, and call sites from Python
// source.
//
// Visibility follows Python convention: underscore-prefixed names are
// private, dunder names (__init__) are public.
//
// Thread Safety:
//
//	PythonParser is safe for concurrent use. Each Parse call creates
//	its own tree-sitter parser instance.
type PythonParser struct {
	opts options
}

// NewPythonParser creates a PythonParser.
func NewPythonParser(opts ...Option) *PythonParser {
	return &PythonParser{opts: newOptions(opts)}
}

// Language returns "python".
func (p *PythonParser) Language() string { return "python" }

// Extensions returns the extensions handled by this parser.
func (p *PythonParser) Extensions() []string { return []string{".py", ".pyi"} }

// Parse extracts all top-level definitions from Python source.
//
// The parse is error-tolerant: syntactically broken input yields
// partial results with ParsedFile.Errors populated. A non-nil error
// means the content could not be parsed at all (too large, invalid
// UTF-8, canceled context).
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParsedFile, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, "python", filePath, len(content))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.opts.maxFileSize {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.opts.maxFileSize)
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	result := &ParsedFile{
		Path:     filePath,
		Language: "python",
		Hash:     hex.EncodeToString(hash[:]),
		Symbols:  make([]Symbol, 0),
		Imports:  make([]Import, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	// Single pass over top-level statements keeps symbols in source
	// order.
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case pyNodeImportStatement:
			p.extractPyImport(child, content, filePath, result)
		case pyNodeImportFrom:
			p.extractPyFromImport(child, content, filePath, result)
		case pyNodeFunctionDef:
			p.extractPyFunction(child, content, filePath, result, "")
		case pyNodeClassDef:
			p.extractPyClass(child, content, filePath, result)
		case pyNodeDecoratedDef:
			if def := child.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case pyNodeFunctionDef:
					p.extractPyFunction(def, content, filePath, result, "")
				case pyNodeClassDef:
					p.extractPyClass(def, content, filePath, result)
				}
			}
		case pyNodeExpressionStatement:
			p.extractPyVariable(child, content, filePath, result)
		}
	}

	result.Exports = exportedNames(result.Symbols)
	appendSymbolChunks(result, content)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, len(result.Symbols), len(result.Errors))
	recordParseMetrics(ctx, "python", time.Since(start), len(result.Symbols), true)
	return result, nil
}

// extractPyImport handles "import foo" and "import foo as bar".
func (p *PythonParser) extractPyImport(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	line := int(node.StartPoint().Row) + 1
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case pyNodeDottedName:
			module := nodeText(child, content)
			result.Imports = append(result.Imports, Import{
				Path:         module,
				IsNamespace:  true,
				Line:         line,
				ResolvedPath: ResolvePythonImport(filePath, module, 0),
			})
		case pyNodeAliasedImport:
			var module, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				switch gc := child.Child(j); gc.Type() {
				case pyNodeDottedName:
					module = nodeText(gc, content)
				case pyNodeIdentifier:
					alias = nodeText(gc, content)
				}
			}
			if module == "" {
				continue
			}
			result.Imports = append(result.Imports, Import{
				Path:         module,
				Alias:        alias,
				IsNamespace:  true,
				Line:         line,
				ResolvedPath: ResolvePythonImport(filePath, module, 0),
			})
		}
	}
}

// extractPyFromImport handles "from x import y" in its absolute,
// relative, aliased, and wildcard forms. Names seen before the import
// keyword belong to the module path; names after it are the imported
// bindings.
func (p *PythonParser) extractPyFromImport(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	var (
		module    string
		dots      int
		names     []string
		sawImport bool
	)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case pyNodeImport:
			sawImport = true
		case pyNodeRelativeImport:
			for j := 0; j < int(child.ChildCount()); j++ {
				switch gc := child.Child(j); gc.Type() {
				case pyNodeImportPrefix:
					dots = len(nodeText(gc, content))
				case pyNodeDottedName:
					module = nodeText(gc, content)
				}
			}
		case pyNodeDottedName:
			if !sawImport {
				module = nodeText(child, content)
			} else {
				names = append(names, nodeText(child, content))
			}
		case pyNodeIdentifier:
			if sawImport {
				names = append(names, nodeText(child, content))
			}
		case pyNodeAliasedImport:
			var name, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				switch gc := child.Child(j); gc.Type() {
				case pyNodeDottedName:
					if name == "" {
						name = nodeText(gc, content)
					}
				case pyNodeIdentifier:
					alias = nodeText(gc, content)
				}
			}
			if name == "" {
				continue
			}
			if alias != "" {
				name = name + " as " + alias
			}
			names = append(names, name)
		case pyNodeWildcardImport:
			names = append(names, "*")
		}
	}

	if module == "" && dots == 0 {
		return
	}

	result.Imports = append(result.Imports, Import{
		Path:         strings.Repeat(".", dots) + module,
		Names:        names,
		Line:         int(node.StartPoint().Row) + 1,
		ResolvedPath: ResolvePythonImport(filePath, module, dots),
	})
}

// extractPyFunction handles a def at module or class level. Inside a
// class the symbol becomes a method with the class as receiver.
func (p *PythonParser) extractPyFunction(node *sitter.Node, content []byte, filePath string, result *ParsedFile, className string) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	exported := pyIsExported(name)
	if !p.opts.includePrivate && !exported {
		return
	}

	signature := "def " + name + fieldText(node, "parameters", content)
	if ret := fieldText(node, "return_type", content); ret != "" {
		signature += " -> " + ret
	}
	if hasChildOfType(node, pyNodeAsync) {
		signature = "async " + signature
	}

	sym := Symbol{
		Name:      name,
		Kind:      SymbolKindFunction,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: signature,
		Exported:  exported,
	}
	if className != "" {
		sym.Kind = SymbolKindMethod
		sym.Receiver = className
		sym.QualifiedName = QualifiedName(filePath, className+"."+name)
	} else {
		sym.QualifiedName = QualifiedName(filePath, name)
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.DocComment = pyDocstring(body, content)
		sym.Complexity = pyComplexity(body)
		p.extractPyCalls(body, content, sym.QualifiedName, result)
	}
	result.Symbols = append(result.Symbols, sym)
}

// extractPyClass handles a class definition and its methods.
func (p *PythonParser) extractPyClass(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	exported := pyIsExported(name)
	if !p.opts.includePrivate && !exported {
		return
	}

	sym := Symbol{
		Name:          name,
		QualifiedName: QualifiedName(filePath, name),
		Kind:          SymbolKindClass,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     "class " + name + fieldText(node, "superclasses", content),
		Exported:      exported,
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		sym.DocComment = pyDocstring(body, content)
	}
	result.Symbols = append(result.Symbols, sym)

	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case pyNodeFunctionDef:
			p.extractPyFunction(child, content, filePath, result, name)
		case pyNodeDecoratedDef:
			if def := child.ChildByFieldName("definition"); def != nil && def.Type() == pyNodeFunctionDef {
				p.extractPyFunction(def, content, filePath, result, name)
			}
		}
	}
}

// extractPyVariable handles module-level assignments. All-caps names
// are constants by convention.
func (p *PythonParser) extractPyVariable(stmt *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	if stmt.ChildCount() == 0 {
		return
	}
	assign := stmt.Child(0)
	if assign.Type() != pyNodeAssignment {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != pyNodeIdentifier {
		return
	}
	name := nodeText(left, content)
	exported := pyIsExported(name)
	if !p.opts.includePrivate && !exported {
		return
	}

	kind := SymbolKindVariable
	if pyIsAllCaps(name) {
		kind = SymbolKindConstant
	}
	signature := name
	if typ := fieldText(assign, "type", content); typ != "" {
		signature += ": " + typ
	}

	result.Symbols = append(result.Symbols, Symbol{
		Name:          name,
		QualifiedName: QualifiedName(filePath, name),
		Kind:          kind,
		StartLine:     int(assign.StartPoint().Row) + 1,
		EndLine:       int(assign.EndPoint().Row) + 1,
		Signature:     signature,
		Exported:      exported,
	})
}

// extractPyCalls walks a body recording every call attributed to the
// enclosing symbol. Calls inside nested defs are attributed to the
// outermost enclosing symbol.
func (p *PythonParser) extractPyCalls(body *sitter.Node, content []byte, caller string, result *ParsedFile) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == pyNodeCall {
			if callee := pyCalleeName(n.ChildByFieldName("function"), content); callee != "" {
				result.Calls = append(result.Calls, CallSite{
					CallerQualifiedName: caller,
					CalleeName:          callee,
					Line:                int(n.StartPoint().Row) + 1,
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
}

// pyCalleeName extracts the invoked name from a call's function node.
// Attribute calls keep a single qualifier when the object is a plain
// identifier ("self.save", "os.path" degrades to the attribute name);
// deeper chains degrade to the bare attribute.
func pyCalleeName(fn *sitter.Node, content []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case pyNodeIdentifier:
		return nodeText(fn, content)
	case pyNodeAttribute:
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return ""
		}
		obj := fn.ChildByFieldName("object")
		if obj != nil && obj.Type() == pyNodeIdentifier {
			return nodeText(obj, content) + "." + nodeText(attr, content)
		}
		return nodeText(attr, content)
	case pyNodeParenthesized:
		if fn.NamedChildCount() > 0 {
			return pyCalleeName(fn.NamedChild(0), content)
		}
	}
	return ""
}

// pyComplexity counts decision points: 1 plus each branch, loop,
// except clause, conditional expression, match case, and boolean
// operator.
func pyComplexity(body *sitter.Node) int {
	complexity := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case pyNodeIfStatement, pyNodeElifClause, pyNodeForStatement,
			pyNodeWhileStatement, pyNodeExceptClause,
			pyNodeConditionalExpr, pyNodeBooleanOperator, pyNodeCaseClause:
			complexity++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return complexity
}

// pyDocstring returns the docstring opening a block, with quotes
// stripped.
func pyDocstring(block *sitter.Node, content []byte) string {
	if block.ChildCount() == 0 {
		return ""
	}
	first := block.Child(0)
	if first.Type() != pyNodeExpressionStatement || first.ChildCount() == 0 {
		return ""
	}
	str := first.Child(0)
	if str.Type() != pyNodeString {
		return ""
	}
	return strings.Trim(nodeText(str, content), `"'`)
}

// pyIsExported reports whether a Python name is public by convention:
// dunder names are public, other underscore-prefixed names are not.
func pyIsExported(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return !strings.HasPrefix(name, "_")
}

// pyIsAllCaps reports whether a name contains only uppercase letters,
// digits, and underscores.
func pyIsAllCaps(name string) bool {
	for _, r := range name {
		if r != '_' && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return len(name) > 0
}

// Compile-time interface compliance check.
var _ FileParser = (*PythonParser)(nil)
