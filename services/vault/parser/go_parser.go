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
	"github.com/smacker/go-tree-sitter/golang"
)

// GoParser extracts symbols, imports, and call sites from Go source.
//
// Thread Safety:
//
//	GoParser is safe for concurrent use. Each Parse call creates its
//	own tree-sitter parser instance.
//
// Example:
//
//	p := NewGoParser(WithGoModule("github.com/acme/widget"))
//	result, err := p.Parse(ctx, content, "internal/store/store.go")
type GoParser struct {
	opts options
}

// NewGoParser creates a GoParser. WithGoModule enables resolution of
// intra-module imports to package directories; without it every
// import is treated as external.
func NewGoParser(opts ...Option) *GoParser {
	return &GoParser{opts: newOptions(opts)}
}

// Language returns "go".
func (p *GoParser) Language() string { return "go" }

// Extensions returns the extensions handled by this parser.
func (p *GoParser) Extensions() []string { return []string{".go"} }

// Parse extracts all top-level declarations from Go source code.
//
// The parse is error-tolerant: syntactically broken input yields
// partial results with ParsedFile.Errors populated. A non-nil error
// means the content could not be parsed at all (too large, invalid
// UTF-8, canceled context).
func (p *GoParser) Parse(ctx context.Context, content []byte, filePath string) (*ParsedFile, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, "go", filePath, len(content))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.opts.maxFileSize {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.opts.maxFileSize)
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	result := &ParsedFile{
		Path:     filePath,
		Language: "go",
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

	// Single pass over top-level declarations keeps symbols in
	// source order.
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case goNodePackageClause:
			p.extractPackage(child, content, result)
		case goNodeImportDeclaration:
			p.extractImports(child, content, result)
		case goNodeFunctionDeclaration:
			p.extractFunction(child, content, filePath, result)
		case goNodeMethodDeclaration:
			p.extractMethod(child, content, filePath, result)
		case goNodeTypeDeclaration:
			p.extractTypes(child, content, filePath, result)
		case goNodeVarDeclaration:
			p.extractVarSpecs(child, content, filePath, result, SymbolKindVariable)
		case goNodeConstDeclaration:
			p.extractVarSpecs(child, content, filePath, result, SymbolKindConstant)
		}
	}

	result.Exports = exportedNames(result.Symbols)
	appendSymbolChunks(result, content)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "go", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, len(result.Symbols), len(result.Errors))
	recordParseMetrics(ctx, "go", time.Since(start), len(result.Symbols), true)
	return result, nil
}

func (p *GoParser) extractPackage(node *sitter.Node, content []byte, result *ParsedFile) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == goNodePackageIdentifier {
			result.Package = nodeText(child, content)
			return
		}
	}
}

func (p *GoParser) extractImports(node *sitter.Node, content []byte, result *ParsedFile) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case goNodeImportSpec:
			p.extractImportSpec(child, content, result)
		case goNodeImportSpecList:
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == goNodeImportSpec {
					p.extractImportSpec(spec, content, result)
				}
			}
		}
	}
}

func (p *GoParser) extractImportSpec(node *sitter.Node, content []byte, result *ParsedFile) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	path := strings.Trim(nodeText(pathNode, content), "\"`")
	if path == "" {
		return
	}

	var alias string
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		alias = nodeText(nameNode, content)
	}

	result.Imports = append(result.Imports, Import{
		Path:  path,
		Alias: alias,
		// Every Go import binds the whole package under one name.
		IsNamespace:  true,
		Line:         int(node.StartPoint().Row) + 1,
		ResolvedPath: ResolveGoImport(p.opts.goModule, path),
	})
}

func (p *GoParser) extractFunction(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)
	exported := isGoExported(name)
	if !p.opts.includePrivate && !exported {
		return
	}

	params := fieldText(node, "parameters", content)
	returns := fieldText(node, "result", content)
	signature := "func " + name + params
	if returns != "" {
		signature += " " + returns
	}

	sym := Symbol{
		Name:          name,
		QualifiedName: QualifiedName(filePath, name),
		Kind:          SymbolKindFunction,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     signature,
		DocComment:    precedingComment(node, content),
		Exported:      exported,
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.Complexity = goComplexity(body, content)
		p.extractCalls(body, content, sym.QualifiedName, result)
	}

	result.Symbols = append(result.Symbols, sym)
}

func (p *GoParser) extractMethod(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)
	exported := isGoExported(name)
	if !p.opts.includePrivate && !exported {
		return
	}

	receiver := goReceiverType(node.ChildByFieldName("receiver"), content)
	params := fieldText(node, "parameters", content)
	returns := fieldText(node, "result", content)

	signature := "func " + fieldText(node, "receiver", content) + " " + name + params
	if returns != "" {
		signature += " " + returns
	}

	qualified := QualifiedName(filePath, name)
	if receiver != "" {
		qualified = QualifiedName(filePath, receiver+"."+name)
	}

	sym := Symbol{
		Name:          name,
		QualifiedName: qualified,
		Kind:          SymbolKindMethod,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     signature,
		DocComment:    precedingComment(node, content),
		Receiver:      receiver,
		Exported:      exported,
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.Complexity = goComplexity(body, content)
		p.extractCalls(body, content, sym.QualifiedName, result)
	}

	result.Symbols = append(result.Symbols, sym)
}

func (p *GoParser) extractTypes(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec.Type() != goNodeTypeSpec && spec.Type() != goNodeTypeAlias {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)
		exported := isGoExported(name)
		if !p.opts.includePrivate && !exported {
			continue
		}

		kind := SymbolKindType
		if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
			switch typeNode.Type() {
			case goNodeStructType:
				kind = SymbolKindStruct
			case goNodeInterfaceType:
				kind = SymbolKindInterface
			}
		}

		result.Symbols = append(result.Symbols, Symbol{
			Name:          name,
			QualifiedName: QualifiedName(filePath, name),
			Kind:          kind,
			StartLine:     int(spec.StartPoint().Row) + 1,
			EndLine:       int(spec.EndPoint().Row) + 1,
			Signature:     "type " + name,
			// Doc comments attach to the declaration, not the spec.
			DocComment: precedingComment(node, content),
			Exported:   exported,
		})
	}
}

func (p *GoParser) extractVarSpecs(node *sitter.Node, content []byte, filePath string, result *ParsedFile, kind SymbolKind) {
	var walkSpecs func(n *sitter.Node)
	walkSpecs = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case goNodeVarSpec, goNodeConstSpec:
				p.extractVarSpec(child, content, filePath, result, kind, node)
			default:
				// var_spec_list / const_spec_list wrap grouped specs.
				if strings.HasSuffix(child.Type(), "_spec_list") {
					walkSpecs(child)
				}
			}
		}
	}
	walkSpecs(node)
}

func (p *GoParser) extractVarSpec(node *sitter.Node, content []byte, filePath string, result *ParsedFile, kind SymbolKind, decl *sitter.Node) {
	typeStr := fieldText(node, "type", content)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != goNodeIdentifier {
			continue
		}
		name := nodeText(child, content)
		exported := isGoExported(name)
		if !p.opts.includePrivate && !exported {
			continue
		}

		result.Symbols = append(result.Symbols, Symbol{
			Name:          name,
			QualifiedName: QualifiedName(filePath, name),
			Kind:          kind,
			StartLine:     int(node.StartPoint().Row) + 1,
			EndLine:       int(node.EndPoint().Row) + 1,
			Signature:     typeStr,
			DocComment:    precedingComment(decl, content),
			Exported:      exported,
		})
	}
}

// extractCalls walks a function body recording every call expression
// attributed to the enclosing symbol. Calls to Go builtins are not
// recorded; they can never resolve to project symbols.
func (p *GoParser) extractCalls(body *sitter.Node, content []byte, caller string, result *ParsedFile) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == goNodeCallExpression {
			if callee := goCalleeName(n.ChildByFieldName("function"), content); callee != "" {
				if _, builtin := goBuiltins[callee]; !builtin {
					result.Calls = append(result.Calls, CallSite{
						CallerQualifiedName: caller,
						CalleeName:          callee,
						Line:                int(n.StartPoint().Row) + 1,
					})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
}

// goCalleeName extracts the invoked name from a call's function node.
// Selector calls keep a single qualifier when the operand is a plain
// identifier ("pkg.Fn", "recv.Method"); deeper chains degrade to the
// bare method name for global-index resolution.
func goCalleeName(fn *sitter.Node, content []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case goNodeIdentifier:
		return nodeText(fn, content)
	case goNodeSelectorExpr:
		field := fn.ChildByFieldName("field")
		if field == nil {
			return ""
		}
		operand := fn.ChildByFieldName("operand")
		if operand != nil && operand.Type() == goNodeIdentifier {
			return nodeText(operand, content) + "." + nodeText(field, content)
		}
		return nodeText(field, content)
	case goNodeIndexExpression, goNodeParenthesized:
		// Generic instantiation f[T](x) or parenthesized callee.
		return goCalleeName(fn.ChildByFieldName("operand"), content)
	}
	return ""
}

// goComplexity counts decision points in a body: 1 plus each if, for,
// switch/select case, and short-circuit boolean operator.
func goComplexity(body *sitter.Node, content []byte) int {
	complexity := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case goNodeIfStatement, goNodeForStatement,
			goNodeExpressionCase, goNodeTypeCase, goNodeCommCase:
			complexity++
		case goNodeBinaryExpression:
			if op := n.ChildByFieldName("operator"); op != nil {
				if t := nodeText(op, content); t == "&&" || t == "||" {
					complexity++
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return complexity
}

// goReceiverType extracts the bare receiver type name from a method's
// receiver parameter list, stripping pointers and type arguments.
func goReceiverType(receiver *sitter.Node, content []byte) string {
	if receiver == nil || receiver.NamedChildCount() == 0 {
		return ""
	}
	decl := receiver.NamedChild(0)
	typeNode := decl.ChildByFieldName("type")
	for typeNode != nil {
		switch typeNode.Type() {
		case goNodePointerType:
			typeNode = typeNode.NamedChild(0)
		case goNodeGenericType:
			typeNode = typeNode.ChildByFieldName("type")
		case goNodeTypeIdentifier:
			return nodeText(typeNode, content)
		default:
			return nodeText(typeNode, content)
		}
	}
	return ""
}

func isGoExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// nodeText returns the source text covered by a node.
func nodeText(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

// fieldText returns the text of a named grammar field, "" if absent.
func fieldText(n *sitter.Node, field string, content []byte) string {
	return nodeText(n.ChildByFieldName(field), content)
}

// precedingComment collects the contiguous comment block ending on
// the line directly above the node.
func precedingComment(node *sitter.Node, content []byte) string {
	var lines []string
	expectLine := int(node.StartPoint().Row)

	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if prev.Type() != goNodeComment {
			break
		}
		endLine := int(prev.EndPoint().Row)
		if endLine != expectLine-1 {
			break
		}
		lines = append([]string{strings.TrimSpace(nodeText(prev, content))}, lines...)
		expectLine = int(prev.StartPoint().Row)
	}

	return strings.Join(lines, "\n")
}

// exportedNames collects the bare names of exported symbols.
func exportedNames(symbols []Symbol) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range symbols {
		if !s.Exported {
			continue
		}
		if _, dup := seen[s.Name]; dup {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s.Name)
	}
	return out
}

// Compile-time interface compliance check.
var _ FileParser = (*GoParser)(nil)
