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
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParser extracts symbols, imports, and call sites from
// TypeScript and JavaScript source. The TSX grammar is used for .tsx
// and .jsx files, the TypeScript grammar otherwise; both are strict
// supersets of JavaScript.
//
// Thread Safety:
//
//	TypeScriptParser is safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance.
type TypeScriptParser struct {
	opts options
}

// NewTypeScriptParser creates a TypeScriptParser.
func NewTypeScriptParser(opts ...Option) *TypeScriptParser {
	return &TypeScriptParser{opts: newOptions(opts)}
}

// Language returns "typescript".
func (p *TypeScriptParser) Language() string { return "typescript" }

// Extensions returns the extensions handled by this parser.
func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mts", ".mjs", ".cjs"}
}

// Parse extracts all top-level declarations from TypeScript or
// JavaScript source.
//
// The parse is error-tolerant: syntactically broken input yields
// partial results with ParsedFile.Errors populated. A non-nil error
// means the content could not be parsed at all (too large, invalid
// UTF-8, canceled context).
func (p *TypeScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*ParsedFile, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, "typescript", filePath, len(content))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.opts.maxFileSize {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.opts.maxFileSize)
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	if strings.HasSuffix(filePath, ".tsx") || strings.HasSuffix(filePath, ".jsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	result := &ParsedFile{
		Path:     filePath,
		Language: "typescript",
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

	// Names exported through a bare clause ("export { a, b }") refer
	// to declarations parsed elsewhere in the pass; they are marked
	// exported afterwards.
	clauseExports := make(map[string]struct{})

	for i := 0; i < int(root.ChildCount()); i++ {
		p.extractTopLevel(root.Child(i), content, filePath, result, false, clauseExports)
	}
	for i := range result.Symbols {
		if _, ok := clauseExports[result.Symbols[i].Name]; ok {
			result.Symbols[i].Exported = true
		}
	}

	result.Exports = exportedNames(result.Symbols)
	appendSymbolChunks(result, content)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, len(result.Symbols), len(result.Errors))
	recordParseMetrics(ctx, "typescript", time.Since(start), len(result.Symbols), true)
	return result, nil
}

// extractTopLevel dispatches one top-level node. Export statements
// recurse into their wrapped declaration with exported set.
func (p *TypeScriptParser) extractTopLevel(node *sitter.Node, content []byte, filePath string, result *ParsedFile, exported bool, clauseExports map[string]struct{}) {
	switch node.Type() {
	case tsNodeImportStatement:
		p.extractTSImport(node, content, filePath, result)
	case tsNodeExportStatement:
		p.extractExport(node, content, filePath, result, clauseExports)
	case tsNodeFunctionDeclaration, tsNodeGeneratorFunctionDecl:
		p.extractTSFunction(node, content, filePath, result, exported)
	case tsNodeClassDeclaration, tsNodeAbstractClassDecl:
		p.extractTSClass(node, content, filePath, result, exported)
	case tsNodeInterfaceDeclaration:
		p.extractNamedType(node, content, filePath, result, exported, SymbolKindInterface, "interface")
	case tsNodeTypeAliasDeclaration:
		p.extractNamedType(node, content, filePath, result, exported, SymbolKindType, "type")
	case tsNodeEnumDeclaration:
		p.extractNamedType(node, content, filePath, result, exported, SymbolKindEnum, "enum")
	case tsNodeLexicalDeclaration:
		declKind := tsNodeLet
		for i := 0; i < int(node.ChildCount()); i++ {
			if t := node.Child(i).Type(); t == tsNodeConst || t == tsNodeLet {
				declKind = t
				break
			}
		}
		p.extractTSVariables(node, content, filePath, result, exported, declKind)
	case tsNodeVariableDeclaration:
		p.extractTSVariables(node, content, filePath, result, exported, "var")
	}
}

// extractExport unwraps an export statement. Wrapped declarations are
// extracted as exported; bare clauses record local names for the
// post-pass.
func (p *TypeScriptParser) extractExport(node *sitter.Node, content []byte, filePath string, result *ParsedFile, clauseExports map[string]struct{}) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "export_clause":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "export_specifier" {
					if name := fieldText(spec, "name", content); name != "" {
						clauseExports[name] = struct{}{}
					}
				}
			}
		case tsNodeIdentifier:
			// export default foo;
			clauseExports[nodeText(child, content)] = struct{}{}
		default:
			p.extractTopLevel(child, content, filePath, result, true, clauseExports)
		}
	}
}

func (p *TypeScriptParser) extractTSImport(node *sitter.Node, content []byte, filePath string, result *ParsedFile) {
	imp := Import{Line: int(node.StartPoint().Row) + 1}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case tsNodeImportClause:
			p.extractImportClause(child, content, &imp)
		case tsNodeString:
			imp.Path = tsStringContent(child, content)
		}
	}
	if imp.Path == "" {
		return
	}

	imp.ResolvedPath = ResolveTSImport(filePath, imp.Path)
	result.Imports = append(result.Imports, imp)
}

func (p *TypeScriptParser) extractImportClause(node *sitter.Node, content []byte, imp *Import) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case tsNodeIdentifier:
			imp.Alias = nodeText(child, content)
			imp.IsDefault = true
		case tsNodeNamespaceImport:
			imp.IsNamespace = true
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == tsNodeIdentifier {
					imp.Alias = nodeText(gc, content)
				}
			}
		case tsNodeNamedImports:
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == tsNodeImportSpecifier {
					name := fieldText(spec, "name", content)
					if name == "" {
						continue
					}
					if alias := fieldText(spec, "alias", content); alias != "" {
						name = name + " as " + alias
					}
					imp.Names = append(imp.Names, name)
				}
			}
		}
	}
}

func (p *TypeScriptParser) extractTSFunction(node *sitter.Node, content []byte, filePath string, result *ParsedFile, exported bool) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	if !p.opts.includePrivate && !exported {
		return
	}

	signature := "function " + name + fieldText(node, "parameters", content)
	if ret := tsTypeAnnotation(node.ChildByFieldName("return_type"), content); ret != "" {
		signature += ": " + ret
	}
	if hasChildOfType(node, tsNodeAsync) {
		signature = "async " + signature
	}

	qualified := QualifiedName(filePath, name)
	sym := Symbol{
		Name:          name,
		QualifiedName: qualified,
		Kind:          SymbolKindFunction,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     signature,
		DocComment:    tsDocComment(node, content),
		Exported:      exported,
	}
	if body := node.ChildByFieldName("body"); body != nil {
		sym.Complexity = tsComplexity(body, content)
		p.extractTSCalls(body, content, qualified, result)
	}
	result.Symbols = append(result.Symbols, sym)
}

func (p *TypeScriptParser) extractTSClass(node *sitter.Node, content []byte, filePath string, result *ParsedFile, exported bool) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	if !p.opts.includePrivate && !exported {
		return
	}

	result.Symbols = append(result.Symbols, Symbol{
		Name:          name,
		QualifiedName: QualifiedName(filePath, name),
		Kind:          SymbolKindClass,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     "class " + name,
		DocComment:    tsDocComment(node, content),
		Exported:      exported,
	})

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		if member := body.Child(i); member.Type() == tsNodeMethodDefinition {
			p.extractTSMethod(member, content, filePath, name, result)
		}
	}
}

func (p *TypeScriptParser) extractTSMethod(node *sitter.Node, content []byte, filePath, className string, result *ParsedFile) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}

	exported := !tsIsPrivateMember(node, content, name)
	if !p.opts.includePrivate && !exported {
		return
	}

	signature := name + fieldText(node, "parameters", content)
	if ret := tsTypeAnnotation(node.ChildByFieldName("return_type"), content); ret != "" {
		signature += ": " + ret
	}
	if hasChildOfType(node, tsNodeAsync) {
		signature = "async " + signature
	}

	qualified := QualifiedName(filePath, className+"."+name)
	sym := Symbol{
		Name:          name,
		QualifiedName: qualified,
		Kind:          SymbolKindMethod,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     signature,
		DocComment:    tsDocComment(node, content),
		Receiver:      className,
		Exported:      exported,
	}
	if body := node.ChildByFieldName("body"); body != nil {
		sym.Complexity = tsComplexity(body, content)
		p.extractTSCalls(body, content, qualified, result)
	}
	result.Symbols = append(result.Symbols, sym)
}

// extractNamedType handles interface, type alias, and enum
// declarations, which all reduce to a named symbol with no body
// analysis.
func (p *TypeScriptParser) extractNamedType(node *sitter.Node, content []byte, filePath string, result *ParsedFile, exported bool, kind SymbolKind, keyword string) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	if !p.opts.includePrivate && !exported {
		return
	}

	result.Symbols = append(result.Symbols, Symbol{
		Name:          name,
		QualifiedName: QualifiedName(filePath, name),
		Kind:          kind,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     keyword + " " + name,
		DocComment:    tsDocComment(node, content),
		Exported:      exported,
	})
}

// extractTSVariables handles const/let/var declarations. Declarators
// initialized with a function value become function symbols; a
// require() initializer becomes a CommonJS import instead.
func (p *TypeScriptParser) extractTSVariables(node *sitter.Node, content []byte, filePath string, result *ParsedFile, exported bool, declKind string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		decl := node.Child(i)
		if decl.Type() != tsNodeVariableDeclarator {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != tsNodeIdentifier {
			continue
		}
		name := nodeText(nameNode, content)
		value := decl.ChildByFieldName("value")

		if value != nil && value.Type() == tsNodeCallExpression {
			if modulePath := tsRequirePath(value, content); modulePath != "" {
				result.Imports = append(result.Imports, Import{
					Path:         modulePath,
					Alias:        name,
					IsNamespace:  true,
					Line:         int(node.StartPoint().Row) + 1,
					ResolvedPath: ResolveTSImport(filePath, modulePath),
				})
				continue
			}
		}

		if !p.opts.includePrivate && !exported {
			continue
		}

		sym := Symbol{
			Name:          name,
			QualifiedName: QualifiedName(filePath, name),
			Kind:          SymbolKindVariable,
			StartLine:     int(decl.StartPoint().Row) + 1,
			EndLine:       int(decl.EndPoint().Row) + 1,
			Signature:     declKind + " " + name,
			DocComment:    tsDocComment(node, content),
			Exported:      exported,
		}
		if declKind == tsNodeConst {
			sym.Kind = SymbolKindConstant
		}

		if value != nil && tsIsFunctionValue(value.Type()) {
			sym.Kind = SymbolKindFunction
			sym.Signature = declKind + " " + name + " = " + tsFunctionValueSignature(value, content)
			if body := value.ChildByFieldName("body"); body != nil {
				sym.Complexity = tsComplexity(body, content)
				p.extractTSCalls(body, content, sym.QualifiedName, result)
			}
		}
		result.Symbols = append(result.Symbols, sym)
	}
}

// extractTSCalls walks a body recording every call expression
// attributed to the enclosing symbol.
func (p *TypeScriptParser) extractTSCalls(body *sitter.Node, content []byte, caller string, result *ParsedFile) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == tsNodeCallExpression {
			if callee := tsCalleeName(n.ChildByFieldName("function"), content); callee != "" {
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

// tsCalleeName extracts the invoked name from a call's function node.
// Member calls keep a single qualifier when the object is a plain
// identifier or this; deeper chains degrade to the bare property name.
func tsCalleeName(fn *sitter.Node, content []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case tsNodeIdentifier:
		return nodeText(fn, content)
	case tsNodeMemberExpression:
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return ""
		}
		obj := fn.ChildByFieldName("object")
		if obj != nil && (obj.Type() == tsNodeIdentifier || obj.Type() == "this") {
			return nodeText(obj, content) + "." + nodeText(prop, content)
		}
		return nodeText(prop, content)
	case tsNodeParenthesized, "non_null_expression":
		if fn.NamedChildCount() > 0 {
			return tsCalleeName(fn.NamedChild(0), content)
		}
	}
	return ""
}

// tsComplexity counts decision points: 1 plus each branch, loop,
// switch case, catch clause, ternary, and short-circuit operator.
func tsComplexity(body *sitter.Node, content []byte) int {
	complexity := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case tsNodeIfStatement, tsNodeForStatement, tsNodeForInStatement,
			tsNodeWhileStatement, tsNodeDoStatement,
			tsNodeSwitchCase, tsNodeCatchClause, tsNodeTernary:
			complexity++
		case tsNodeBinaryExpression:
			if op := n.ChildByFieldName("operator"); op != nil {
				switch nodeText(op, content) {
				case "&&", "||", "??":
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

// tsRequirePath returns the module path of a require() call, or ""
// when the call is not a CommonJS require.
func tsRequirePath(call *sitter.Node, content []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != tsNodeIdentifier || nodeText(fn, content) != "require" {
		return ""
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		if arg := args.Child(i); arg.Type() == tsNodeString {
			return tsStringContent(arg, content)
		}
	}
	return ""
}

func tsIsFunctionValue(nodeType string) bool {
	switch nodeType {
	case tsNodeArrowFunction, tsNodeFunctionExpr, "function", "generator_function":
		return true
	}
	return false
}

func tsFunctionValueSignature(value *sitter.Node, content []byte) string {
	signature := fieldText(value, "parameters", content)
	if signature == "" {
		// Single-parameter arrow without parentheses.
		if param := value.ChildByFieldName("parameter"); param != nil {
			signature = nodeText(param, content)
		}
	}
	if ret := tsTypeAnnotation(value.ChildByFieldName("return_type"), content); ret != "" {
		signature += ": " + ret
	}
	signature += " => ..."
	if hasChildOfType(value, tsNodeAsync) {
		signature = "async " + signature
	}
	return signature
}

// tsIsPrivateMember reports whether a class member is inaccessible
// outside its class: a private accessibility modifier or a #-prefixed
// name.
func tsIsPrivateMember(node *sitter.Node, content []byte, name string) bool {
	if strings.HasPrefix(name, "#") {
		return true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "accessibility_modifier" {
			return nodeText(child, content) == "private"
		}
	}
	return false
}

// tsTypeAnnotation returns the type text of a type_annotation node,
// without the leading colon.
func tsTypeAnnotation(annotation *sitter.Node, content []byte) string {
	if annotation == nil {
		return ""
	}
	for i := 0; i < int(annotation.ChildCount()); i++ {
		if child := annotation.Child(i); child.Type() != ":" {
			return nodeText(child, content)
		}
	}
	return ""
}

func hasChildOfType(node *sitter.Node, childType string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == childType {
			return true
		}
	}
	return false
}

// tsStringContent extracts the content of a string literal node.
func tsStringContent(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == tsNodeStringFragment {
			return nodeText(child, content)
		}
	}
	return strings.Trim(nodeText(node, content), `"'`)
}

// tsDocComment extracts the JSDoc block immediately preceding a
// declaration. Declarations wrapped in an export statement look at
// the export statement's preceding sibling.
func tsDocComment(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	if prev := node.PrevSibling(); prev != nil && prev.Type() == tsNodeComment {
		if text := nodeText(prev, content); strings.HasPrefix(text, "/**") {
			return text
		}
	}
	if parent := node.Parent(); parent != nil && parent.Type() == tsNodeExportStatement {
		if prev := parent.PrevSibling(); prev != nil && prev.Type() == tsNodeComment {
			if text := nodeText(prev, content); strings.HasPrefix(text, "/**") {
				return text
			}
		}
	}
	return ""
}

// Compile-time interface compliance check.
var _ FileParser = (*TypeScriptParser)(nil)
