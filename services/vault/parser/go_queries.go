// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

// Go Tree-sitter Node Types
//
// The Go parser uses direct node traversal rather than tree-sitter's
// query language for precise control over extraction. These constants
// match the node types defined in tree-sitter-go.
//
// Reference: https://github.com/tree-sitter/tree-sitter-go/blob/master/src/grammar.json
const (
	// Top-level declarations
	goNodePackageClause       = "package_clause"
	goNodeImportDeclaration   = "import_declaration"
	goNodeFunctionDeclaration = "function_declaration"
	goNodeMethodDeclaration   = "method_declaration"
	goNodeTypeDeclaration     = "type_declaration"
	goNodeVarDeclaration      = "var_declaration"
	goNodeConstDeclaration    = "const_declaration"

	// Import-related nodes
	goNodeImportSpec     = "import_spec"
	goNodeImportSpecList = "import_spec_list"

	// Type-related nodes
	goNodeTypeSpec      = "type_spec"
	goNodeTypeAlias     = "type_alias"
	goNodeStructType    = "struct_type"
	goNodeInterfaceType = "interface_type"
	goNodePointerType   = "pointer_type"
	goNodeGenericType   = "generic_type"

	// Variable-related nodes
	goNodeVarSpec   = "var_spec"
	goNodeConstSpec = "const_spec"

	// Identifier nodes
	goNodeIdentifier        = "identifier"
	goNodePackageIdentifier = "package_identifier"
	goNodeTypeIdentifier    = "type_identifier"

	// Call and expression nodes
	goNodeCallExpression   = "call_expression"
	goNodeSelectorExpr     = "selector_expression"
	goNodeIndexExpression  = "index_expression"
	goNodeParenthesized    = "parenthesized_expression"
	goNodeBinaryExpression = "binary_expression"

	// Complexity-relevant statements
	goNodeIfStatement     = "if_statement"
	goNodeForStatement    = "for_statement"
	goNodeExpressionCase  = "expression_case"
	goNodeTypeCase        = "type_case"
	goNodeCommCase        = "communication_case"
	goNodeDefaultCase     = "default_case"

	// Other nodes
	goNodeComment      = "comment"
	goNodeInterpString = "interpreted_string_literal"
	goNodeRawStringLit = "raw_string_literal"
)

// goBuiltins are call targets that never resolve to project symbols.
// Calls to them are not recorded.
var goBuiltins = map[string]struct{}{
	"append": {}, "cap": {}, "clear": {}, "close": {}, "copy": {},
	"delete": {}, "len": {}, "make": {}, "max": {}, "min": {},
	"new": {}, "panic": {}, "print": {}, "println": {}, "recover": {},
}
