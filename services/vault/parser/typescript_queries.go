// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

// TypeScript Tree-sitter Node Types
//
// The TypeScript parser uses direct node traversal rather than
// tree-sitter's query language. The same traversal handles JavaScript:
// the TSX/TypeScript grammars are supersets of the JS grammar.
//
// Reference: https://github.com/tree-sitter/tree-sitter-typescript
const (
	// Import-related nodes
	tsNodeImportStatement = "import_statement"
	tsNodeImportClause    = "import_clause"
	tsNodeNamespaceImport = "namespace_import"
	tsNodeNamedImports    = "named_imports"
	tsNodeImportSpecifier = "import_specifier"
	tsNodeString          = "string"
	tsNodeStringFragment  = "string_fragment"

	// Export-related nodes
	tsNodeExportStatement = "export_statement"

	// Declaration nodes
	tsNodeFunctionDeclaration   = "function_declaration"
	tsNodeGeneratorFunctionDecl = "generator_function_declaration"
	tsNodeClassDeclaration      = "class_declaration"
	tsNodeAbstractClassDecl     = "abstract_class_declaration"
	tsNodeInterfaceDeclaration  = "interface_declaration"
	tsNodeTypeAliasDeclaration  = "type_alias_declaration"
	tsNodeEnumDeclaration       = "enum_declaration"
	tsNodeLexicalDeclaration    = "lexical_declaration"
	tsNodeVariableDeclaration   = "variable_declaration"
	tsNodeVariableDeclarator    = "variable_declarator"

	// Class-related nodes
	tsNodeClassBody        = "class_body"
	tsNodeMethodDefinition = "method_definition"

	// Function-related nodes
	tsNodeFormalParameters = "formal_parameters"
	tsNodeArrowFunction    = "arrow_function"
	tsNodeFunctionExpr     = "function_expression"
	tsNodeStatementBlock   = "statement_block"
	tsNodeTypeAnnotation   = "type_annotation"

	// Identifier nodes
	tsNodeIdentifier         = "identifier"
	tsNodePropertyIdentifier = "property_identifier"
	tsNodeTypeIdentifier     = "type_identifier"

	// Call and expression nodes
	tsNodeCallExpression   = "call_expression"
	tsNodeMemberExpression = "member_expression"
	tsNodeParenthesized    = "parenthesized_expression"
	tsNodeBinaryExpression = "binary_expression"
	tsNodeTernary          = "ternary_expression"

	// Complexity-relevant statements
	tsNodeIfStatement    = "if_statement"
	tsNodeForStatement   = "for_statement"
	tsNodeForInStatement = "for_in_statement"
	tsNodeWhileStatement = "while_statement"
	tsNodeDoStatement    = "do_statement"
	tsNodeSwitchCase     = "switch_case"
	tsNodeCatchClause    = "catch_clause"

	// Keyword and other nodes
	tsNodeComment = "comment"
	tsNodeAsync   = "async"
	tsNodeConst   = "const"
	tsNodeLet     = "let"
	tsNodeDefault = "default"
	tsNodeType    = "type"
)
