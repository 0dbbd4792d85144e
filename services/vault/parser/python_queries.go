// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

// Python Tree-sitter Node Types
//
// The Python parser uses direct node traversal rather than
// tree-sitter's query language.
//
// Reference: https://github.com/tree-sitter/tree-sitter-python
const (
	// Import-related nodes
	pyNodeImportStatement = "import_statement"
	pyNodeImportFrom      = "import_from_statement"
	pyNodeRelativeImport  = "relative_import"
	pyNodeImportPrefix    = "import_prefix"
	pyNodeDottedName      = "dotted_name"
	pyNodeAliasedImport   = "aliased_import"
	pyNodeWildcardImport  = "wildcard_import"

	// Definition nodes
	pyNodeFunctionDef  = "function_definition"
	pyNodeClassDef     = "class_definition"
	pyNodeDecoratedDef = "decorated_definition"
	pyNodeDecorator    = "decorator"
	pyNodeBlock        = "block"

	// Statement and expression nodes
	pyNodeExpressionStatement = "expression_statement"
	pyNodeAssignment          = "assignment"
	pyNodeCall                = "call"
	pyNodeAttribute           = "attribute"
	pyNodeIdentifier          = "identifier"
	pyNodeString              = "string"
	pyNodeParenthesized       = "parenthesized_expression"

	// Complexity-relevant nodes
	pyNodeIfStatement     = "if_statement"
	pyNodeElifClause      = "elif_clause"
	pyNodeForStatement    = "for_statement"
	pyNodeWhileStatement  = "while_statement"
	pyNodeExceptClause    = "except_clause"
	pyNodeConditionalExpr = "conditional_expression"
	pyNodeBooleanOperator = "boolean_operator"
	pyNodeCaseClause      = "case_clause"

	// Keywords
	pyNodeAsync  = "async"
	pyNodeImport = "import"
)
