// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

// Markdown Tree-sitter Node Types
//
// The markdown grammar parses block structure only; inline content
// (emphasis, inline links) stays inside opaque "inline" nodes, so
// inline links are extracted lexically instead.
//
// Reference: https://github.com/MDeiml/tree-sitter-markdown
const (
	mdNodeDocument      = "document"
	mdNodeSection       = "section"
	mdNodeAtxHeading    = "atx_heading"
	mdNodeSetextHeading = "setext_heading"
	mdNodeParagraph     = "paragraph"
	mdNodeInline        = "inline"

	// ATX heading level markers
	mdNodeH1Marker = "atx_h1_marker"
	mdNodeH2Marker = "atx_h2_marker"
	mdNodeH3Marker = "atx_h3_marker"
	mdNodeH4Marker = "atx_h4_marker"
	mdNodeH5Marker = "atx_h5_marker"
	mdNodeH6Marker = "atx_h6_marker"

	// Setext heading underlines
	mdNodeSetextH1 = "setext_h1_underline"
	mdNodeSetextH2 = "setext_h2_underline"

	// Link reference definitions
	mdNodeLinkRefDef = "link_reference_definition"
	mdNodeLinkLabel  = "link_label"
	mdNodeLinkDest   = "link_destination"
	mdNodeLinkTitle  = "link_title"
)
