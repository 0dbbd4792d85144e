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
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	tree_sitter_markdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
	"gopkg.in/yaml.v3"
)

// inlineLinkPattern matches [text](url) and ![alt](src); the leading
// capture distinguishes images, which are skipped.
var inlineLinkPattern = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\s]+)[^)]*\)`)

// MarkdownParser extracts headings, links, sections, and frontmatter
// from markdown documents.
//
// YAML frontmatter is detected lexically before the tree-sitter pass:
// the block grammar would otherwise read the fence lines as thematic
// breaks or setext underlines and invent phantom headings.
//
// Thread Safety:
//
//	MarkdownParser is safe for concurrent use. Each ParseDocument
//	call creates its own tree-sitter parser instance.
type MarkdownParser struct {
	opts options
}

// NewMarkdownParser creates a MarkdownParser.
func NewMarkdownParser(opts ...Option) *MarkdownParser {
	return &MarkdownParser{opts: newOptions(opts)}
}

// Extensions returns the extensions handled by this parser.
func (p *MarkdownParser) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// ParseDocument extracts document structure from markdown content.
//
// A non-nil error means the content could not be parsed at all (too
// large, invalid UTF-8, canceled context); structural oddities in the
// markdown itself never fail the parse.
func (p *MarkdownParser) ParseDocument(ctx context.Context, content []byte, filePath string) (*ParsedDocument, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, "markdown", filePath, len(content))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.opts.maxFileSize {
		recordParseMetrics(ctx, "markdown", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.opts.maxFileSize)
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "markdown", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	frontmatter, fmEndLine := parseFrontmatter(content)

	doc := &ParsedDocument{
		Path:        filePath,
		Hash:        hex.EncodeToString(hash[:]),
		Frontmatter: frontmatter,
		Headings:    make([]Heading, 0),
		Links:       make([]Link, 0),
	}

	parser := sitter.NewParser()
	parser.SetLanguage(tree_sitter_markdown.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "markdown", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if root := tree.RootNode(); root != nil {
		p.walkDocument(root, content, fmEndLine, doc)
	}
	p.extractInlineLinks(content, doc)

	lines := strings.Split(string(content), "\n")
	doc.Sections = buildSections(doc.Headings, lines)
	doc.Title = documentTitle(doc)
	buildDocumentChunks(doc, content)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, len(doc.Headings), 0)
	recordParseMetrics(ctx, "markdown", time.Since(start), len(doc.Headings), true)
	return doc, nil
}

// walkDocument collects headings and link reference definitions in
// source order. Headings inside the frontmatter range are phantoms
// produced by the fence lines and are dropped.
func (p *MarkdownParser) walkDocument(node *sitter.Node, content []byte, fmEndLine int, doc *ParsedDocument) {
	switch node.Type() {
	case mdNodeAtxHeading:
		if h, ok := atxHeading(node, content); ok && h.Line > fmEndLine {
			doc.Headings = append(doc.Headings, h)
		}
		return
	case mdNodeSetextHeading:
		if h, ok := setextHeading(node, content); ok && h.Line > fmEndLine {
			doc.Headings = append(doc.Headings, h)
		}
		return
	case mdNodeLinkRefDef:
		if l, ok := linkReference(node, content); ok {
			doc.Links = append(doc.Links, l)
		}
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkDocument(node.Child(i), content, fmEndLine, doc)
	}
}

// extractInlineLinks scans the raw content for [text](url) links. The
// block grammar leaves inline content unparsed, so this is lexical;
// image embeds are skipped.
func (p *MarkdownParser) extractInlineLinks(content []byte, doc *ParsedDocument) {
	text := string(content)
	for _, m := range inlineLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		if text[m[2]:m[3]] == "!" {
			continue
		}
		doc.Links = append(doc.Links, Link{
			Text: text[m[4]:m[5]],
			URL:  text[m[6]:m[7]],
			Line: strings.Count(text[:m[0]], "\n") + 1,
		})
	}
}

func atxHeading(node *sitter.Node, content []byte) (Heading, bool) {
	h := Heading{Line: int(node.StartPoint().Row) + 1}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case mdNodeH1Marker:
			h.Level = 1
		case mdNodeH2Marker:
			h.Level = 2
		case mdNodeH3Marker:
			h.Level = 3
		case mdNodeH4Marker:
			h.Level = 4
		case mdNodeH5Marker:
			h.Level = 5
		case mdNodeH6Marker:
			h.Level = 6
		case mdNodeInline:
			h.Text = strings.TrimSpace(nodeText(child, content))
		}
	}
	return h, h.Level > 0 && h.Text != ""
}

func setextHeading(node *sitter.Node, content []byte) (Heading, bool) {
	h := Heading{Line: int(node.StartPoint().Row) + 1}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case mdNodeSetextH1:
			h.Level = 1
		case mdNodeSetextH2:
			h.Level = 2
		case mdNodeParagraph, mdNodeInline:
			if inline := firstDescendant(child, mdNodeInline); inline != nil {
				h.Text = strings.TrimSpace(nodeText(inline, content))
			} else {
				h.Text = strings.TrimSpace(nodeText(child, content))
			}
		}
	}
	return h, h.Level > 0 && h.Text != ""
}

func linkReference(node *sitter.Node, content []byte) (Link, bool) {
	l := Link{Line: int(node.StartPoint().Row) + 1}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case mdNodeLinkLabel:
			label := nodeText(child, content)
			label = strings.TrimPrefix(label, "[")
			label = strings.TrimSuffix(label, "]")
			l.Text = strings.TrimSpace(label)
		case mdNodeLinkDest:
			l.URL = nodeText(child, content)
		}
	}
	return l, l.Text != ""
}

// firstDescendant returns the first node of the given type in a
// depth-first walk, or nil.
func firstDescendant(node *sitter.Node, nodeType string) *sitter.Node {
	if node.Type() == nodeType {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstDescendant(node.Child(i), nodeType); found != nil {
			return found
		}
	}
	return nil
}

// parseFrontmatter reads a YAML frontmatter block opened by "---" on
// the first line and closed by "---" or "...". It returns the parsed
// key/value pairs with scalar values stringified, and the 1-indexed
// line of the closing fence (0 when there is no frontmatter).
// Unterminated blocks are not frontmatter. Unparseable YAML inside a
// terminated block still consumes the block.
func parseFrontmatter(content []byte) (map[string]string, int) {
	lines := strings.Split(string(content), "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "---" {
		return nil, 0
	}
	for i := 1; i < len(lines); i++ {
		fence := strings.TrimRight(lines[i], "\r")
		if fence != "---" && fence != "..." {
			continue
		}
		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:i], "\n")), &parsed); err != nil {
			return nil, i + 1
		}
		if len(parsed) == 0 {
			return nil, i + 1
		}
		out := make(map[string]string, len(parsed))
		for k, v := range parsed {
			out[k] = fmt.Sprint(v)
		}
		return out, i + 1
	}
	return nil, 0
}

// buildSections derives one section per heading, spanning from the
// heading line to the line before the next heading (or end of file).
func buildSections(headings []Heading, lines []string) []Section {
	sections := make([]Section, 0, len(headings))
	for i, h := range headings {
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].Line - 1
		}
		if end < h.Line {
			end = h.Line
		}
		sections = append(sections, Section{
			Heading:   h.Text,
			Level:     h.Level,
			StartLine: h.Line,
			EndLine:   end,
			Content:   sliceLines(lines, h.Line, end),
		})
	}
	return sections
}

// documentTitle picks the first h1, falling back to the first heading
// of any level, then to a frontmatter title.
func documentTitle(doc *ParsedDocument) string {
	for _, h := range doc.Headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	if len(doc.Headings) > 0 {
		return doc.Headings[0].Text
	}
	if title, ok := doc.Frontmatter["title"]; ok {
		return title
	}
	return ""
}

// Compile-time interface compliance check.
var _ DocumentParser = (*MarkdownParser)(nil)
