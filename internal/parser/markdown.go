package parser

import (
	"os"
	"regexp"
	"strings"

	"document-qa/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func parseMarkdown(filePath, source string) ([]models.Segment, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	plain, err := markdownToText(data)
	if err != nil {
		return nil, err
	}
	return appendSegment(nil, plain, source, defaultPageNumber), nil
}

// markdownToText renders the text content of a markdown document without markup.
// Paragraphs and headings end with a blank line so the chunker can split on them.
func markdownToText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				b.WriteString("\n")
				if n.Kind() == ast.KindParagraph || n.Kind() == ast.KindHeading {
					b.WriteString("\n")
				}
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(b.String(), "\n\n")), nil
}
