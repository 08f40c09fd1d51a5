// Package parser reads blog posts written as Markdown files with a YAML
// frontmatter block, and writes them back in the same format.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

const delim = "---"

// Frontmatter is the metadata block of a post file.
type Frontmatter struct {
	Title           string  `yaml:"title,omitempty"`
	Slug            string  `yaml:"slug,omitempty"`
	Excerpt         string  `yaml:"excerpt,omitempty"`
	Category        string  `yaml:"category,omitempty"`
	Status          string  `yaml:"status,omitempty"`
	Tags            TagList `yaml:"tags,omitempty"`
	MetaTitle       string  `yaml:"meta_title,omitempty"`
	MetaDescription string  `yaml:"meta_description,omitempty"`
	FeaturedImage   string  `yaml:"featured_image,omitempty"`
}

// TagList accepts either a YAML sequence or a comma separated string.
type TagList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, s := range strings.Split(node.Value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*t = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*t = out
		return nil
	}
	return fmt.Errorf("parser: tags must be a list or a string")
}

// Document is a parsed post file.
type Document struct {
	Meta Frontmatter
	Body string
	// Title is the frontmatter title, or the first H1 of the body.
	Title string
	// Tags merges frontmatter tags and inline #tags, without duplicates.
	Tags []string
	// HasFrontmatter is false when the file has no valid metadata block.
	HasFrontmatter bool
}

// Parse splits data into frontmatter and body. A missing or invalid
// frontmatter block is not an error: the whole file becomes the body.
func Parse(data []byte) (*Document, error) {
	block, body, ok := splitFrontmatter(data)

	doc := &Document{Body: body}
	if ok {
		if err := yaml.Unmarshal(block, &doc.Meta); err != nil {
			doc.Meta = Frontmatter{}
			doc.Body = string(data)
		} else {
			doc.HasFrontmatter = true
		}
	}
	doc.Title = deriveTitle(doc.Meta, doc.Body)
	doc.Tags = mergeTags(doc.Meta.Tags, doc.Body)
	return doc, nil
}

// splitFrontmatter separates the YAML block between leading --- lines from
// the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	return block, strings.TrimLeft(string(after), "\n\r"), true
}

// mergeTags returns frontmatter tags followed by inline #tags, deduplicated
// case-insensitively.
func mergeTags(meta []string, body string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	for _, t := range meta {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise the empty string.
func deriveTitle(fm Frontmatter, body string) string {
	if t := strings.TrimSpace(fm.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Format renders meta and body as a post file.
func Format(meta Frontmatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	buf.WriteString(delim + "\n\n")
	buf.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
