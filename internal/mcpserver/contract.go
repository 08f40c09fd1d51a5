package mcpserver

// PostFormatURI identifies the post format resource.
const PostFormatURI = "brightline://post-format"

// PostFormatContract describes the Markdown post format accepted by the
// create_post tool and produced by read_post.
const PostFormatContract = `# Brightline Post Format Contract

Every blog post submitted to Brightline MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title          # REQUIRED (falls back to the first H1)
slug: url-friendly-slug              # OPTIONAL, generated from the title
excerpt: One or two sentences.       # OPTIONAL, generated from the body
category: SEO                        # OPTIONAL, existing category name or slug
status: draft                        # OPTIONAL, draft (default) or published
tags: [branding, growth]             # OPTIONAL, YAML list or "a, b" string
meta_title: Title for search engines # OPTIONAL, max 70 characters
meta_description: Search snippet.    # OPTIONAL, max 160 characters
featured_image: /uploads/cover.png   # OPTIONAL, URL returned by upload_asset
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **YAML frontmatter comes first.** The ` + "`---`" + ` fences must open the file.
2. **` + "`title`" + ` is required.** It is shown in listings, the page title and links.
3. **` + "`status`" + `** is ` + "`draft`" + ` or ` + "`published`" + `. New posts should stay drafts
   until a human has reviewed them.
4. **` + "`category`" + `** must name an existing category (see ` + "`list_categories`" + `).
5. **Tags** are short lowercase words; inline ` + "`#tags`" + ` in the body are added too.
6. **Slugs** use lowercase letters, digits and single hyphens. Duplicates get a
   ` + "`-2`" + `, ` + "`-3`" + ` suffix.
7. **Encoding** is UTF-8. Paragraphs are separated by a blank line.

## Images

- Upload images with the ` + "`upload_asset`" + ` tool. It returns a ` + "`url`" + ` for
  ` + "`featured_image`" + ` and a ` + "`markdownImage`" + ` snippet for the body.
- Supported formats: png, jpg, jpeg, gif, webp (max 10 MB).

## Example

` + "```" + `markdown
---
title: Five branding mistakes startups make
category: Branding
status: draft
tags: [branding, startups]
meta_description: Avoid the five branding mistakes we see most often.
featured_image: /uploads/20260301-3f1c.png
---

Most startups treat branding as a logo. It is more than that.

![Moodboard](/uploads/20260301-9a2e.png)
` + "```" + `
`
