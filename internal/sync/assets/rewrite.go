package assets

import (
	"context"
	"strings"
)

// Fields describes where an entity keeps local asset references.
type Fields struct {
	Local  string   // field holding the local path, e.g. "localImage"
	Remote string   // field receiving the remote reference, e.g. "image"
	Nested []string // array fields whose elements carry the same fields, e.g. "variants"
}

// Rewriter replaces local asset paths in documents with uploaded references.
type Rewriter struct {
	uploader Uploader
	fields   Fields
}

// NewRewriter creates a Rewriter.
func NewRewriter(uploader Uploader, fields Fields) *Rewriter {
	return &Rewriter{uploader: uploader, fields: fields}
}

// Rewrite uploads every local asset referenced by doc, its nested children
// and a $set block, and rewrites them in place. It returns the number of
// rewritten references. On error doc may be partially rewritten and must
// not be transmitted.
func (r *Rewriter) Rewrite(ctx context.Context, doc map[string]interface{}) (int, error) {
	if doc == nil {
		return 0, nil
	}

	n, err := r.rewriteOne(ctx, doc)
	if err != nil {
		return n, err
	}

	for _, field := range r.fields.Nested {
		children, ok := doc[field].([]interface{})
		if !ok {
			continue
		}
		for _, child := range children {
			m, ok := child.(map[string]interface{})
			if !ok {
				continue
			}
			c, err := r.rewriteOne(ctx, m)
			n += c
			if err != nil {
				return n, err
			}
		}
	}

	if set, ok := doc["$set"].(map[string]interface{}); ok {
		c, err := r.Rewrite(ctx, set)
		n += c
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (r *Rewriter) rewriteOne(ctx context.Context, m map[string]interface{}) (int, error) {
	path, ok := m[r.fields.Local].(string)
	if !ok || path == "" {
		return 0, nil
	}

	ref := path
	if !isRemote(path) {
		var err error
		if ref, err = r.uploader.Upload(ctx, path); err != nil {
			return 0, err
		}
	}

	m[r.fields.Remote] = ref
	delete(m, r.fields.Local)
	return 1, nil
}

func isRemote(path string) bool {
	for _, scheme := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}
