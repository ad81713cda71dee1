package conversation

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"text/template"
)

const maxTemplateOutput = 16 * 1024

// templateCache caches parsed templates to avoid re-parsing on every call.
var templateCache sync.Map

// templateCtx is the data available to step text, e.g. {{.Answers.name}}.
type templateCtx struct {
	SessionID string
	Answers   map[string]string
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("template output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

// RenderText expands answer references in step text. Text without
// template actions is returned unchanged.
func RenderText(text, sessionID string, answers map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var tmpl *template.Template
	if cached, ok := templateCache.Load(text); ok {
		tmpl = cached.(*template.Template)
	} else {
		var err error
		tmpl, err = template.New("").Option("missingkey=zero").Parse(text)
		if err != nil {
			return "", err
		}
		templateCache.Store(text, tmpl)
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxTemplateOutput}
	data := templateCtx{SessionID: sessionID, Answers: maps.Clone(answers)}
	if err := tmpl.Execute(lw, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
