package hxreload

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Flash levels for toast notifications.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// toastsID is the id of the toast container.
const toastsID = "toasts"

// Flash is a one-time message shown as a toast.
//
// Fragment handlers append flashes to their response with RenderFlashesOOB;
// the splicer applies them out-of-band into the #toasts container. The
// notification listener uses ShowFlash for browser notifications when the
// page has no notification permission.
type Flash struct {
	Level   string // success, error, warning, info
	Title   string
	Message string
}

// RenderFlashesOOB renders flashes as an out-of-band fragment appending to
// #toasts.
func RenderFlashesOOB(flashes []Flash) string {
	if len(flashes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`<div id="` + toastsID + `" ` + oobAttr + `="beforeend">`)
	for _, f := range flashes {
		writeToast(&sb, f)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func writeToast(sb *strings.Builder, f Flash) {
	level := f.Level
	if level == "" {
		level = FlashInfo
	}
	sb.WriteString(`<div class="toast toast-`)
	sb.WriteString(html.EscapeString(level))
	sb.WriteString(`" data-auto-dismiss="3000">`)
	if f.Title != "" {
		sb.WriteString(`<strong>`)
		sb.WriteString(html.EscapeString(f.Title))
		sb.WriteString(`</strong> `)
	}
	sb.WriteString(html.EscapeString(f.Message))
	sb.WriteString(`</div>`)
}

// ShowFlash appends a toast to the page's #toasts container. Pages without
// a container are left alone and ErrTargetNotFound is returned.
func ShowFlash(p *Page, f Flash) error {
	doc, err := ParsePage(p.URL().String(), RenderFlashesOOB([]Flash{f}))
	if err != nil {
		return err
	}
	_, err = SpliceOOB(p, doc.doc)
	return err
}

// ToastContainer returns the container targeted by flash fragments. Add it
// once to the layout, near the end of <body>.
func ToastContainer() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="`+toastsID+`" class="toast-container"></div>`)
		return err
	})
}
