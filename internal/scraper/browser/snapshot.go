package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// serializeDOMJS serializes the document without mutating it, inlining open
// shadow roots as <div data-shadow-root> and same-origin iframe bodies as
// <div data-captured-iframe>. Shadow content of a host is emitted before its
// light children so slotted content keeps its order in the snapshot.
const serializeDOMJS = `() => {
	const MAX_DEPTH = 100;
	const VOID = new Set(['area', 'base', 'br', 'col', 'embed', 'hr', 'img', 'input', 'link', 'meta', 'source', 'track', 'wbr']);
	let shadowRoots = 0;
	let frames = 0;

	const text = (s) => s.replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;');
	const attr = (s) => text(s).replace(/"/g, '&quot;');
	const attrs = (el) => Array.from(el.attributes).map((a) => ' ' + a.name + '="' + attr(a.value) + '"').join('');

	function children(node, depth) {
		let out = '';
		node.childNodes.forEach((child) => { out += walk(child, depth + 1); });
		return out;
	}

	function walk(node, depth) {
		if (depth > MAX_DEPTH) return '';
		if (node.nodeType === Node.TEXT_NODE) return text(node.textContent);
		if (node.nodeType !== Node.ELEMENT_NODE) return '';

		const tag = node.tagName.toLowerCase();
		if (tag === 'iframe') {
			let inner = '';
			try {
				const doc = node.contentDocument;
				if (doc && doc.body) {
					inner = children(doc.body, depth);
					frames++;
				}
			} catch (e) {
				inner = '[iframe not accessible]';
			}
			return '<div data-captured-iframe="true" data-iframe-src="' + attr(node.src || '') + '">' + inner + '</div>';
		}

		let out = '<' + tag + attrs(node) + '>';
		if (VOID.has(tag)) return out;

		if (node.shadowRoot) {
			shadowRoots++;
			out += '<div data-shadow-root="true" data-shadow-host="' + tag + '">' + children(node.shadowRoot, depth) + '</div>';
		}
		return out + children(node, depth) + '</' + tag + '>';
	}

	return JSON.stringify({
		html: '<!DOCTYPE html>' + walk(document.documentElement, 0),
		shadowRoots: shadowRoots,
		frames: frames
	});
}`

// Snapshot is a serialized view of the page at one moment.
type Snapshot struct {
	HTML        string `json:"html"`
	ShadowRoots int    `json:"shadowRoots"`
	Frames      int    `json:"frames"`
}

// CaptureDOM serializes the page with shadow roots and iframes inlined.
// If the script fails it falls back to the plain page HTML.
func CaptureDOM(ctx context.Context, page Page) (Snapshot, error) {
	res, evalErr := page.Eval(ctx, serializeDOMJS)

	var snap Snapshot
	if evalErr == nil {
		if err := json.Unmarshal([]byte(res.Str()), &snap); err == nil && snap.HTML != "" {
			return snap, nil
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture DOM: serialize failed and fallback HTML failed: %w", err)
	}
	return Snapshot{HTML: html}, nil
}

// Artifacts saves a screenshot and a DOM snapshot of failing steps. A zero
// Dir disables it.
type Artifacts struct {
	Dir string
	log *zap.Logger
	now func() time.Time
}

func NewArtifacts(dir string, log *zap.Logger) *Artifacts {
	if log == nil {
		log = zap.L()
	}
	return &Artifacts{Dir: dir, log: log, now: time.Now}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Capture writes <dir>/<timestamp>_<step>.html and .png. It never fails the
// caller; problems are logged.
func (a *Artifacts) Capture(ctx context.Context, page Page, step string) {
	if a == nil || a.Dir == "" || page == nil {
		return
	}

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		a.log.Warn("artifacts: create dir failed", zap.String("dir", a.Dir), zap.Error(err))
		return
	}

	base := filepath.Join(a.Dir, fmt.Sprintf("%s_%s", a.now().Format("20060102_150405"), unsafeNameChars.ReplaceAllString(step, "_")))

	if snap, err := CaptureDOM(ctx, page); err != nil {
		a.log.Warn("artifacts: DOM capture failed", zap.String("step", step), zap.Error(err))
	} else if err := os.WriteFile(base+".html", []byte(snap.HTML), 0o644); err != nil {
		a.log.Warn("artifacts: write HTML failed", zap.String("step", step), zap.Error(err))
	}

	if png, err := page.Screenshot(ctx); err != nil {
		a.log.Warn("artifacts: screenshot failed", zap.String("step", step), zap.Error(err))
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		a.log.Warn("artifacts: write screenshot failed", zap.String("step", step), zap.Error(err))
	}

	a.log.Info("artifacts: captured", zap.String("step", step), zap.String("path", base))
}
