package hxreload

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const splicePage = `<html><body>
<div id="before">b</div><div id="target" class="box"><span>old</span></div><div id="after">a</div>
</body></html>`

func fragmentNodes(t *testing.T, markup string) *goquery.Selection {
	t.Helper()
	frag := &Fragment{Body: []byte(markup)}
	sel, err := frag.Select("")
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func bodyHTML(t *testing.T, p *Page) string {
	t.Helper()
	out, err := p.OuterHTML("body")
	if err != nil {
		t.Fatal(err)
	}
	return strings.Join(strings.Fields(out), "")
}

func TestSpliceModes(t *testing.T) {
	tests := []struct {
		mode SwapMode
		want string
	}{
		{SwapOuter, `<divid="before">b</div><p>new</p><divid="after">a</div>`},
		{SwapInner, `<divid="before">b</div><divid="target"class="box"><p>new</p></div><divid="after">a</div>`},
		{SwapBeforeBegin, `<divid="before">b</div><p>new</p><divid="target"class="box"><span>old</span></div><divid="after">a</div>`},
		{SwapAfterBegin, `<divid="before">b</div><divid="target"class="box"><p>new</p><span>old</span></div><divid="after">a</div>`},
		{SwapBeforeEnd, `<divid="before">b</div><divid="target"class="box"><span>old</span><p>new</p></div><divid="after">a</div>`},
		{SwapAfterEnd, `<divid="before">b</div><divid="target"class="box"><span>old</span></div><p>new</p><divid="after">a</div>`},
		{SwapDelete, `<divid="before">b</div><divid="after">a</div>`},
		{SwapNone, `<divid="before">b</div><divid="target"class="box"><span>old</span></div><divid="after">a</div>`},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := ParsePage("http://example.com/", splicePage)
			if err != nil {
				t.Fatal(err)
			}
			_, err = Splice(p, "#target", fragmentNodes(t, `<p>new</p>`), tt.mode)
			if err != nil {
				t.Fatalf("Splice: %v", err)
			}
			got := strings.TrimSuffix(strings.TrimPrefix(bodyHTML(t, p), "<body>"), "</body>")
			if got != tt.want {
				t.Errorf("body =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSpliceKeepsOrder(t *testing.T) {
	p, _ := ParsePage("http://example.com/", `<body><ul><li id="end"></li></ul></body>`)
	ins, err := Splice(p, "#end", fragmentNodes(t, `<li>1</li><li>2</li><li>3</li>`), SwapAfterEnd)
	if err != nil {
		t.Fatal(err)
	}
	if ins.Length() != 3 || ins.First().Text() != "1" || ins.Last().Text() != "3" {
		t.Errorf("inserted = %d %q..%q", ins.Length(), ins.First().Text(), ins.Last().Text())
	}
	got := bodyHTML(t, p)
	if !strings.Contains(got, `<liid="end"></li><li>1</li><li>2</li><li>3</li>`) {
		t.Errorf("order lost: %s", got)
	}
}

func TestSpliceTargetNotFound(t *testing.T) {
	p, _ := ParsePage("http://example.com/", splicePage)
	before := bodyHTML(t, p)
	_, err := Splice(p, "#missing", fragmentNodes(t, `<p>x</p>`), SwapOuter)
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("error = %v, want ErrTargetNotFound", err)
	}
	if bodyHTML(t, p) != before {
		t.Error("page changed on failed splice")
	}

	_, err = Splice(p, "div[", fragmentNodes(t, `<p>x</p>`), SwapOuter)
	if !errors.Is(err, ErrInvalidSelector) {
		t.Errorf("error = %v, want ErrInvalidSelector", err)
	}
}

func TestSpliceForgetsRemovedHandlers(t *testing.T) {
	p, _ := ParsePage("http://example.com/", splicePage)
	span, err := p.Node("#target span")
	if err != nil {
		t.Fatal(err)
	}
	p.On(span, "click", "k", func(context.Context, Event) error { return nil })

	if _, err := Splice(p, "#target", fragmentNodes(t, `<p>new</p>`), SwapInner); err != nil {
		t.Fatal(err)
	}
	if n := p.Bound(span, "click"); n != 0 {
		t.Errorf("handlers on removed node = %d, want 0", n)
	}
}

func TestSpliceOOB(t *testing.T) {
	p, _ := ParsePage("http://example.com/", `<body>
<div id="count">1</div><ul id="log"><li>a</li></ul><div id="target"></div>
</body>`)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
<div id="count" hx-swap-oob="true">2</div>
<ul id="log" hx-swap-oob="beforeend"><li>b</li></ul>
<p>main</p>`))
	if err != nil {
		t.Fatal(err)
	}

	n, err := SpliceOOB(p, doc)
	if err != nil {
		t.Fatalf("SpliceOOB: %v", err)
	}
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}
	got := bodyHTML(t, p)
	if !strings.Contains(got, `<divid="count">2</div>`) {
		t.Errorf("outer oob not applied: %s", got)
	}
	if !strings.Contains(got, `<ulid="log"><li>a</li><li>b</li></ul>`) {
		t.Errorf("beforeend oob not applied: %s", got)
	}
	if doc.Find("[hx-swap-oob]").Length() != 0 || doc.Find("p").Length() != 1 {
		t.Error("oob elements should be detached from the fragment, the rest kept")
	}
}

func TestSpliceOOBMissingTarget(t *testing.T) {
	p, _ := ParsePage("http://example.com/", `<body></body>`)
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<div id="nope" hx-swap-oob="true"></div>`))
	if _, err := SpliceOOB(p, doc); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("error = %v, want ErrTargetNotFound", err)
	}
}

func TestContinuation(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`
<ul class="list"><li>3</li><a id="loadmore" data-source="/p3 .list" data-target="#target"></a></ul>`))

	c, ok := findSentinel(doc, "loadmore")
	if !ok || c.Source != "/p3 .list" || c.Target != "#target" {
		t.Errorf("findSentinel = %+v, %v", c, ok)
	}
	if _, ok := findSentinel(doc, ""); ok {
		t.Error("empty id should never match")
	}
	if _, ok := findSentinel(doc, "other"); ok {
		t.Error("unknown id should not match")
	}

	nodes := stripSentinels(doc.Find(".list"), "loadmore")
	if len(nodes) != 1 {
		t.Fatalf("nodes = %d", len(nodes))
	}
	if doc.Find("#loadmore").Length() != 0 {
		t.Error("nested sentinel should be stripped")
	}
}
