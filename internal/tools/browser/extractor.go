package browser

// extractorJS runs in the page context via Runtime.evaluate. It hands back
// the raw document HTML; the Markdown conversion itself happens on the Go
// side (internal/content), keeping the byte-level HTML->Markdown rules in
// one place instead of duplicating them in page-side JavaScript.
const extractorJS = `(function() {
  return {
    title: document.title || "",
    url: location.href,
    html: document.documentElement ? document.documentElement.outerHTML : document.body.innerHTML
  };
})()`

type extractorResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	HTML  string `json:"html"`
}
