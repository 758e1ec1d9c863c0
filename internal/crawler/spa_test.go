package crawler

import "testing"

func TestScoreSPADetectsEmptyReactRoot(t *testing.T) {
	t.Parallel()
	html := `<html><body><div id="root"></div><script src="bundle.js"></script></body></html>`
	s := scoreSPA([]byte(html))
	if !s.isSPA() {
		t.Errorf("score %.2f, want >= 0.5 for an empty app root", s.total)
	}
}

func TestScoreSPADetectsAngularCustomElementShell(t *testing.T) {
	t.Parallel()
	html := `<html><body><app-root></app-root>` +
		`<script src="runtime.js"></script><script src="polyfills.js"></script><script src="main.js"></script>` +
		`</body></html>`
	s := scoreSPA([]byte(html))
	if !s.isSPA() {
		t.Errorf("score %.2f, want >= 0.5 for an empty <app-root> shell", s.total)
	}
}

func TestScoreSPAIgnoresContentRichPage(t *testing.T) {
	t.Parallel()
	html := `<html><body><article><h1>Title</h1><p>` +
		repeatedText(2000) +
		`</p></article></body></html>`
	s := scoreSPA([]byte(html))
	if s.isSPA() {
		t.Errorf("score %.2f, want < 0.5 for a content-rich static page", s.total)
	}
}

func TestScoreSPADetectsLoginWallAsEarlyExit(t *testing.T) {
	t.Parallel()
	html := `<form><input type="password" name="password"/><div id="login"></div></form>`
	s := scoreSPA([]byte(html))
	if !s.isSPA() {
		t.Error("expected login wall to force a positive SPA classification")
	}
}

func TestScoreSPADetectsBotProtection(t *testing.T) {
	t.Parallel()
	html := `<html><body>Checking your browser before accessing... Cloudflare</body></html>`
	s := scoreSPA([]byte(html))
	if !s.isSPA() {
		t.Error("expected bot-protection markers to force a positive SPA classification")
	}
}

func TestScoreSPADetectsHashRoutes(t *testing.T) {
	t.Parallel()
	html := `<html><body>` + repeatedText(500) + `<a href="#/dashboard">Dashboard</a></body></html>`
	s := scoreSPA([]byte(html))
	if s.total < 0.3 {
		t.Errorf("score %.2f, want hash route contribution of at least 0.3", s.total)
	}
}

func repeatedText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + (i % 26))
	}
	return string(b)
}
