package strategy

import (
	"net/http"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/generation"
)

const offlineDocument = `<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tskulis — çevrimdışı</title>
<style>
body{font-family:sans-serif;background:#f5f5f5;color:#333;display:flex;align-items:center;justify-content:center;height:100vh;margin:0}
main{text-align:center;padding:2rem}
button{background:#c00;color:#fff;border:0;padding:.75rem 1.5rem;border-radius:4px;font-size:1rem;cursor:pointer}
</style>
</head>
<body>
<main>
<h1>Şu anda çevrimdışısınız</h1>
<p>İnternet bağlantınız yok gibi görünüyor. Bağlantı geri geldiğinde tekrar deneyin.</p>
<button onclick="location.reload()">Tekrar dene</button>
</main>
</body>
</html>`

// 1x1 viewBox gray rectangle, scales to whatever box the page gives it
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1 1" preserveAspectRatio="none"><rect width="1" height="1" fill="#e0e0e0"/></svg>`

func synthesized(status int, contentType string, body string) *cachestore.Entry {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "no-store")
	return cachestore.NewEntry(status, header, []byte(body))
}

// OfflineDocument is served for HTML navigations that fail with no
// cached copy: a minimal page with a retry action rather than a browser
// error.
func OfflineDocument() *cachestore.Entry {
	return synthesized(http.StatusServiceUnavailable, "text/html; charset=utf-8", offlineDocument)
}

// PlaceholderImage is served for image requests that fail with no
// cached copy, so broken images degrade visually instead of breaking
// layout.
func PlaceholderImage() *cachestore.Entry {
	return synthesized(http.StatusOK, "image/svg+xml", placeholderSVG)
}

// Unavailable is served for API and other non-navigation requests that
// fail with no cached copy; calling code shows stale UI state on a 503.
func Unavailable() *cachestore.Entry {
	return synthesized(http.StatusServiceUnavailable, "application/json; charset=utf-8", `{"error":"service unavailable"}`)
}

// NotFound is the generic fallback for uncached cache-first misses that
// are not images.
func NotFound() *cachestore.Entry {
	return synthesized(http.StatusNotFound, "text/plain; charset=utf-8", "not found")
}

// isImageRequest decides whether a failed request should degrade to a
// placeholder image.
func isImageRequest(req *http.Request, category generation.Category) bool {
	if category == generation.Images {
		return true
	}
	return imageExtRe.MatchString(req.URL.Path)
}
