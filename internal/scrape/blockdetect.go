package scrape

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockLoginWall  BlockType = "login_wall"
)

// challengeMaxBytes bounds body-marker checks. Challenge and sign-in
// interstitials are small; real postings that embed a captcha widget on an
// application form are not.
const challengeMaxBytes = 64 * 1024

var (
	loginPhrases = [][]byte{
		[]byte("sign in to continue"),
		[]byte("log in to continue"),
		[]byte("sign in to view"),
		[]byte("join to view"),
		[]byte("login required"),
		[]byte("please log in"),
		[]byte("please sign in"),
	}
	captchaMarkers = [][]byte{
		[]byte("captcha"),
		[]byte("recaptcha"),
		[]byte("hcaptcha"),
		[]byte("are you a robot"),
	}
)

// DetectBlock checks a static HTTP response for anti-bot protection or a
// sign-in interstitial.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	return DetectBlockHTML(body)
}

// DetectBlockHTML checks rendered or fetched HTML for challenge pages,
// JS-only shells and login walls.
func DetectBlockHTML(body []byte) (bool, BlockType) {
	if len(body) == 0 || len(body) > challengeMaxBytes {
		return false, BlockNone
	}
	lower := bytes.ToLower(body)

	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		bytes.Contains(lower, []byte("cloudflare")) && bytes.Contains(lower, []byte("challenge")) {
		return true, BlockCloudflare
	}

	for _, m := range captchaMarkers {
		if bytes.Contains(lower, m) {
			return true, BlockCaptcha
		}
	}

	if bytes.Contains(lower, []byte(`type="password"`)) {
		for _, p := range loginPhrases {
			if bytes.Contains(lower, p) {
				return true, BlockLoginWall
			}
		}
	}

	if len(body) < 2000 {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return true, BlockJSShell
		}
		if bytes.Contains(lower, []byte(`meta http-equiv="refresh"`)) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
