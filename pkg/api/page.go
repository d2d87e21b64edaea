package api

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/share"
	"mesh-node-map/pkg/status"
)

// maxQRLink bounds what we agree to encode; longer input is not a link we
// produced.
const maxQRLink = 2048

type pageData struct {
	Version string
	Lang    string
	View    mapview.Viewport
	Text    map[string]string
}

// mapPage renders the dashboard. lat/lng/z in the query override the
// configured starting view, which is how shared links land.
func (s *Server) mapPage(c *gin.Context) {
	lang := c.GetHeader("Accept-Language")
	data := pageData{
		Version: s.cfg.Version,
		Lang:    lang,
		View:    share.Decode(c.Request.URL.Query(), s.cfg.DefaultViewport),
		Text: map[string]string{
			"loading": s.translator.Localize(lang, status.MsgLoading, nil),
			"copied":  s.translator.Localize(lang, status.MsgShareCopied, nil),
			"manual":  s.translator.Localize(lang, status.MsgShareManual, nil),
		},
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		log.Errorf("execute map template: %v", err)
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// baseURL is the page address as the client reached it.
func baseURL(c *gin.Context) *url.URL {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: c.Request.Host, Path: "/"}
}

func (s *Server) currentLink(c *gin.Context) (string, error) {
	vp, err := s.dash.Viewport(c.Request.Context())
	if err != nil {
		return "", err
	}
	return share.Encode(baseURL(c), vp), nil
}

// shareLink returns the link for the current viewport together with the
// manual-copy prompt the page shows when the clipboard is not available.
func (s *Server) shareLink(c *gin.Context) {
	link, err := s.currentLink(c)
	if shouldInterupt(err, c) {
		return
	}
	lang := c.GetHeader("Accept-Language")
	c.JSON(http.StatusOK, gin.H{
		"url":    link,
		"prompt": s.translator.Localize(lang, status.MsgShareManual, nil),
		"copied": s.translator.Localize(lang, status.MsgShareCopied, nil),
	})
}

// shareQR renders ?u= or, without it, the current viewport link. Only links
// back to this map are encoded.
func (s *Server) shareQR(c *gin.Context) {
	link := c.Query("u")
	if link == "" {
		var err error
		if link, err = s.currentLink(c); shouldInterupt(err, c) {
			return
		}
	}
	if len(link) > maxQRLink {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}
	if !ownLink(c, link) {
		abortWithEncoding(c, http.StatusBadRequest, errorForeignLink)
		return
	}

	var buf bytes.Buffer
	if err := share.QR(&buf, link, share.QROptions{TargetPx: 600}); shouldInterupt(err, c) {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", `inline; filename="qr.png"`)
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ownLink reports whether link is an http(s) URL on the host the client
// reached us at.
func ownLink(c *gin.Context, link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.EqualFold(u.Host, baseURL(c).Host)
}
