package api

import (
	"encoding/xml"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// handleSitemap lists the static pages and one page per public camera.
// GET /sitemap.xml
func (r *Router) handleSitemap(w http.ResponseWriter, req *http.Request) {
	base := r.siteBase(req)
	lastMod := time.Now().UTC().Format(time.DateOnly)

	set := urlset{NS: sitemapNS, URLs: []sitemapURL{
		{Loc: base + "/", LastMod: lastMod, ChangeFreq: "daily", Priority: "1.0"},
		{Loc: base + "/mapa.html", LastMod: lastMod, ChangeFreq: "weekly", Priority: "0.8"},
		{Loc: base + "/metrics.html", LastMod: lastMod, ChangeFreq: "hourly", Priority: "0.3"},
	}}
	if r.scanner != nil {
		for _, rec := range r.scanner.Records() {
			if !rec.Public() {
				continue
			}
			u := sitemapURL{
				Loc:        base + "/camera/" + string(rec.Code),
				LastMod:    lastMod,
				ChangeFreq: "hourly",
				Priority:   "0.6",
			}
			if rec.Online() {
				u.ChangeFreq, u.Priority = "always", "0.9"
			}
			set.URLs = append(set.URLs, u)
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header)) //nolint:errcheck
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		r.logger.Error("encoding sitemap", "error", err)
	}
}

// siteBase returns the absolute URL prefix for generated links.
func (r *Router) siteBase(req *http.Request) string {
	if r.publicURL != "" {
		return strings.TrimRight(r.publicURL, "/")
	}
	scheme := "http"
	if req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + req.Host + r.basePath
}

type assetLink struct {
	Relation []string        `json:"relation"`
	Target   assetLinkTarget `json:"target"`
}

type assetLinkTarget struct {
	Namespace    string   `json:"namespace"`
	PackageName  string   `json:"package_name"`
	Fingerprints []string `json:"sha256_cert_fingerprints"`
}

// handleAssetLinks serves the Android digital asset links statement. A file
// in the public directory takes precedence over the configured values.
// GET /.well-known/assetlinks.json
func (r *Router) handleAssetLinks(w http.ResponseWriter, _ *http.Request) {
	if dir := r.staticFiles.Dir(); dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, ".well-known", "assetlinks.json")) //nolint:gosec // fixed path under the public dir
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data) //nolint:errcheck
			return
		}
	}

	links := []assetLink{}
	if r.appLinks.AndroidPackage != "" {
		fps := r.appLinks.AndroidFingerprints
		if fps == nil {
			fps = []string{}
		}
		links = append(links, assetLink{
			Relation: []string{"delegate_permission/common.handle_all_urls"},
			Target: assetLinkTarget{
				Namespace:    "android_app",
				PackageName:  r.appLinks.AndroidPackage,
				Fingerprints: fps,
			},
		})
	}
	writeJSON(w, http.StatusOK, links)
}

type appleDetail struct {
	AppID string   `json:"appID"`
	Paths []string `json:"paths"`
}

// handleAppleAppSiteAssociation serves the iOS universal links file.
// GET /apple-app-site-association
func (r *Router) handleAppleAppSiteAssociation(w http.ResponseWriter, _ *http.Request) {
	details := []appleDetail{}
	if r.appLinks.AppleTeamID != "" && r.appLinks.IOSBundleID != "" {
		details = append(details, appleDetail{
			AppID: r.appLinks.AppleTeamID + "." + r.appLinks.IOSBundleID,
			Paths: []string{"/camera*", "/camera.html*", "/camerasite*"},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applinks": map[string]any{
			"apps":    []string{},
			"details": details,
		},
	})
}
