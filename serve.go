package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"
)

// domainServers builds
//   - plain, on :80, for ACME HTTP-01 challenges and a redirect to https://<domain>/
//   - secure, on :443, with Let's Encrypt certificates.
//
// Once a certificate has been obtained it is also served for bare IPs and
// unknown SNI names, which otherwise fail with "host not configured".
// fallback holds that certificate.
func domainServers(domain string, handler http.Handler) (plain, secure *http.Server, certMgr *autocert.Manager, fallback *atomic.Pointer[tls.Certificate]) {
	certMgr = &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	mux80 := http.NewServeMux()
	mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
	mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
	plain = &http.Server{
		Addr:              ":80",
		Handler:           mux80,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fallback = new(atomic.Pointer[tls.Certificate])
	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if fb := fallback.Load(); fb != nil {
			return fb, nil
		}
		return nil, err
	}
	secure = &http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return plain, secure, certMgr, fallback
}

// serveWithDomain starts both servers and the daily certificate check, and
// returns the servers so they can be shut down.
func serveWithDomain(ctx context.Context, domain string, handler http.Handler) []*http.Server {
	entry := log.WithField("prefix", "tls")
	plain, secure, certMgr, fallback := domainServers(domain, handler)

	go func() {
		entry.Info("HTTP server (ACME and redirect) on :80")
		if err := plain.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.Errorf("HTTP server: %v", err)
		}
	}()

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
			if err != nil {
				entry.Warnf("certificate check: %v", err)
			} else {
				fallback.Store(c)
				t.Reset(24 * time.Hour)
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()

	go func() {
		entry.Infof("HTTPS server for %s on :443", domain)
		if err := secure.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			entry.Errorf("HTTPS server: %v", err)
		}
	}()

	return []*http.Server{plain, secure}
}

// shutdownServers stops every server, logging the ones that fail to drain.
func shutdownServers(ctx context.Context, servers ...*http.Server) {
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown %s: %v", srv.Addr, err)
		}
	}
}
