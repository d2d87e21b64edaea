package main

// crosscompile builds mesh-node-map for the platforms people run it on and
// stamps every binary with the same version number:
//
//	go run ./scripts
//
// Binaries land in binaries/<version>/<os>/<arch>/ with binaries/latest
// pointing at the newest set.

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const binaryName = "mesh-node-map"

type target struct{ os, arch string }

var targets = []target{
	{"linux", "amd64"}, {"linux", "arm64"}, {"linux", "arm"}, {"linux", "386"},
	{"linux", "riscv64"}, {"darwin", "amd64"}, {"darwin", "arm64"},
	{"windows", "amd64"}, {"windows", "arm64"}, {"freebsd", "amd64"},
	{"openbsd", "amd64"},
}

func main() {
	workers := flag.Int("j", 4, "parallel builds")
	flag.Parse()

	log.SetFormatter(&prefixed.TextFormatter{ForceFormatting: true})
	entry := log.WithField("prefix", "build")

	root, err := gitOutput("rev-parse", "--show-toplevel")
	if err != nil {
		entry.Fatalf("git root: %v", err)
	}
	version, err := gitVersion()
	if err != nil {
		entry.Fatalf("git version: %v", err)
	}
	entry.Infof("building version %s", version)

	out := filepath.Join(root, "binaries", version)
	if err := os.MkdirAll(out, os.ModePerm); err != nil {
		entry.Fatal(err)
	}
	latest := filepath.Join(root, "binaries", "latest")
	os.Remove(latest)
	if err := os.Symlink(version, latest); err != nil {
		entry.Warnf("symlink latest: %v", err)
	}

	jobs := make(chan target)
	done := make(chan error)
	for i := 0; i < *workers; i++ {
		go func() {
			for t := range jobs {
				done <- build(root, out, version, t)
			}
		}()
	}
	go func() {
		for _, t := range targets {
			jobs <- t
		}
		close(jobs)
	}()

	failed := 0
	for range targets {
		if err := <-done; err != nil {
			entry.Error(err)
			failed++
		}
	}
	entry.Infof("%d built, %d failed", len(targets)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func build(root, out, version string, t target) error {
	name := binaryName
	if t.os == "windows" {
		name += ".exe"
	}
	dir := filepath.Join(out, t.os, t.arch)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	cmd := exec.Command("go", "build",
		"-trimpath",
		"-ldflags", fmt.Sprintf("-s -w -X 'main.CompileVersion=%s'", version),
		"-o", filepath.Join(dir, name), ".")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS="+t.os, "GOARCH="+t.arch, "CGO_ENABLED=0")
	if msg, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("%s/%s: %v\n%s", t.os, t.arch, err, msg)
	}
	log.WithField("prefix", "build").Infof("%s/%s ok", t.os, t.arch)
	return nil
}

// gitVersion prefers the CI run number so local and CI builds share a
// sequence, then falls back to the commit count.
func gitVersion() (string, error) {
	version := os.Getenv("GITHUB_RUN_NUMBER")
	if version == "" {
		n, err := gitOutput("rev-list", "--count", "HEAD")
		if err != nil {
			return "", err
		}
		version = n
	}
	dirty, err := gitOutput("status", "--porcelain")
	if err != nil {
		return "", err
	}
	if dirty != "" {
		version += "-dirty"
	}
	return version, nil
}

func gitOutput(args ...string) (string, error) {
	b, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
