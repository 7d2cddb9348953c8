// Package fetch resolves a project's package references (spec §6's
// PackageRef) to a directory on disk: a project-relative path is used
// as-is, while a bare name is looked up (and, on first use, fetched)
// under the packages root — by git clone for git-shaped references, or
// by archive download for anything else that looks like a URL.
package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"

	"github.com/modbuild/modbuild/internal/config"
	"github.com/modbuild/modbuild/internal/msg"
)

var shortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

var errIllegalRef = errors.New("empty or illegal package reference")

// Resolve turns ref into an absolute directory path, fetching it into
// packagesRoot if it names a remote package not already present there.
// projectDir anchors {path: "..."} references.
func Resolve(ref config.PackageRef, packagesRoot, projectDir string) (string, error) {
	if ref.Path != "" {
		if filepath.IsAbs(ref.Path) {
			return filepath.Clean(ref.Path), nil
		}
		return filepath.Clean(filepath.Join(projectDir, ref.Path)), nil
	}

	if ref.Name == "" {
		return "", errIllegalRef
	}

	dest := filepath.Join(packagesRoot, sanitizeRefName(ref.Name))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("creating package directory %s: %w", dest, err)
	}
	return fetchInto(ref.Name, dest)
}

func sanitizeRefName(name string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "@", "_", "#", "_")
	return r.Replace(name)
}

func fetchInto(ref, dest string) (string, error) {
	const gitPrefix = "git:"
	if strings.HasPrefix(ref, gitPrefix) {
		return cloneGitRepo(ref[len(gitPrefix):], dest)
	}
	if strings.HasSuffix(ref, ".git") {
		return cloneGitRepo(ref, dest)
	}
	for prefix, base := range shortcuts {
		if strings.HasPrefix(ref, prefix) {
			return cloneGitRepo(base+ref[len(prefix):], dest)
		}
	}
	if isURL(ref) {
		return downloadAndExtractArchive(ref, dest)
	}
	return "", fmt.Errorf("package reference %q is not a path, packages-root entry, or fetchable URL", ref)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

type gitRef struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// parseGitRef accepts "owner/repo@branch#commitOrTag"-shaped suffixes on
// top of a plain clone URL.
func parseGitRef(raw string) (res gitRef) {
	parts := strings.SplitN(raw, "#", 2)
	base := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	parts = strings.SplitN(base, "@", 2)
	res.cleanURL = parts[0]
	if len(parts) == 2 {
		res.branch = parts[1]
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}
	return
}

func cloneGitRepo(rawURL, dest string) (string, error) {
	ref := parseGitRef(rawURL)

	opts := &git.CloneOptions{
		URL:               ref.cleanURL,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	if ref.commitOrTag == "" {
		opts.Depth = 1
	}
	if ref.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref.branch)
		opts.SingleBranch = true
	}

	msg.Info("Fetching %s", ref.cleanURL)

	repo, err := git.PlainClone(dest, opts)
	if err != nil {
		return dest, fmt.Errorf("cloning %s: %w", ref.cleanURL, err)
	}

	if ref.commitOrTag != "" {
		w, err := repo.Worktree()
		if err != nil {
			return dest, fmt.Errorf("opening worktree for %s: %w", ref.cleanURL, err)
		}
		hash, err := repo.ResolveRevision(plumbing.Revision(ref.commitOrTag))
		if err != nil {
			return dest, fmt.Errorf("resolving revision %q: %w", ref.commitOrTag, err)
		}
		if err := w.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return dest, fmt.Errorf("checking out %q: %w", ref.commitOrTag, err)
		}
	}

	return dest, nil
}

func determineArchiveFormat(filePath string, resp *http.Response, originalURL string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 4)
	if _, err := file.Read(header); err != nil && err != io.EOF {
		return "", err
	}

	if bytes.Equal(header, []byte{0x50, 0x4b, 0x03, 0x04}) {
		return "zip", nil
	}
	if bytes.Equal(header[:2], []byte{0x1f, 0x8b}) {
		return "tar.gz", nil
	}

	switch resp.Header.Get("Content-Type") {
	case "application/zip", "application/x-zip-compressed":
		return "zip", nil
	case "application/gzip", "application/x-gzip", "application/x-tar":
		return "tar.gz", nil
	}

	if u, err := url.Parse(originalURL); err == nil {
		switch path.Ext(u.Path) {
		case ".zip":
			return "zip", nil
		case ".tgz", ".tar.gz":
			return "tar.gz", nil
		}
	}

	return "", errors.New("unknown or unsupported archive format")
}

func downloadAndExtractArchive(downloadURL, dest string) (string, error) {
	cleanURL := downloadURL
	var expectedMD5 string
	if parts := strings.SplitN(downloadURL, "#MD5=", 2); len(parts) == 2 {
		cleanURL, expectedMD5 = parts[0], parts[1]
	}

	msg.Info("Fetching %s", cleanURL)

	resp, err := http.Get(cleanURL)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", cleanURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: status %d", cleanURL, resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(dest, "archive-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	archivePath := tmpFile.Name()
	defer os.Remove(archivePath)

	hash := md5.New()
	pb := msg.NewProgressBar(resp.ContentLength, 1, os.Stdout)

	if _, err := io.Copy(io.MultiWriter(tmpFile, hash, pb), resp.Body); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	pb.Finish()

	if expectedMD5 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(expectedMD5, got) {
			return "", fmt.Errorf("md5 mismatch for %s: expected %s, got %s", cleanURL, expectedMD5, got)
		}
	}

	format, err := determineArchiveFormat(archivePath, resp, downloadURL)
	if err != nil {
		return "", err
	}

	var extractErr error
	switch format {
	case "zip":
		extractErr = unzip(archivePath, dest)
	case "tar.gz":
		extractErr = untar(archivePath, dest)
	}
	if extractErr != nil {
		return "", fmt.Errorf("extracting archive: %w", extractErr)
	}

	return dest, nil
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	rootDir := singleRootDir(zipNames(r.File))

	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, rootDir)
		if name == "" {
			continue
		}
		fpath := filepath.Join(dest, name)
		if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", fpath)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}
		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func zipNames(files []*zip.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func singleRootDir(names []string) string {
	if len(names) == 0 || !strings.HasSuffix(names[0], "/") {
		return ""
	}
	root := names[0]
	for _, n := range names {
		if !strings.HasPrefix(n, root) {
			return ""
		}
	}
	return root
}

func untar(src, dest string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	var rootDir string
	firstEntry := true

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if firstEntry {
			if header.Typeflag == tar.TypeDir {
				rootDir = header.Name
			}
			firstEntry = false
		} else if rootDir != "" && !strings.HasPrefix(header.Name, rootDir) {
			rootDir = ""
		}

		name := strings.TrimPrefix(header.Name, rootDir)
		if name == "" {
			continue
		}

		target := filepath.Join(dest, name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", target)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			_, err = io.Copy(f, tr)
			f.Close()
			if err != nil {
				return err
			}
		}
	}
}

