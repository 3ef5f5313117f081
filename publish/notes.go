package publish

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/host"
)

// GetNotes returns the release notes of package id for locale.
func GetNotes(ctx context.Context, store *host.Store, id, locale string) (text string, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	h, err := find(m, store, id)
	if err != nil {
		return
	}
	return h.Notes(locale), nil
}

// SetNotes replaces the release notes of package id for locale and
// returns a unified diff of the change.  Empty text deletes the notes.
func SetNotes(ctx context.Context, store *host.Store, id, locale, text string) (diff string, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	h, err := find(m, store, id)
	if err != nil {
		return
	}
	old := h.Notes(locale)
	if old == text {
		return "", nil
	}
	changed := h.WithNotes(locale, text)

	pkg, err := store.LoadPackage(ctx, id)
	if err != nil {
		return
	}
	pkg, err = pkg.WithHeader(changed)
	if err != nil {
		return
	}
	err = store.SavePackage(ctx, pkg)
	if err != nil {
		return
	}
	m, _ = m.Replace(changed)
	err = store.SaveManifest(ctx, m)
	if err != nil {
		return
	}
	log.WithFields(log.Fields{"package": id, "locale": locale}).Info("notes updated")

	name := "notes." + locale
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(old),
		B:        splitLines(text),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
}

// splitLines keeps line endings, which difflib needs for clean hunks.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
