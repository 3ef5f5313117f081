package delta

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func randbuf(seed int64, n int) []byte {
	rnd := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	rnd.Read(buf)
	return buf
}

func roundTrip(t *testing.T, old, new []byte) []byte {
	t.Helper()
	d, err := Diff(old, new)
	tassert(t, err == nil, "diff: %v", err)
	got, err := Patch(old, d)
	tassert(t, err == nil, "patch: %v", err)
	tassert(t, bytes.Equal(got, new), "round trip mismatch: got %d bytes, want %d", len(got), len(new))
	return d
}

func TestRoundTrip(t *testing.T) {
	big := randbuf(1, 64*1024)
	edited := append([]byte{}, big...)
	copy(edited[1000:], []byte("a small edit in the middle"))
	edited = append(edited, []byte("and a tail")...)

	cases := []struct {
		name     string
		old, new []byte
	}{
		{"both empty", nil, nil},
		{"old empty", nil, []byte("hello")},
		{"new empty", []byte("hello"), nil},
		{"identical", []byte("hello world"), []byte("hello world")},
		{"short", []byte("hello world"), []byte("hello there world")},
		{"unrelated", randbuf(2, 512), randbuf(3, 700)},
		{"small edit", big, edited},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			roundTrip(t, c.old, c.new)
		})
	}
}

func TestDeltaSmallerForSmallEdit(t *testing.T) {
	big := randbuf(4, 128*1024)
	edited := append([]byte{}, big...)
	copy(edited[5000:], []byte("patched"))
	d := roundTrip(t, big, edited)
	tassert(t, d[0] == formatBsdiff, "expected bsdiff format, got %q", d[0])
	tassert(t, len(d) < len(edited)/10, "delta too large: %d", len(d))
}

func TestPatchBadDelta(t *testing.T) {
	_, err := Patch([]byte("x"), nil)
	tassert(t, err != nil, "expected error for empty delta")
	_, err = Patch([]byte("x"), []byte("Zjunk"))
	tassert(t, err != nil, "expected error for unknown format")
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")
	deltaPath := filepath.Join(dir, "old.new.delta")
	err := os.WriteFile(oldPath, randbuf(5, 4096), 0644)
	tassert(t, err == nil, "%v", err)
	err = os.WriteFile(newPath, randbuf(6, 4096), 0644)
	tassert(t, err == nil, "%v", err)

	err = DiffFiles(oldPath, newPath, deltaPath)
	tassert(t, err == nil, "%v", err)
	got, err := PatchFile(oldPath, deltaPath)
	tassert(t, err == nil, "%v", err)
	want, _ := os.ReadFile(newPath)
	tassert(t, bytes.Equal(got, want), "patched file mismatch")
}
