// Package delta wraps the bsdiff binary diff primitive.
//
// A delta is one format byte followed by a payload.  'B' means the payload
// is a bsdiff patch against the old bytes; 'R' means the payload is the
// new bytes verbatim, which is used when either side is empty or the
// patch would not be smaller than the new file.
package delta

import (
	"fmt"
	"os"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/pkg/errors"
)

const (
	formatBsdiff  = 'B'
	formatReplace = 'R'
)

// Diff returns a delta that turns old into new.
func Diff(old, new []byte) (delta []byte, err error) {
	if len(old) > 0 && len(new) > 0 {
		patch, err := bsdiff.Bytes(old, new)
		if err != nil {
			return nil, errors.Wrap(err, "bsdiff")
		}
		if len(patch) < len(new) {
			return append([]byte{formatBsdiff}, patch...), nil
		}
	}
	return append([]byte{formatReplace}, new...), nil
}

// Patch applies delta to old and returns the new bytes.
func Patch(old, delta []byte) (new []byte, err error) {
	if len(delta) == 0 {
		return nil, fmt.Errorf("empty delta")
	}
	switch delta[0] {
	case formatReplace:
		return append([]byte{}, delta[1:]...), nil
	case formatBsdiff:
		new, err = bspatch.Bytes(old, delta[1:])
		return new, errors.Wrap(err, "bspatch")
	}
	return nil, fmt.Errorf("unknown delta format %q", delta[0])
}

// DiffFiles writes the delta between two files to deltaPath.
func DiffFiles(oldPath, newPath, deltaPath string) (err error) {
	old, err := os.ReadFile(oldPath)
	if err != nil {
		return
	}
	new, err := os.ReadFile(newPath)
	if err != nil {
		return
	}
	d, err := Diff(old, new)
	if err != nil {
		return errors.Wrapf(err, "diff %s", newPath)
	}
	return os.WriteFile(deltaPath, d, 0644)
}

// PatchFile applies the delta at deltaPath to the file at oldPath and
// returns the result.  Writing the result is left to the caller so it
// can pick an atomic strategy.
func PatchFile(oldPath, deltaPath string) (new []byte, err error) {
	old, err := os.ReadFile(oldPath)
	if err != nil {
		return
	}
	d, err := os.ReadFile(deltaPath)
	if err != nil {
		return
	}
	new, err = Patch(old, d)
	return new, errors.Wrapf(err, "patch %s", oldPath)
}
