package model

// ActualFileState is a snapshot of one installed file.
type ActualFileState struct {
	Path    string
	Exists  bool
	Hash    string
	Size    int64
	Version Version
}

// PackageFileDifference pairs an installed file with its target.
type PackageFileDifference struct {
	ActualState ActualFileState
	PackageFile PackageFile
}

// IsDifferent is true if the file is missing, if both sides carry a
// version and the versions differ, or if the hashes differ.
func (d PackageFileDifference) IsDifferent() bool {
	if !d.ActualState.Exists {
		return true
	}
	if d.ActualState.Version != nil && d.PackageFile.FileVersion != nil &&
		!d.ActualState.Version.Equal(d.PackageFile.FileVersion) {
		return true
	}
	return d.ActualState.Hash != d.PackageFile.ContentHash
}

// PackageDifference compares an installed tree against a package.
type PackageDifference struct {
	Package         *Package
	FileDifferences []PackageFileDifference
}

// DifferentFiles lists the entries that need work.
func (d *PackageDifference) DifferentFiles() (out []PackageFileDifference) {
	for _, fd := range d.FileDifferences {
		if fd.IsDifferent() {
			out = append(out, fd)
		}
	}
	return
}

// IsDifferent is true if any file differs.
func (d *PackageDifference) IsDifferent() bool {
	return len(d.DifferentFiles()) > 0
}
