/*

Package model holds the immutable release descriptions shared by the
builder, the host store and the client.

- Package: one release's file set (header plus per-file hash, size and
  version), indexed by path and by file id at construction
- PackageProjection: the hosted files a Package can be downloaded from
- HostedFile: one content-addressed blob on the host; its content is
  either a full bundle of package files (Items) or a set of binary
  deltas against earlier releases (Deltas)
- Manifest: the list of published package headers, ordered by date
- PackageDifference: per install attempt, which package files do not
  match what is on disk

*/

package model
