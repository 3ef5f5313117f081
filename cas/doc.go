/*

Package cas hashes, bundles and names blobs by their content.

Vocabulary:

- algo: name (string) describing hash algorithm ("md5", "sha256", "sha512")
- hash: lowercase hex digest of a blob or file
- worm: write-once file; data is hashed while it is written to a temp
  file, and the temp file is renamed to its hash when closed
- bundle: compressed tar archive of one or more files, stored as a worm
- codec: the compression applied to every blob stored on a host
- relpath: slash-separated path relative to a bundle root

*/

package cas
