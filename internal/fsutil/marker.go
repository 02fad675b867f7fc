package fsutil

import "bytes"

// ManagedMarkerPrefix is the prefix for all botpack-generated-file markers.
const ManagedMarkerPrefix = "<!-- botpack:managed"

// ManagedMarkerSimple is the simple marker without attributes.
const ManagedMarkerSimple = "<!-- botpack:managed -->"

// IsManagedFile checks if data contains a botpack managed marker.
func IsManagedFile(data []byte) bool {
	return bytes.Contains(data, []byte(ManagedMarkerPrefix))
}
