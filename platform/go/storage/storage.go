package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ObjectLocation describes where a blob should live.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveDocumentLocation combines the environment prefix and a compliance
// document's identity into a bucket/path pair.
//   - bucket must come from deployment configuration (one bucket per environment class).
//   - envPrefix is e.g. "dev/" or "prod/"; the trailing slash is added when missing.
//   - the object path keys documents by agency so per-agency listing stays a prefix scan:
//     "agencies/<agency_uuid>/compliance/<document_uuid>/<file_name>".
func ResolveDocumentLocation(bucket, envPrefix string, agencyID, documentID uuid.UUID, fileName string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("bucket is required")
	}

	name := strings.TrimSpace(fileName)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ObjectLocation{}, fmt.Errorf("file name is required")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		return ObjectLocation{}, fmt.Errorf("file name must not contain path separators")
	}

	if agencyID == uuid.Nil || documentID == uuid.Nil {
		return ObjectLocation{}, fmt.Errorf("agency and document ids are required")
	}

	prefix := strings.TrimSpace(envPrefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	fullPath := fmt.Sprintf("%sagencies/%s/compliance/%s/%s", prefix, agencyID, documentID, name)
	return ObjectLocation{Bucket: bucket, FullPath: fullPath}, nil
}
