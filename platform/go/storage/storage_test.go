package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestResolveDocumentLocation(t *testing.T) {
	agencyID := uuid.New()
	documentID := uuid.New()

	loc, err := ResolveDocumentLocation("crewdeck-dev-assets", "dev/", agencyID, documentID, "insurance.pdf")
	require.NoError(t, err)
	require.Equal(t, "crewdeck-dev-assets", loc.Bucket)
	require.Equal(t, "dev/agencies/"+agencyID.String()+"/compliance/"+documentID.String()+"/insurance.pdf", loc.FullPath)
}

func TestResolveDocumentLocation_trimsSlashAndValidates(t *testing.T) {
	agencyID := uuid.New()
	documentID := uuid.New()

	// Missing trailing slash on the prefix is tolerated.
	loc, err := ResolveDocumentLocation("bucket", "prod", agencyID, documentID, "/license.pdf")
	require.NoError(t, err)
	require.Equal(t, "prod/agencies/"+agencyID.String()+"/compliance/"+documentID.String()+"/license.pdf", loc.FullPath)

	_, err = ResolveDocumentLocation("", "dev/", agencyID, documentID, "file.pdf")
	require.Error(t, err)

	_, err = ResolveDocumentLocation("bucket", "dev/", agencyID, documentID, " ")
	require.Error(t, err)

	_, err = ResolveDocumentLocation("bucket", "dev/", agencyID, documentID, "../escape.pdf")
	require.Error(t, err)

	_, err = ResolveDocumentLocation("bucket", "dev/", uuid.Nil, documentID, "file.pdf")
	require.Error(t, err)
}
