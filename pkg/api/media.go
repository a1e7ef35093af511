package api

import (
	"net/http"

	"github.com/ethpandaops/contentoor/pkg/media"
)

// handleMediaUpload returns a presigned PUT URL for a repository asset.
func (s *server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	var req media.UploadRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	upload, err := s.presigner.PresignUpload(r.Context(), repoParam(r), req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, upload)
}
