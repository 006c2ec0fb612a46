package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reimagine/internal/api"
	"reimagine/internal/gallery"
	"reimagine/internal/models"
)

const (
	uploadMultipartMemory = 8 << 20 // 8 MiB
	uploadEnvelopeBytes   = 1 << 20 // multipart framing and the comment field
)

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.gallery.MaxUploadBytes()+uploadEnvelopeBytes)
	if err := r.ParseMultipartForm(uploadMultipartMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}

	in := gallery.UploadInput{Comment: r.FormValue("comment")}
	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	default:
		defer file.Close()
		in.Content = file
		in.Filename = header.Filename
	}

	image, err := s.gallery.Upload(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, image)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.gallery.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if images == nil {
		images = []models.Image{}
	}
	s.writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	filename, ok := s.pathFilenameOrBadRequest(w, r)
	if !ok {
		return
	}
	image, err := s.gallery.Get(r.Context(), filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, image)
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	filename, ok := s.pathFilenameOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.CommentUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.Comment == nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("comment is required"), ErrCodeMissingRequired))
		return
	}

	image, err := s.gallery.EditComment(r.Context(), filename, *req.Comment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, image)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	filename, ok := s.pathFilenameOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.gallery.Delete(context.WithoutCancel(r.Context()), filename); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Filename: filename, Deleted: true})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// Provider calls outlive the default write deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(generateWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log().Debug("extend write deadline", "error", err)
	}

	var req api.GenerateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	// A started generation finishes and is linked even if the client hangs up.
	image, err := s.gallery.Generate(context.WithoutCancel(r.Context()), gallery.GenerateInput{
		Filename: strings.TrimSpace(req.Filename),
		Comment:  req.Comment,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, image)
}

func (s *Server) handleFetchBlob(w http.ResponseWriter, r *http.Request) {
	ns, err := models.ParseNamespace(r.PathValue("namespace"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidNS))
		return
	}
	filename, ok := s.pathFilenameOrBadRequest(w, r)
	if !ok {
		return
	}

	blob, err := s.gallery.FetchBlob(r.Context(), ns, filename)
	if err != nil {
		if gallery.KindOf(err) == gallery.KindNotFound {
			err = notFoundCode(fmt.Errorf("file %s not found", filename), ErrCodeBlobNotFound)
		}
		s.writeServiceError(w, r, err)
		return
	}
	defer blob.Reader.Close()

	w.Header().Set("Content-Type", blob.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", blob.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Reader); err != nil {
		s.log().Warn("stream blob", "namespace", ns, "filename", filename, "error", err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.maintenanceLimiter, "maintenance job", func() {
		result, err := s.gallery.Reset(context.WithoutCancel(r.Context()))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.ResetResponse{
			RecordsRemoved:  result.RecordsRemoved,
			OriginalsPurged: result.OriginalsPurged,
			GeneratedPurged: result.GeneratedPurged,
		})
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	minAge, err := queryDuration(r, "min_age", s.gallery.SweepMinAge())
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	s.withLimiter(w, r, s.maintenanceLimiter, "maintenance job", func() {
		result, err := s.gallery.SweepOrphans(r.Context(), apply, minAge)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.SweepResponse{
			CandidateCount: result.CandidateCount,
			DeletedCount:   result.DeletedCount,
			FailedCount:    result.FailedCount,
			ReclaimedBytes: result.ReclaimedBytes,
			DryRun:         result.DryRun,
			Candidates:     result.Candidates,
		})
	})
}

func (s *Server) pathFilenameOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	filename := strings.TrimSpace(r.PathValue("filename"))
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid filename"), ErrCodeInvalidFilename))
		return "", false
	}
	return filename, true
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
