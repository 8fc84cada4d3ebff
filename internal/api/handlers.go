package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"waveline/internal/errkind"
	"waveline/internal/ingest"
	"waveline/internal/logging"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, errkind.Newf(errkind.KindValidation, "upload exceeds %d byte limit", tooLarge.Limit))
			return
		}
		s.writeError(w, errkind.New(errkind.KindValidation, "file is required"))
		return
	}
	defer file.Close()

	tempPath, err := spoolToDisk(file)
	if err != nil {
		s.logger.Error("failed to spool upload", logging.Error(err))
		s.writeError(w, errkind.Wrap(errkind.KindInternal, "store upload", err))
		return
	}

	admission, err := s.ingestSvc.Admit(r.Context(), ingest.Upload{
		TempPath:    tempPath,
		Filename:    header.Filename,
		Source:      r.FormValue("source"),
		ExternalRef: r.FormValue("external_id"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if admission.Cached {
		status = http.StatusOK
	}
	s.writeJSON(w, status, uploadView(admission))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, errkind.Wrap(errkind.KindInternal, "load record", err))
		return
	}
	if record == nil {
		s.writeError(w, errkind.Newf(errkind.KindNotFound, "record %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, recordView(record))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	variant := r.URL.Query().Get("format")

	res, err := s.deliverySvc.Resolve(r.Context(), id, variant)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if wantsRedirect(r) {
		target, err := s.deliverySvc.RedirectURL(r.Context(), res)
		if err != nil {
			s.writeError(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	if err := s.deliverySvc.Stream(r.Context(), res, w); err != nil {
		// Headers are gone; all we can do is log and cut the stream.
		s.logger.Error("download stream aborted",
			logging.String(logging.FieldRecordID, id),
			logging.Error(err),
		)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, errkind.Wrap(errkind.KindInternal, "ledger health", err))
		return
	}

	queueOK := true
	var queueDetail string
	if s.queuePing != nil {
		if err := s.queuePing.Ping(r.Context()); err != nil {
			queueOK = false
			queueDetail = err.Error()
		}
	}

	payload := healthView{
		Status: "ok",
		Ledger: ledgerHealthView{
			Total:     health.Total,
			Pending:   health.Pending,
			Completed: health.Completed,
			Failed:    health.Failed,
		},
		Queue: queueHealthView{OK: queueOK, Detail: queueDetail},
	}
	status := http.StatusOK
	if !queueOK {
		payload.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

func wantsRedirect(r *http.Request) bool {
	switch r.URL.Query().Get("redirect") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// spoolToDisk stages the multipart part in a temp file so admission can
// probe and fingerprint it. Ownership of the file passes to the admission
// call; on spool failure the partial file is removed here.
func spoolToDisk(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "waveline-upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errkind.KindOf(err)
	if kind == errkind.KindInternal {
		s.logger.Error("request failed", logging.Error(err))
	}
	s.writeJSON(w, errkind.HTTPStatus(kind), errorEnvelope{
		Error: errorBody{
			Kind:    string(kind),
			Message: errkind.MessageOf(err),
			Details: errkind.DetailsOf(err),
		},
	})
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
