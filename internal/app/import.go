package app

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	internaldb "github.com/mbarreto/almox/internal/db"
	"github.com/mbarreto/almox/internal/httpx"
	"github.com/mbarreto/almox/internal/importer"
)

// handleImportUpload accepts the spreadsheet as either a multipart form
// (field "file") or a JSON body carrying base64 content, decodes and parses
// it, and opens a session holding the result.
func (a *App) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	var (
		fileName string
		data     []byte
	)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		if err := r.ParseMultipartForm(a.cfg.MaxUploadBytes); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid multipart data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		data, err = io.ReadAll(io.LimitReader(file, a.cfg.MaxUploadBytes+1))
		if err != nil || int64(len(data)) > a.cfg.MaxUploadBytes {
			httpx.WriteError(w, http.StatusBadRequest, "cannot read uploaded file")
			return
		}
		fileName = header.Filename
	} else {
		type request struct {
			FileName      string `json:"fileName"`
			ContentBase64 string `json:"contentBase64"`
		}
		var req request
		// base64 inflates by a third, hence the slack on the body limit
		if err := httpx.DecodeJSONLimit(r, &req, a.cfg.MaxUploadBytes*4/3+1024); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid base64 file content")
			return
		}
		fileName = req.FileName
		data = decoded
	}

	if strings.TrimSpace(fileName) == "" || len(data) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "file name and content are required")
		return
	}

	records, err := importer.DecodeFile(fileName, data)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrUnsupportedFile):
			httpx.WriteError(w, http.StatusBadRequest, "unsupported file type: use .csv, .xls or .xlsx")
		case errors.Is(err, importer.ErrUnreadableFile):
			httpx.WriteError(w, http.StatusBadRequest, "file could not be read")
		default:
			httpx.WriteError(w, http.StatusBadRequest, "file could not be read")
		}
		return
	}

	session := importer.NewSession(fileName)
	rows, warnings := importer.ParseRows(records, session.Groups())
	session.SetParsed(records, rows, warnings)
	a.addSession(session)

	httpx.WriteJSON(w, http.StatusCreated, importStateResponse(session))
}

func (a *App) handleImportState(w http.ResponseWriter, session *importer.Session) {
	httpx.WriteJSON(w, http.StatusOK, importStateResponse(session))
}

func importStateResponse(session *importer.Session) map[string]any {
	rows, warnings := session.Rows()
	return map[string]any{
		"session_id": session.ID,
		"file_name":  session.FileName,
		"total_rows": len(rows),
		"rows":       rows,
		"warnings":   warnings,
		"grupos":     session.Groups().Len(),
	}
}

// handleSetGroups takes a pasted JSON array of {codigo, grupo} mappings.
// Malformed JSON is the one hard failure here: the session keeps its
// previous state untouched.
func (a *App) handleSetGroups(w http.ResponseWriter, r *http.Request, session *importer.Session) {
	payload, err := httpx.ReadBody(r, 1<<20)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := session.Groups().LoadJSON(payload); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid group mapping JSON")
		return
	}
	session.Reparse()

	httpx.WriteJSON(w, http.StatusOK, importStateResponse(session))
}

func (a *App) handleClearGroups(w http.ResponseWriter, session *importer.Session) {
	session.Groups().Clear()
	session.Reparse()
	httpx.WriteJSON(w, http.StatusOK, importStateResponse(session))
}

// handleReconcile runs the read-only classification against the store. The
// result is cached on the session so a later commit applies exactly what the
// user reviewed.
func (a *App) handleReconcile(w http.ResponseWriter, r *http.Request, session *importer.Session) {
	rows, _ := session.Rows()
	if len(rows) == 0 {
		httpx.WriteError(w, http.StatusConflict, "no parsed rows to reconcile")
		return
	}

	result, err := importer.Reconcile(r.Context(), a.itens, rows)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	session.SetReconciled(result)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"session_id":       session.ID,
		"prepared_updates": result.PreparedUpdates,
		"new_items":        result.NewItems,
		"update_count":     len(result.PreparedUpdates),
		"new_count":        len(result.NewItems),
	})
}

func (a *App) handleCommit(w http.ResponseWriter, r *http.Request, session *importer.Session) {
	rec := session.Reconciled()
	if rec == nil {
		httpx.WriteError(w, http.StatusConflict, "reconcile before committing")
		return
	}
	if !session.BeginCommit() {
		httpx.WriteError(w, http.StatusConflict, "a commit is already running for this session")
		return
	}

	result, err := importer.Commit(r.Context(), a.itens, rec, session.Publish)
	if result == nil {
		result = &importer.CommitResult{FailedUpdates: []importer.FailedUpdate{}, InsertWarnings: []string{}}
	}
	session.EndCommit(result.FailedUpdates)

	rows, warnings := session.Rows()
	_ = internaldb.RecordImportRun(r.Context(), a.db, internaldb.ImportRun{
		FileName:  session.FileName,
		TotalRows: len(rows),
		Updated:   result.Updated,
		Inserted:  result.Inserted,
		Failed:    result.Failed,
		Warnings:  len(warnings),
		SessionID: session.ID,
	})

	response := map[string]any{
		"session_id":      session.ID,
		"updated":         result.Updated,
		"inserted":        result.Inserted,
		"failed":          result.Failed,
		"failed_updates":  result.FailedUpdates,
		"insert_warnings": result.InsertWarnings,
	}
	if err != nil {
		response["error"] = err.Error()
		if result.Updated == 0 && result.Inserted == 0 {
			httpx.WriteJSON(w, http.StatusInternalServerError, response)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

// handleRetry re-submits only the updates that failed in the last commit.
func (a *App) handleRetry(w http.ResponseWriter, r *http.Request, session *importer.Session) {
	failed := session.FailedUpdates()
	if len(failed) == 0 {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"session_id": session.ID, "updated": 0, "failed": 0,
			"failed_updates": []importer.FailedUpdate{},
		})
		return
	}
	if !session.BeginCommit() {
		httpx.WriteError(w, http.StatusConflict, "a commit is already running for this session")
		return
	}

	result, err := importer.RetryFailed(r.Context(), a.itens, failed, session.Publish)
	if result == nil {
		result = &importer.CommitResult{FailedUpdates: []importer.FailedUpdate{}}
	}
	session.EndCommit(result.FailedUpdates)

	response := map[string]any{
		"session_id":     session.ID,
		"updated":        result.Updated,
		"failed":         result.Failed,
		"failed_updates": result.FailedUpdates,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (a *App) handleDiscardSession(w http.ResponseWriter, session *importer.Session) {
	a.removeSession(session.ID)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleProgressWS streams commit progress events to the client until the
// session closes or the client goes away.
func (a *App) handleProgressWS(w http.ResponseWriter, r *http.Request, session *importer.Session) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type":       "connected",
		"session_id": session.ID,
	}); err != nil {
		return
	}

	events, cancel := session.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteJSON(map[string]any{"type": "closed"})
				return
			}
			if err := conn.WriteJSON(map[string]any{
				"type":    "progress",
				"stage":   ev.Stage,
				"done":    ev.Done,
				"total":   ev.Total,
				"failed":  ev.Failed,
				"message": ev.Message,
				"file":    session.FileName,
				"session": session.ID,
			}); err != nil {
				return
			}
		}
	}
}
