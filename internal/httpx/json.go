package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

type ErrorResponse struct {
	Error string `json:"error"`
}

func DecodeJSON(r *http.Request, dst any) error {
	return DecodeJSONLimit(r, dst, defaultBodyLimit)
}

// DecodeJSONLimit reads a single JSON object from the request body, rejecting
// bodies over limit. Uploads carried as base64 JSON need limits well beyond
// the default.
func DecodeJSONLimit(r *http.Request, dst any, limit int64) error {
	payload, err := ReadBody(r, limit)
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// ReadBody drains the request body up to limit bytes and errors past it.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > limit {
		return nil, fmt.Errorf("request body exceeds %d byte limit", limit)
	}
	if len(payload) == 0 {
		return nil, errors.New("request body is empty")
	}
	return payload, nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}
