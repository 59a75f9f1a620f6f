package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mrsh/internal/apierr"
	"mrsh/internal/rpc"
)

// Multipart parts above this size spill to temporary files.
const multipartMemory = 8 << 20

var errMalformedBody = errors.New("malformed request body")

// CallHandler exposes the dispatcher as /mrsh/api/{method}.
type CallHandler struct {
	dispatcher *rpc.Dispatcher
}

func NewCallHandler(dispatcher *rpc.Dispatcher) *CallHandler {
	return &CallHandler{dispatcher: dispatcher}
}

// Serve always answers 200 with an Envelope; the outcome is in the body.
func (h *CallHandler) Serve(w http.ResponseWriter, r *http.Request) {
	args, err := readArgs(r)
	if err != nil {
		writeError(w, http.StatusOK, apierr.ErrInvalidRequest)
		return
	}

	call := &rpc.Call{
		Method: chi.URLParam(r, "method"),
		Args:   args,
		Token:  bearerToken(r),
	}
	if raw, ok := args["version"]; ok {
		version, ok := raw.(string)
		if !ok {
			writeError(w, http.StatusOK, apierr.InvalidArgumentType("version"))
			return
		}
		call.Version = version
		delete(args, "version")
	}
	if call.Token != "" {
		delete(args, "token")
	}

	result, err := h.dispatcher.Dispatch(r.Context(), call)
	if err != nil {
		writeError(w, http.StatusOK, err)
		return
	}
	writeResult(w, result)
}

// readArgs merges query parameters with the body's arguments. Body values
// win. Uploaded files are passed through as *multipart.FileHeader.
func readArgs(r *http.Request) (rpc.Args, error) {
	args := rpc.Args{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			args[name] = values[0]
		}
	}

	if r.Method != http.MethodPost || r.ContentLength == 0 {
		return args, nil
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	switch mediaType {
	case "application/json":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		for name, v := range body {
			args[name] = v
		}

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		for name, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				args[name] = values[0]
			}
		}
		for name, files := range r.MultipartForm.File {
			if len(files) > 0 {
				args[name] = files[0]
			}
		}

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		for name, values := range r.PostForm {
			if len(values) > 0 {
				args[name] = values[0]
			}
		}

	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", errMalformedBody, mediaType)
	}

	return args, nil
}
