package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"bil/internal/core"
)

// maxJSONBody bounds JSON request bodies. Payments and names are small.
const maxJSONBody = 1 << 20

var errMalformedBody = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidInput)

// nameBody is the request body of project and paygroup create/rename.
type nameBody struct {
	Name string `json:"name"`
}

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ErrTooLarge
		}
		if errors.Is(err, core.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return errMalformedBody
	}
	return nil
}

// pathIDs returns the numeric route variables in the given order. Routes
// constrain them to digits, so a parse failure only happens on overflow.
func pathIDs(r *http.Request, names ...string) ([]int, error) {
	vars := mux.Vars(r)
	ids := make([]int, len(names))
	for i, name := range names {
		id, err := strconv.Atoi(vars[name])
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%s %q: %w", name, vars[name], core.ErrNotFound)
		}
		ids[i] = id
	}
	return ids, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", core.ErrInvalidInput, key)
	}
	return b, nil
}

// uploadedFile extracts the multipart "file" field. The caller closes it.
func uploadedFile(w http.ResponseWriter, r *http.Request, maxBytes int64) (io.ReadCloser, error) {
	// Leave room for the multipart envelope; the attachment store enforces
	// the exact limit on the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64<<10)
	f, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, core.ErrTooLarge
		case errors.Is(err, http.ErrMissingFile):
			return nil, fmt.Errorf("%w: multipart field \"file\" is required", core.ErrInvalidInput)
		default:
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
		}
	}
	return f, nil
}
