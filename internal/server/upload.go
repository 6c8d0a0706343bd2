package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/matzehuels/restyle/pkg/errors"
)

const (
	uploadField     = "image"
	multipartMemory = 8 << 20
)

// upload is a photo taken from a request body.
type upload struct {
	data        []byte
	filename    string
	contentType string
}

// renderParams are the style and quality a client asked for.
type renderParams struct {
	Style   string `json:"style"`
	Quality int    `json:"quality"`
}

// readUpload accepts either a multipart form with an "image" file part or
// a raw body with an image/* content type.
func readUpload(r *http.Request) (*upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "missing or malformed Content-Type")
	}

	switch {
	case mediaType == "multipart/form-data":
		return readMultipart(r)
	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		return newUpload(data, "")
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported content type %q", mediaType)
	}
}

func readMultipart(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyError(err)
	}
	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "form field %q with a photo is required", uploadField)
	}
	defer f.Close()

	if hdr.Filename != "" {
		if err := errors.ValidateFilename(hdr.Filename); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, bodyError(err)
	}
	return newUpload(data, hdr.Filename)
}

func newUpload(data []byte, filename string) (*upload, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidImage, "uploaded photo is empty")
	}
	return &upload{
		data:        data,
		filename:    filename,
		contentType: http.DetectContentType(data),
	}, nil
}

// bodyError turns a body read failure into PAYLOAD_TOO_LARGE or
// INVALID_INPUT.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.Wrap(errors.ErrCodePayloadTooLarge, err, "upload exceeds %d bytes", maxErr.Limit)
	}
	return errors.Wrap(errors.ErrCodeInvalidInput, err, "cannot read request body")
}

// readParams reads style and quality from a JSON body, or else from form
// values and the query string.
func readParams(r *http.Request) (renderParams, error) {
	var p renderParams

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !stderrors.Is(err, io.EOF) {
			var maxErr *http.MaxBytesError
			if stderrors.As(err, &maxErr) {
				return p, bodyError(err)
			}
			return p, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed JSON body")
		}
		return p, nil
	}

	if v := r.FormValue("style"); v != "" {
		p.Style = v
	}
	if v := r.FormValue("quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New(errors.ErrCodeInvalidQuality, "quality must be an integer, got %q", v)
		}
		p.Quality = q
	}
	return p, nil
}
