package image

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/radif/imagestore/internal/response"
	"github.com/radif/imagestore/internal/storage"
)

// maxFormOverhead is allowed on top of the file limit for multipart
// boundaries, headers and the reference field.
const maxFormOverhead = 64 << 10

// maxDeleteBody caps the JSON body of a delete request.
const maxDeleteBody = 64 << 10

// Limits bounds what a single upload may contain.
type Limits struct {
	MaxBytes          int64
	MultipartMemory   int64
	AllowedMediaTypes []string // empty allows any type
}

// FileOpener opens stored files for direct serving.
type FileOpener interface {
	Open(ctx context.Context, name string) (*os.File, error)
}

// Handler holds HTTP handlers for the image endpoints.
type Handler struct {
	svc    *Service
	limits Limits
	log    *slog.Logger
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service, limits Limits, log *slog.Logger) *Handler {
	return &Handler{svc: svc, limits: limits, log: log}
}

type deleteData struct {
	ImagePath string `json:"imagePath,omitempty" example:"/uploads/1691763771123-foto.png"`
	PublicID  string `json:"publicId,omitempty"  example:"uploads/5f0c3a1e-6d0b-4bb4-9a53-5a1a4c1f4f0e.png"`
}

// Create godoc
//
//	@Summary		Upload image
//	@Description	Store a new image. The disk backend returns a path under /uploads; the remote backend returns a URL and a publicId.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Image file"
//	@Success		200		{object}	Image
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		413		{object}	response.ErrorBody
//	@Failure		415		{object}	response.ErrorBody
//	@Failure		500		{object}	response.ErrorBody
//	@Router			/upload [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err, msgCreateFailed)
		return
	}
	defer cleanup()

	img, err := h.svc.Create(r.Context(), *up)
	if err != nil {
		h.writeError(w, r, err, msgCreateFailed)
		return
	}
	response.OK(w, img)
}

// Replace godoc
//
//	@Summary		Replace image
//	@Description	Store a new image and remove the one it supersedes. The old reference goes in oldImage (disk) or oldImageId (remote); without it this is a plain upload. Failing to remove the old image never fails the request.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Image file"
//	@Param			oldImage	formData	string	false	"Path of the image being replaced (disk backend)"
//	@Param			oldImageId	formData	string	false	"Identifier of the image being replaced (remote backend)"
//	@Success		200			{object}	Image
//	@Failure		400			{object}	response.ErrorBody
//	@Failure		413			{object}	response.ErrorBody
//	@Failure		415			{object}	response.ErrorBody
//	@Failure		500			{object}	response.ErrorBody
//	@Router			/upload [put]
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err, msgReplaceFailed)
		return
	}
	defer cleanup()

	oldRef := r.FormValue(h.svc.Variant().OldRefField)

	img, err := h.svc.Replace(r.Context(), *up, oldRef)
	if err != nil {
		h.writeError(w, r, err, msgReplaceFailed)
		return
	}
	response.OK(w, img)
}

// Delete godoc
//
//	@Summary		Delete image
//	@Description	Remove a stored image. Send imagePath (disk backend) or publicId (remote backend).
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Param			request	body		deleteData	true	"Image reference"
//	@Success		200		{object}	response.MessageBody
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Failure		413		{object}	response.ErrorBody
//	@Failure		500		{object}	response.ErrorBody
//	@Router			/upload [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDeleteBody)

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isTooLarge(err) {
			response.TooLarge(w, msgTooLarge)
			return
		}
		if errors.Is(err, io.EOF) {
			response.BadRequest(w, msgNoReference)
			return
		}
		response.BadRequest(w, msgBadBody)
		return
	}
	ref, _ := body[h.svc.Variant().RefField].(string)

	if err := h.svc.Delete(r.Context(), ref); err != nil {
		h.writeError(w, r, err, msgDeleteFailed)
		return
	}
	response.Message(w, msgDeleted)
}

// ServeFiles returns a handler streaming stored files by name, for backends
// that keep bytes on local disk.
//
//	@Summary	Fetch uploaded image
//	@Tags		images
//	@Produce	octet-stream
//	@Param		name	path	string	true	"Stored file name"
//	@Success	200
//	@Failure	404	{object}	response.ErrorBody
//	@Router		/uploads/{name} [get]
func (h *Handler) ServeFiles(files FileOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		f, err := files.Open(r.Context(), name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.NotFound(w, msgNotFound)
				return
			}
			h.log.Error("open stored image", "name", name, "err", err, "request_id", chiMiddleware.GetReqID(r.Context()))
			response.InternalError(w, msgOpenFailed)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			h.log.Error("stat stored image", "name", name, "err", err, "request_id", chiMiddleware.GetReqID(r.Context()))
			response.InternalError(w, msgOpenFailed)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

// readUpload parses the multipart body and returns the "file" part, with
// its content type sniffed and checked against the limits. cleanup removes
// any temporary files the multipart parser spilled to disk.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*Upload, func(), error) {
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes+maxFormOverhead)
	if err := r.ParseMultipartForm(h.limits.MultipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, noop, ErrTooLarge
		}
		return nil, noop, fmt.Errorf("%w: %v", ErrNoFile, err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return nil, noop, ErrNoFile
	}
	closeAll := func() {
		file.Close()
		cleanup()
	}

	if header.Size > h.limits.MaxBytes {
		closeAll()
		return nil, noop, ErrTooLarge
	}

	buffered := bufio.NewReader(file)
	peek, _ := buffered.Peek(512)
	mediaType := http.DetectContentType(peek)
	if !h.allowed(mediaType) {
		closeAll()
		return nil, noop, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	return &Upload{
		Name:        header.Filename,
		Body:        buffered,
		Size:        header.Size,
		ContentType: mediaType,
	}, closeAll, nil
}

func (h *Handler) allowed(contentType string) bool {
	if len(h.limits.AllowedMediaTypes) == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, t := range h.limits.AllowedMediaTypes {
		if strings.EqualFold(strings.TrimSpace(t), mediaType) {
			return true
		}
	}
	return false
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

// writeError maps service errors onto status codes. Backend failures get a
// generic message; the cause is only logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, failMsg string) {
	switch {
	case errors.Is(err, ErrNoFile):
		response.BadRequest(w, msgNoFile)
	case errors.Is(err, ErrNoReference):
		response.BadRequest(w, msgNoReference)
	case errors.Is(err, ErrTooLarge):
		response.TooLarge(w, msgTooLarge)
	case errors.Is(err, ErrUnsupportedType):
		h.log.Debug("rejected upload", "err", err, "request_id", chiMiddleware.GetReqID(r.Context()))
		response.UnsupportedMediaType(w, msgUnsupportedType)
	case h.svc.IsNotFound(err):
		response.NotFound(w, msgNotFound)
	default:
		h.log.Error("image request failed",
			"method", r.Method,
			"backend", h.svc.Variant().Name,
			"err", err,
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
		response.InternalError(w, failMsg)
	}
}
