package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/repository"
)

// maxDocumentBytes caps uploaded policy documents at 5 MiB.
const maxDocumentBytes = 5 << 20

// UploadDocument attaches a PDF to a policy, replacing any previous
// document. The file is validated before anything is persisted.
func (h *PolicyHandler) UploadDocument(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, _, status, msg := h.agentPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}

	fh, err := c.FormFile("document")
	if err != nil {
		return fail(c, http.StatusBadRequest, "document file is required")
	}
	if fh.Size > maxDocumentBytes {
		return fail(c, http.StatusBadRequest, "document must be 5MB or smaller")
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType != "application/pdf" || !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return fail(c, http.StatusBadRequest, "only PDF documents are accepted")
	}

	src, err := fh.Open()
	if err != nil {
		return serverError(c)
	}
	defer src.Close()

	// LimitReader guards against a lying Content-Length.
	data, err := io.ReadAll(io.LimitReader(src, maxDocumentBytes+1))
	if err != nil {
		return serverError(c)
	}
	if len(data) > maxDocumentBytes {
		return fail(c, http.StatusBadRequest, "document must be 5MB or smaller")
	}

	if err := h.Policies.SaveDocument(ctx, p.ID, data, contentType, fh.Filename); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "document uploaded", echo.Map{
		"policyId": p.ID,
		"fileName": fh.Filename,
		"size":     len(data),
	})
}

// DocumentInfo reports whether a document is attached and its metadata,
// without transferring the blob.
func (h *PolicyHandler) DocumentInfo(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, status, msg := h.viewerPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"hasDocument": p.HasDocument(),
		"fileName":    p.DocumentName,
		"contentType": p.DocumentType,
		"uploadedAt":  p.DocumentUploaded,
	})
}

// DownloadDocument streams the attached PDF as a file download.
func (h *PolicyHandler) DownloadDocument(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, status, msg := h.viewerPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}

	data, contentType, filename, err := h.Policies.Document(ctx, p.ID)
	if errors.Is(err, repository.ErrNoDocument) {
		return fail(c, http.StatusNotFound, "policy has no document")
	}
	if err != nil {
		return serverError(c)
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, filename))
	return c.Blob(http.StatusOK, contentType, data)
}
