package handler

import (
	"bytes"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"rtodocs/internal/http/middleware"
	"rtodocs/internal/logging"
	"rtodocs/internal/model"
	"rtodocs/internal/service"
)

type documentResponse struct {
	Success  bool            `json:"success"`
	Document *model.Document `json:"document"`
}

type documentsResponse struct {
	Success   bool             `json:"success"`
	Documents []model.Document `json:"documents"`
}

type pageResponse struct {
	Success bool `json:"success"`
	*service.DocumentListResult
}

type verifyRequest struct {
	Status string `json:"status" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// UploadDocument godoc
// @Summary Upload a document
// @Description multipart/form-data with one file (jpeg, jpg, png or pdf, at most 5 MiB) plus entity_type, entity_id and document_type
// @Tags documents
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "document file"
// @Param entity_type formData string true "VEHICLE, LICENSE_APPLICATION, CHALLAN, APPOINTMENT or USER_PROFILE"
// @Param entity_id formData string true "entity identifier"
// @Param document_type formData string true "document type"
// @Success 201 {object} documentResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 429 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/documents/upload [post]
func UploadDocument(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := middleware.CallerFrom(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		}

		boundary := string(c.Request().Header.MultipartFormBoundary())
		if boundary == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CONTENT_TYPE", "content type must be multipart/form-data")
		}

		var body io.Reader = c.Context().RequestBodyStream()
		if body == nil {
			body = bytes.NewReader(c.Body())
		}

		doc, err := svc.Upload(c.UserContext(), caller, body, boundary)
		if err != nil {
			return respondError(c, log, "upload_document", err)
		}
		return c.Status(fiber.StatusCreated).JSON(documentResponse{Success: true, Document: doc})
	}
}

// ListEntityDocuments godoc
// @Summary List the documents of an entity
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param entityId path string true "entity identifier"
// @Success 200 {object} documentsResponse
// @Failure 401 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/documents/entity/{entityId} [get]
func ListEntityDocuments(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := svc.ListByEntity(c.UserContext(), c.Params("entityId"))
		if err != nil {
			return respondError(c, log, "list_documents", err)
		}
		return c.JSON(documentsResponse{Success: true, Documents: docs})
	}
}

// ListDocuments godoc
// @Summary Review queue
// @Description Documents in one status (PENDING by default), newest first.
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param status query string false "PENDING, VERIFIED or REJECTED"
// @Param limit query int false "page size (max 100)" default(20)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} pageResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Router /api/documents [get]
func ListDocuments(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListByStatus(c.UserContext(), c.Query("status"), limit, offset)
		if err != nil {
			return respondError(c, log, "list_documents", err)
		}
		return c.JSON(pageResponse{Success: true, DocumentListResult: res})
	}
}

// GetDocument godoc
// @Summary Get document metadata
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id (UUID)"
// @Success 200 {object} documentResponse
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/documents/{id} [get]
func GetDocument(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !validID(id) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, log, "get_document", err)
		}
		return c.JSON(documentResponse{Success: true, Document: doc})
	}
}

// VerifyDocument godoc
// @Summary Verify or reject a document
// @Tags documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id (UUID)"
// @Param body body verifyRequest true "VERIFIED or REJECTED"
// @Success 200 {object} documentResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/documents/{id}/verify [put]
func VerifyDocument(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := middleware.CallerFrom(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		}
		id := c.Params("id")
		if !validID(id) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON with a status field")
		}
		if err := validate.Struct(req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "status is required")
		}

		doc, err := svc.Verify(c.UserContext(), caller, id, req.Status)
		if err != nil {
			return respondError(c, log, "verify_document", err)
		}
		return c.JSON(documentResponse{Success: true, Document: doc})
	}
}

// DownloadDocument godoc
// @Summary Download a document file
// @Tags documents
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "document id (UUID)"
// @Success 200 {file} binary
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/documents/{id}/download [get]
func DownloadDocument(svc service.DocumentService, log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !validID(id) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		dl, err := svc.Open(c.UserContext(), id)
		if err != nil {
			return respondError(c, log, "download_document", err)
		}

		c.Attachment(dl.Document.FileName)
		if dl.Document.MimeType != "" {
			c.Set(fiber.HeaderContentType, dl.Document.MimeType)
		}
		// the response writer closes Content once the body is sent
		return c.SendStream(dl.Content, int(dl.Size))
	}
}
