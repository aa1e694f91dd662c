package server

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	documentdomain "github.com/timberline-hq/timberline/internal/document/domain"
)

// UploadDocuments accepts a multipart batch and reports a per-file
// result, so one bad file never fails the rest of the batch.
func (s *Server) UploadDocuments(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, documentdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectDocument, authorization.ActionDocumentUpload) {
		return
	}

	kind := strings.TrimSpace(c.DefaultQuery("kind", documentdomain.KindDocument))

	form, err := c.MultipartForm()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	fileHeaders := form.File["files"]
	uploads := make([]documentdomain.FileUpload, 0, len(fileHeaders))
	opened := make([]multipart.File, 0, len(fileHeaders))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		opened = append(opened, file)
		uploads = append(uploads, documentdomain.FileUpload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		})
	}

	results, err := s.documentSvc.BatchUpload(c.Request.Context(), userID, projectID, kind, uploads)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) ListDocuments(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, documentdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectDocument, authorization.ActionDocumentView) {
		return
	}

	kind := strings.TrimSpace(c.Query("kind"))
	documents, err := s.documentSvc.ListByProject(c.Request.Context(), projectID, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

func (s *Server) GetDocument(c *gin.Context) {
	doc, ok := s.loadAuthorizedDocument(c, authorization.ActionDocumentView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) DownloadDocument(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("docId"))
	if docID == "" {
		AbortWithError(c, documentdomain.ErrNotFound)
		return
	}

	doc, reader, err := s.documentSvc.Open(c.Request.Context(), docID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer reader.Close()

	if !s.authorize(c, doc.ProjectID, authorization.ObjectDocument, authorization.ActionDocumentView) {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.ContentType, reader, nil)
}

func (s *Server) DeleteDocument(c *gin.Context) {
	doc, ok := s.loadAuthorizedDocument(c, authorization.ActionDocumentDelete)
	if !ok {
		return
	}

	if err := s.documentSvc.Delete(c.Request.Context(), doc.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) loadAuthorizedDocument(c *gin.Context, action string) (*documentdomain.DocumentResponse, bool) {
	docID := strings.TrimSpace(c.Param("docId"))
	if docID == "" {
		AbortWithError(c, documentdomain.ErrNotFound)
		return nil, false
	}

	doc, err := s.documentSvc.Get(c.Request.Context(), docID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !s.authorize(c, doc.ProjectID, authorization.ObjectDocument, action) {
		return nil, false
	}
	return doc, true
}
