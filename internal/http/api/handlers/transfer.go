package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/exporter"
	"github.com/cavelog/cavelog/internal/importer"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxImportBytes caps the size of an uploaded CSV file.
const maxImportBytes = 1 << 20

// TransferHandler serves CSV import and logbook export.
type TransferHandler struct {
	importer *importer.Service
	exporter *exporter.Service
}

// NewTransferHandler constructs a TransferHandler.
func NewTransferHandler(db *gorm.DB) *TransferHandler {
	return &TransferHandler{importer: importer.NewService(db), exporter: exporter.NewService(db)}
}

func readImportFile(c *gin.Context) ([]byte, error) {
	header, errFile := c.FormFile("file")
	if errFile != nil {
		return nil, apperr.FieldError("file", "This field is required.")
	}
	if header.Size > maxImportBytes {
		return nil, apperr.FieldError("file", fmt.Sprintf("Imported file must be smaller than %s.", humanize.IBytes(maxImportBytes)))
	}
	f, errOpen := header.Open()
	if errOpen != nil {
		return nil, fmt.Errorf("api: open upload: %w", errOpen)
	}
	defer func() { _ = f.Close() }()
	data, errRead := io.ReadAll(io.LimitReader(f, maxImportBytes+1))
	if errRead != nil {
		return nil, fmt.Errorf("api: read upload: %w", errRead)
	}
	return data, nil
}

// Preview validates an uploaded CSV file without saving it.
func (h *TransferHandler) Preview(c *gin.Context) {
	data, errRead := readImportFile(c)
	if errRead != nil {
		respondError(c, errRead)
		return
	}
	preview, errPreview := h.importer.Preview(c.Request.Context(), CurrentUser(c), data)
	if errPreview != nil {
		respondError(c, errPreview)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": preview.Valid(), "trips": preview.Drafts, "errors": preview.Errors})
}

// Import saves every row of an uploaded CSV file, or nothing.
func (h *TransferHandler) Import(c *gin.Context) {
	data, errRead := readImportFile(c)
	if errRead != nil {
		respondError(c, errRead)
		return
	}
	created, errCommit := h.importer.Commit(c.Request.Context(), CurrentUser(c), data)
	if errCommit != nil {
		respondError(c, errCommit)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": len(created), "trips": tripsJSON(created)})
}

// Sample returns the CSV header line for import files.
func (h *TransferHandler) Sample(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="cavelog-import-template.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(importer.SampleCSV()))
}

// Export downloads every trip of the signed-in user.
func (h *TransferHandler) Export(c *gin.Context) {
	format, errFormat := exporter.ParseFormat(c.DefaultQuery("format", string(exporter.FormatCSV)))
	if errFormat != nil {
		respondError(c, errFormat)
		return
	}
	payload, errExport := h.exporter.Export(c.Request.Context(), CurrentUser(c), format)
	if errExport != nil {
		respondError(c, errExport)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", payload.Filename))
	c.Data(http.StatusOK, payload.ContentType, payload.Body)
}
