package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/response"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/storage"
)

const defaultMultipartMemory = 32 << 20

type conclusionService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.ConclusionRequest) (*dto.ConclusionResponse, error)
}

// ConclusionHandler accepts conclusion requests as multipart forms. Uploads
// are written to tempDir before the service takes ownership of them.
type ConclusionHandler struct {
	service conclusionService
	tempDir string
}

// NewConclusionHandler constructs the handler.
func NewConclusionHandler(service conclusionService, tempDir string) *ConclusionHandler {
	return &ConclusionHandler{service: service, tempDir: tempDir}
}

// Submit godoc
// @Summary Request thesis conclusion
// @Tags ThesisConclusion
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param titleEng formData string false "English title"
// @Param abstract formData string true "Abstract"
// @Param abstractEng formData string false "English abstract"
// @Param language formData string false "it or en"
// @Param licenseId formData integer false "License"
// @Param coSupervisors formData string false "JSON array of teacher ids"
// @Param keywords formData string false "JSON array of keyword ids or free text"
// @Param sdgs formData string false "JSON array of {goal_id, level}"
// @Param embargo formData string false "JSON {duration, motivations}"
// @Param thesisFile formData file true "Thesis PDF/A"
// @Param thesisResume formData file false "Thesis resume PDF"
// @Param additionalZip formData file false "Supplementary archive"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /thesis-conclusion [post]
func (h *ConclusionHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := c.Request.ParseMultipartForm(defaultMultipartMemory); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "multipart form expected"))
		return
	}

	req, err := h.parseFields(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var staged []*models.UploadedFile
	discard := func() {
		for _, f := range staged {
			_ = storage.RemoveFile(f.Path)
		}
	}
	for _, field := range []struct {
		name   string
		target **models.UploadedFile
	}{
		{"thesisFile", &req.ThesisFile},
		{"thesisResume", &req.ThesisResume},
		{"additionalZip", &req.AdditionalZip},
	} {
		header, err := c.FormFile(field.name)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			discard()
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+field.name))
			return
		}
		file, err := h.stage(header)
		if err != nil {
			discard()
			response.Error(c, appErrors.Internal(err, "failed to receive "+field.name))
			return
		}
		staged = append(staged, file)
		*field.target = file
	}

	result, err := h.service.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func (h *ConclusionHandler) parseFields(c *gin.Context) (dto.ConclusionRequest, error) {
	req := dto.ConclusionRequest{
		Title:       c.PostForm("title"),
		Abstract:    c.PostForm("abstract"),
		Language:    c.DefaultPostForm("language", "it"),
		TitleEng:    optionalForm(c, "titleEng"),
		AbstractEng: optionalForm(c, "abstractEng"),
	}
	if raw := strings.TrimSpace(c.PostForm("licenseId")); raw != "" && raw != "null" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "licenseId must be an integer")
		}
		req.LicenseID = &id
	}

	var coSupervisors []dto.TeacherRef
	if ok, err := jsonField(c, "coSupervisors", &coSupervisors); err != nil {
		return req, err
	} else if ok {
		req.CoSupervisors = &coSupervisors
	}
	var keywords []dto.KeywordInput
	if ok, err := jsonField(c, "keywords", &keywords); err != nil {
		return req, err
	} else if ok {
		req.Keywords = &keywords
	}
	var sdgs []dto.SDGInput
	if ok, err := jsonField(c, "sdgs", &sdgs); err != nil {
		return req, err
	} else if ok {
		req.SDGs = &sdgs
	}
	var embargo dto.EmbargoInput
	if ok, err := jsonField(c, "embargo", &embargo); err != nil {
		return req, err
	} else if ok {
		req.Embargo = &embargo
	}
	return req, nil
}

// jsonField decodes a JSON-encoded form value. It reports false when the
// field is absent or null so the stored collection is left alone.
func jsonField(c *gin.Context, name string, target interface{}) (bool, error) {
	raw, present := c.GetPostForm(name)
	raw = strings.TrimSpace(raw)
	if !present || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s must be valid JSON", name))
	}
	return true, nil
}

func optionalForm(c *gin.Context, name string) *string {
	value, ok := c.GetPostForm(name)
	if !ok {
		return nil
	}
	return &value
}

// stage copies an upload to a temp file and fills in the MIME type from the
// content when the client sent none.
func (h *ConclusionHandler) stage(header *multipart.FileHeader) (*models.UploadedFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close() //nolint:errcheck

	if h.tempDir != "" {
		if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
			return nil, err
		}
	}
	dst, err := os.CreateTemp(h.tempDir, "upload-*")
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = storage.RemoveFile(dst.Name())
		return nil, err
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		detected, err := mimetype.DetectFile(dst.Name())
		if err == nil {
			mimeType = detected.String()
		}
	}
	return &models.UploadedFile{
		Path:         dst.Name(),
		MimeType:     mimeType,
		OriginalName: header.Filename,
		Size:         size,
	}, nil
}
