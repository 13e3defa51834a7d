package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

type conclusionServiceMock struct {
	req        dto.ConclusionRequest
	thesisBody []byte
	err        error
}

func (m *conclusionServiceMock) Submit(ctx context.Context, claims *models.JWTClaims, req dto.ConclusionRequest) (*dto.ConclusionResponse, error) {
	m.req = req
	if req.ThesisFile != nil {
		m.thesisBody, _ = os.ReadFile(req.ThesisFile.Path)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ConclusionResponse{ID: "th1", Status: models.ThesisStatusConclusionRequested}, nil
}

type formFile struct {
	field, name, contentType string
	body                     []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/thesis-conclusion", buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestConclusionHandlerParsesMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &conclusionServiceMock{}
	h := NewConclusionHandler(mock, t.TempDir())

	pdf := []byte("%PDF-1.7 body")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, map[string]string{
		"title":         "Verified compilation",
		"abstract":      "Abstract",
		"titleEng":      "Verified compilation",
		"abstractEng":   "Abstract",
		"language":      "it",
		"licenseId":     "2",
		"coSupervisors": `["t2", {"id": "t3"}]`,
		"keywords":      `[10, "type theory", {"id": 0, "keyword": "coq"}]`,
		"sdgs":          `[{"goal_id": 1, "level": "primary"}, 4]`,
		"embargo":       `{"duration": 12, "motivations": [{"motivation_id": 6, "other_motivation": "patent"}]}`,
	}, formFile{field: "thesisFile", name: "thesis.pdf", body: pdf, contentType: "application/octet-stream"})
	asStudent(c)

	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := mock.req
	assert.Equal(t, "Verified compilation", req.Title)
	require.NotNil(t, req.LicenseID)
	assert.Equal(t, int64(2), *req.LicenseID)
	require.NotNil(t, req.CoSupervisors)
	assert.Equal(t, []dto.TeacherRef{{ID: "t2"}, {ID: "t3"}}, *req.CoSupervisors)
	require.NotNil(t, req.Keywords)
	assert.Len(t, *req.Keywords, 3)
	assert.Equal(t, "coq", (*req.Keywords)[2].Text)
	require.NotNil(t, req.SDGs)
	assert.Equal(t, int64(4), (*req.SDGs)[1].GoalID)
	require.NotNil(t, req.Embargo)
	assert.Equal(t, "12", req.Embargo.Duration)

	require.NotNil(t, req.ThesisFile)
	assert.Equal(t, "application/pdf", req.ThesisFile.MimeType)
	assert.Equal(t, "thesis.pdf", req.ThesisFile.OriginalName)
	assert.Equal(t, int64(len(pdf)), req.ThesisFile.Size)
	assert.Equal(t, pdf, mock.thesisBody)
	assert.Nil(t, req.ThesisResume)
}

func TestConclusionHandlerDistinguishesAbsentAndEmptyCollections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &conclusionServiceMock{}
	h := NewConclusionHandler(mock, t.TempDir())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, map[string]string{
		"title":    "T",
		"abstract": "A",
		"keywords": `[]`,
		"sdgs":     `null`,
	})
	asStudent(c)

	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.req.Keywords)
	assert.Empty(t, *mock.req.Keywords)
	assert.Nil(t, mock.req.SDGs)
	assert.Nil(t, mock.req.CoSupervisors)
	assert.Nil(t, mock.req.Embargo)
}

func TestConclusionHandlerRejectsBadJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConclusionHandler(&conclusionServiceMock{}, t.TempDir())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, map[string]string{"title": "T", "abstract": "A", "sdgs": `[{`})
	asStudent(c)

	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConclusionHandlerMapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConclusionHandler(&conclusionServiceMock{err: appErrors.Clone(appErrors.ErrInvalidDocument, "thesis.pdf is not a valid PDF/A document")}, t.TempDir())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, map[string]string{"title": "T", "abstract": "A"},
		formFile{field: "thesisFile", name: "thesis.pdf", body: []byte("%PDF-1.4"), contentType: "application/pdf"})
	asStudent(c)

	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_DOCUMENT")
}
