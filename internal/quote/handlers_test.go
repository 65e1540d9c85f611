package quote

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func multipartUpload(t *testing.T, body []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if body != nil {
		part, err := writer.CreateFormFile("file", "model.stl")
		require.NoError(t, err)
		_, err = part.Write(body)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestEstimateUnitCube(t *testing.T) {
	body, contentType := multipartUpload(t, encodeBinarySTL(t, scale(unitCube(), 20)), map[string]string{
		"material":       "PLA",
		"infill_percent": "20",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	(&Handler{}).Estimate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Filename       string  `json:"filename"`
		VolumeCm3      float64 `json:"volume_cm3"`
		Material       string  `json:"material"`
		Price          int64   `json:"price"`
		PriceFormatted string  `json:"price_formatted"`
		Currency       string  `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "model.stl", resp.Filename)
	require.InDelta(t, 8.0, resp.VolumeCm3, 1e-6)
	require.Equal(t, "PLA", resp.Material)
	// 50 + 8·0.2·3 + 8·0.15·8 = 64.4 -> 65
	require.Equal(t, int64(65), resp.Price)
	require.Equal(t, "₹65.00", resp.PriceFormatted)
	require.Equal(t, "INR", resp.Currency)
}

func TestEstimateDefaultsMaterialAndInfill(t *testing.T) {
	body, contentType := multipartUpload(t, encodeBinarySTL(t, unitCube()), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	(&Handler{}).Estimate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Material      string `json:"material"`
		InfillPercent int    `json:"infill_percent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PLA", resp.Material)
	require.Equal(t, defaultInfillPercent, resp.InfillPercent)
}

func TestEstimateRequiresFile(t *testing.T) {
	body, contentType := multipartUpload(t, nil, map[string]string{"material": "PLA"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	(&Handler{}).Estimate(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateRejectsUnparseableModel(t *testing.T) {
	body, contentType := multipartUpload(t, []byte("not an stl"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	(&Handler{}).Estimate(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEstimateRejectsUnknownMaterial(t *testing.T) {
	body, contentType := multipartUpload(t, encodeBinarySTL(t, unitCube()), map[string]string{"material": "WOOD"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quote", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	(&Handler{}).Estimate(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "materials")
}

func TestListMaterials(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Handler{}).ListMaterials(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote/materials", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "RESIN")
}
