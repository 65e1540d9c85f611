package quote

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/threedeality/storefront-api/internal/common"
	"github.com/threedeality/storefront-api/internal/money"
	"github.com/threedeality/storefront-api/internal/obs"
)

// maxUploadBytes bounds the multipart body. Hobbyist STL files run a few
// megabytes; anything past this is either corrupt or abuse.
const maxUploadBytes = 50 << 20

// defaultInfillPercent matches the storefront's slider default.
const defaultInfillPercent = 20

// Handler exposes the STL quote endpoint.
type Handler struct {
	MaxBytes int64
}

func (h *Handler) maxBytes() int64 {
	if h.MaxBytes > 0 {
		return h.MaxBytes
	}
	return maxUploadBytes
}

// Estimate accepts a multipart upload (file, material, infill_percent) and
// returns the volume and a non-binding price.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes())
	if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "multipart form required", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "file required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	material := strings.ToUpper(strings.TrimSpace(r.FormValue("material")))
	if material == "" {
		material = "PLA"
	}
	infill := defaultInfillPercent
	if raw := strings.TrimSpace(r.FormValue("infill_percent")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "infill_percent must be an integer", nil)
			return
		}
		infill = parsed
	}

	volume, err := VolumeCm3(file)
	if err != nil {
		h.count(material, "invalid_stl")
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_MODEL", "could not parse stl file", nil)
		return
	}
	estimate, err := Price(volume, material, infill)
	if err != nil {
		if errors.Is(err, ErrUnknownMaterial) {
			h.count(material, "unknown_material")
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown material", map[string]any{"materials": Materials()})
			return
		}
		h.count(material, "error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not price model", nil)
		return
	}

	h.count(estimate.Material, "success")
	common.JSON(w, http.StatusOK, map[string]any{
		"filename":        header.Filename,
		"volume_cm3":      estimate.VolumeCm3,
		"material":        estimate.Material,
		"infill_percent":  estimate.InfillPercent,
		"price":           estimate.PriceRupees,
		"price_paise":     estimate.PricePaise,
		"price_formatted": money.FormatINR(decimal.NewFromInt(estimate.PriceRupees)),
		"currency":        "INR",
	})
}

// Materials lists the rate card so the storefront can render its picker.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"materials": Materials()})
}

func (h *Handler) count(material, result string) {
	if obs.QuoteTotal == nil {
		return
	}
	if _, ok := materialRates[material]; !ok {
		material = "unknown"
	}
	obs.QuoteTotal.WithLabelValues(material, result).Inc()
}
