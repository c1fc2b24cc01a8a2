package handler

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/pkg/logger"
)

const maxImportSize = 10 << 20

// ImportHandler handles the bulk import endpoints.
type ImportHandler struct {
	service *service.ImportService
	logger  *logger.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(svc *service.ImportService, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		service: svc,
		logger:  logger.OrNop(log).Named("imports"),
	}
}

// Preview handles POST /api/import/preview
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "请上传文件")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "仅支持 CSV 文件")
		return
	}

	result, err := h.service.Preview(r.Context(), file)
	if err != nil {
		h.logger.Info("import preview rejected", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Confirm handles POST /api/import/confirm
func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req model.ImportConfirmRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, service.ErrTokenExpired.Error())
		return
	}

	result, err := h.service.Confirm(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("import confirm failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "导入失败")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
