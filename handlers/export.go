package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/nhanes/table"
	"github.com/giygas/nhanes-api/nhanes/xport"
	"github.com/giygas/nhanes-api/validation"
)

// ExportDatasetV1 downloads a whole dataset as CSV or as a SAS transport file
func (h *HTTPHandlerImpl) ExportDatasetV1(w http.ResponseWriter, r *http.Request) {
	format, err := h.validator.ValidateFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, ok := h.lookupDataset(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	var contentType string
	switch format {
	case validation.FormatXPT:
		contentType = "application/octet-stream"
		err = xport.Encode(&buf, res.Table, memberName(res.Dataset), xport.DefaultEncoding)
	default:
		contentType = "text/csv; charset=utf-8"
		err = writeCSV(&buf, res.Table)
	}
	if err != nil {
		logging.Error("Failed to export dataset", "dataset", res.Dataset, "format", format, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to export dataset")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Dataset+"."+format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.Warn("Failed to write export response", "dataset", res.Dataset, "error", err)
	}
}

// writeCSV writes a header line of column names, then one line per row with
// missing cells left empty.
func writeCSV(buf *bytes.Buffer, t *table.Table) error {
	cw := csv.NewWriter(buf)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	for i := range t.Rows() {
		if err := cw.Write(t.Record(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
