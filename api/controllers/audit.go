package controllers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/api/responses"
	"github.com/mandexhq/mandex-backend/internal/audit"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
)

// AuditTrail returns the audit records touching one target, oldest first.
func AuditTrail(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID, err := parseUUIDParam(r, "targetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := audit.ListByTarget(r.Context(), db, targetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit records"))
			return
		}
		responses.WriteSuccess(w, records)
	}
}
