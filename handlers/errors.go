package handlers

import (
	"errors"
	"net/http"

	"voltslot/services/reservation"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
)

// RespondError maps reservation errors onto HTTP statuses. Unknown errors are 500.
func RespondError(c *gin.Context, err error) {
	var (
		validation   *reservation.ValidationError
		incompatible *reservation.IncompatibleConnectorError
		transition   *reservation.InvalidTransitionError
		cutoff       *reservation.CancellationWindowClosedError
		credential   *reservation.InvalidCredentialError
		denied       *reservation.AccessDeniedError
		notFound     *reservation.NotFoundError
		unavailable  *reservation.SlotUnavailableError
		store        *reservation.StoreUnavailableError
		generation   *reservation.CredentialGenerationFailedError
	)

	switch {
	case errors.As(err, &validation):
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", validation.Error())
	case errors.As(err, &incompatible):
		utils.JSONErrorWithData(c, http.StatusBadRequest, "Incompatible connector", incompatible.Error(), gin.H{
			"required":  incompatible.Required,
			"supported": incompatible.Supported,
		})
	case errors.As(err, &transition):
		utils.JSONErrorWithData(c, http.StatusBadRequest, "Invalid status transition", transition.Error(), gin.H{
			"current": transition.Current,
			"target":  transition.Target,
		})
	case errors.As(err, &cutoff):
		utils.JSONError(c, http.StatusBadRequest, "Cancellation window closed", cutoff.Error())
	case errors.As(err, &credential):
		utils.JSONError(c, http.StatusBadRequest, "Invalid check-in credential", credential.Error())
	case errors.As(err, &denied):
		utils.JSONError(c, http.StatusForbidden, "Access denied", denied.Error())
	case errors.As(err, &notFound):
		utils.JSONError(c, http.StatusNotFound, "Not found", notFound.Error())
	case errors.As(err, &unavailable):
		utils.JSONErrorWithData(c, http.StatusConflict, "Connector unavailable", unavailable.Error(), gin.H{
			"conflicts": unavailable.Conflicts,
		})
	case errors.As(err, &store), errors.As(err, &generation):
		utils.JSONError(c, http.StatusServiceUnavailable, "Service temporarily unavailable", err.Error())
	default:
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}
