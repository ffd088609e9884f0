package routes

import (
	"net/http"

	"github.com/graphfold/graphfold/pkg/cluster"
	"github.com/graphfold/graphfold/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ClusterHandler computes a hierarchical community cover for the posted
// edge list.
func ClusterHandler(c echo.Context) error {
	type errorResponse struct {
		Message string `json:"message"`
	}

	data := new(cluster.ClusterRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: err.Error(),
		})
	}

	if data.LeidenParams == (cluster.LeidenParams{}) {
		data.LeidenParams = cluster.DefaultLeidenParams()
	}

	assignments, err := cluster.Partition(data)
	if err != nil {
		if cluster.IsValidationError(err) {
			return c.JSON(http.StatusUnprocessableEntity, errorResponse{
				Message: err.Error(),
			})
		}
		logger.Error("[Server] Clustering failed", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, cluster.ClusterResponse{
		Communities: assignments,
	})
}
