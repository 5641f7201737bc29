package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apisearch "github.com/anatolykoptev/MemOS/api/search"
)

// handleSearchEndpoint handles POST /api/v1/search requests.
// Body fields:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	// Verify search is configured
	if s.config.Embedder == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "search is not configured: an embedder is required",
		})
	}

	var input apisearch.SearchInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid request body",
		})
	}

	if input.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query is required",
		})
	}
	if input.TopK < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "top_k must be a positive integer",
		})
	}

	output, err := apisearch.Search(
		c.Context(),
		input.Query,
		input.TopK,
		s.config.Embedder,
		s.store,
		s.logger,
	)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		return s.storeError(c, err)
	}

	return c.JSON(output)
}
