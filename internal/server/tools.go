package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to a road image (PNG, JPEG, GIF, BMP or TIFF)",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and size. The decoded image is cached for the lane tools.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Lane Pipeline
		{
			Name:        "lane_detect",
			Description: "Run the full lane pipeline on a still image. Returns the left and right lane lines (each from the bottom of the image up to 3/5 of its height), the averaged slope/intercept per side, the number of Hough segments, and the reason when a side is missing. Optionally returns the composited frame as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the frame with the lane overlay as base64 PNG. Default true",
						"default":     true,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "lane_edge_detect",
			Description: "Run Canny edge detection (5x5 Gaussian, Sobel, hysteresis) and return the binary edge map as base64 PNG. Useful for tuning thresholds.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"threshold_low": map[string]interface{}{
						"type":        "integer",
						"description": "Low hysteresis threshold. Defaults to the configured value (50)",
					},
					"threshold_high": map[string]interface{}{
						"type":        "integer",
						"description": "High hysteresis threshold. Defaults to the configured value (150)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "lane_region_mask",
			Description: "Return the edge map restricted to the configured region of interest as base64 PNG, together with the polygon used for this image height.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "lane_segments",
			Description: "List the straight segments the Hough detector finds inside the region of interest, each with its fitted slope and the side it is classified to.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
