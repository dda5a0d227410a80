package plugins

// CreatePluginRequest represents the data needed to list a new plugin.
type CreatePluginRequest struct {
	Slug     string   `json:"slug" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Vendor   string   `json:"vendor" validate:"required"`
	Version  string   `json:"version"`
	Price    int64    `json:"price"`
	Currency string   `json:"currency"`
	Features []string `json:"features"`
}

// UpdatePluginRequest represents the mutable fields of a listing.
type UpdatePluginRequest struct {
	Name      string   `json:"name" validate:"required"`
	Version   string   `json:"version"`
	Price     int64    `json:"price"`
	Currency  string   `json:"currency"`
	Features  []string `json:"features"`
	Published bool     `json:"published"`
}
