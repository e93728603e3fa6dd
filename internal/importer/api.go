package importer

import "parking-finder-backend/internal/store"

// ApiResponse models the top-level structure of the upstream feed's response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int             `json:"page"`
		PageSize int             `json:"pageSize"`
		Total    int             `json:"total"`
		Items    []store.LotItem `json:"items"`
	} `json:"data"`
}
