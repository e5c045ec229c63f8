package models

// DefaultModel is used when a chat request names no model.
const DefaultModel = "gemini-2.0-flash-exp"

type ModelInfo struct {
    ID   string `json:"id"`
    Name string `json:"name"`
}

// Catalog returns the models advertised by GET /api/models.
func Catalog() []ModelInfo {
    return []ModelInfo{
        {ID: "gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash (Experimental)"},
        {ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
        {ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
    }
}
