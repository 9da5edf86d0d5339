package model

// Technology is a question-bank technology (e.g. "Go", "React").
type Technology struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

// Category groups technologies (e.g. "Frontend").
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// BankQuestion is a curated practice question from the question bank.
type BankQuestion struct {
	ID         int    `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Technology string `json:"technology,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Pagination mirrors the list metadata of the REST API.
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// ListParams filters and pages a question-bank listing.
type ListParams struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	Sort       string `form:"sort" binding:"max=64"`
	Category   string `form:"category" binding:"max=100"`
	Technology string `form:"technology" binding:"max=100"`
}

// BulkQuestion is one row of a bulk upload.
type BulkQuestion struct {
	Question   string `json:"question" binding:"required,min=1,max=2000"`
	Answer     string `json:"answer" binding:"max=10000"`
	Difficulty string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Technology string `json:"technology" binding:"required,max=100"`
	Category   string `json:"category" binding:"max=100"`
}

// BulkUploadRequest is the payload for uploading many questions at once.
type BulkUploadRequest struct {
	Questions []BulkQuestion `json:"questions" binding:"required,min=1,max=500,dive"`
}

// BulkUploadResult reports how many rows the REST API accepted.
type BulkUploadResult struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// LoginRequest carries credentials for the REST API.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=200"`
	Password   string `json:"password" binding:"required,min=6,max=200"`
}

// UserProfile is the authenticated user's profile.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
}

// AuthSession is the result of a successful login.
type AuthSession struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}
