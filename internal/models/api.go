package models

import "encoding/json"

// Envelope wraps every REST response from the backend
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LoginRequest is sent to the login endpoint
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is sent to the signup endpoint
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ChangePasswordRequest is sent to the change-password endpoint
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// User is the cached profile of the logged in account
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// AuthResult is the data returned by login, signup and refresh-token
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// MonitorRequest creates or updates a website or API monitor
type MonitorRequest struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	RefreshTime   int               `json:"refreshTime"`
	Occurrences   int               `json:"occurrences"`
	ParallelLimit int               `json:"parallelLimit"`
	APIType       string            `json:"apiType,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	RequestBody   json.RawMessage   `json:"requestBody,omitempty"`
}
