package sheets

import (
	"fmt"
)

// CredentialsNotFoundError indicates the service account key file exists at
// neither the configured path nor the working-directory fallback.
type CredentialsNotFoundError struct {
	Path     string
	Fallback string
}

func (e CredentialsNotFoundError) Error() string {
	return fmt.Sprintf("credentials file not found at %q or %q", e.Path, e.Fallback)
}

// SpreadsheetNotFoundError indicates no spreadsheet with the configured name
// is visible to the service account. Spreadsheets are never auto-created.
type SpreadsheetNotFoundError struct {
	Name string
}

func (e SpreadsheetNotFoundError) Error() string {
	return fmt.Sprintf("spreadsheet %q not found - check the name and that it is shared with the service account", e.Name)
}

// APIError wraps a Google API failure (rate limit, permission denial, etc).
// Publishing is the terminal step of the run - these are never retried.
type APIError struct {
	Op  string
	Err error
}

func (e APIError) Error() string {
	return fmt.Sprintf("sheets API error (%s): %v", e.Op, e.Err)
}

func (e APIError) Unwrap() error {
	return e.Err
}
